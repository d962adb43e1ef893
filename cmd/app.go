// cmd/app.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fieldcrew/crewclock/internal/config"
	"github.com/fieldcrew/crewclock/internal/directory"
	"github.com/fieldcrew/crewclock/internal/kv"
	"github.com/fieldcrew/crewclock/internal/location"
	"github.com/fieldcrew/crewclock/internal/logging"
	"github.com/fieldcrew/crewclock/internal/metrics"
	"github.com/fieldcrew/crewclock/internal/offline"
	"github.com/fieldcrew/crewclock/internal/report"
	"github.com/fieldcrew/crewclock/internal/settings"
	"github.com/fieldcrew/crewclock/internal/timeclock"
)

// app is the wired engine a command works against.
type app struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	store    kv.Store
	queueKV  kv.Store
	roster   *directory.Roster
	resolver *directory.Resolver
	settings *settings.Store
	manager  *timeclock.Manager
	queue    *offline.Queue
	syncer   *offline.Syncer
	gateway  *offline.Gateway
	reports  *report.Generator
	metrics  *metrics.Metrics
}

// appOptions tweak wiring for a single command.
type appOptions struct {
	// Location is the device position source for clock actions (optional)
	Location location.Provider

	// LogOutput receives console logs (default: os.Stderr)
	LogOutput io.Writer
}

// loadConfig reads the configuration and applies persistent flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		return nil, err
	}
	if storeDSN != "" {
		cfg.Store = storeDSN
	}
	if queueDSN != "" {
		cfg.QueueStore = queueDSN
	}
	if rosterPath != "" {
		cfg.Roster = rosterPath
	}
	if debugMode {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// openApp wires every component from the configuration. Callers must Close it.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, opts)
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	log, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: opts.LogOutput,
	})
	if err != nil {
		return nil, err
	}
	logFn := logging.LogFn(log)
	a := &app{cfg: cfg, log: log}

	for _, dsn := range []string{cfg.Store, cfg.QueueStore} {
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
	}

	a.store, err = kv.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if cfg.QueueStore == cfg.Store {
		a.queueKV = a.store
	} else if a.queueKV, err = kv.Open(ctx, cfg.QueueStore); err != nil {
		a.Close()
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	a.roster, err = directory.LoadRoster(cfg.Roster)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.resolver = directory.NewResolver(a.roster, a.roster)

	a.settings = settings.NewStore(settings.StoreConfig{KV: a.store, LogFn: logFn})
	if err := a.loadSettings(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.metrics = metrics.New(metrics.Gauges{
		ActiveSessions: func() float64 {
			sessions, err := a.manager.ActiveSessions(context.Background())
			if err != nil {
				return 0
			}
			return float64(len(sessions))
		},
		QueueDepth: func() float64 {
			pending, err := a.queue.Pending(context.Background())
			if err != nil {
				return 0
			}
			return float64(len(pending))
		},
	})

	a.manager, err = timeclock.NewManager(timeclock.Config{
		Store:       a.store,
		Settings:    a.settings,
		Crews:       a.roster,
		Jobs:        a.roster,
		Assignments: a.resolver,
		Location:    opts.Location,
		GPSTimeout:  cfg.GPSTimeout,
		Observer:    a.metrics,
		LogFn:       logFn,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.queue = offline.NewQueue(offline.QueueConfig{
		Store:       a.queueKV,
		Replayer:    offline.ManagerReplayer{Clock: a.manager},
		MaxAttempts: cfg.SyncMaxAttempts,
		LogFn:       logFn,
	})
	a.syncer = offline.NewSyncer(offline.SyncerConfig{
		Queue:       a.queue,
		Interval:    cfg.SyncInterval,
		TriggerRate: rate.Limit(cfg.SyncTriggerRPS),
		OnDrain:     a.metrics.ObserveDrain,
		LogFn:       logFn,
	})

	var conn offline.Connectivity = offline.AlwaysOnline{}
	if a.queueKV != a.store {
		conn = offline.PingConnectivity{Store: a.store}
	}
	a.gateway = offline.NewGateway(offline.GatewayConfig{
		Clock:        a.manager,
		Queue:        a.queue,
		Connectivity: conn,
		Location:     opts.Location,
		GPSTimeout:   cfg.GPSTimeout,
		Syncer:       a.syncer,
		LogFn:        logFn,
	})

	a.reports = report.NewGenerator(report.GeneratorConfig{
		Entries: a.manager,
		Crews:   a.resolver,
	})

	Debug("store=%s queue=%s roster=%s", cfg.Store, cfg.QueueStore, cfg.Roster)
	return a, nil
}

// loadSettings reads persisted settings, seeding them from the configured
// policy file the first time. When the store can't be read the compiled-in
// defaults stay in effect so clock actions can still be queued.
func (a *app) loadSettings(ctx context.Context) error {
	if a.cfg.SettingsFile != "" {
		_, persisted, err := a.store.Get(ctx, settings.Key)
		if err != nil {
			a.log.Warnw("settings unavailable, using defaults", "error", err)
			return nil
		}
		if !persisted {
			seed, err := settings.LoadFile(a.cfg.SettingsFile)
			if err != nil {
				return err
			}
			if _, err := a.settings.Replace(ctx, seed, "settings-file"); err != nil {
				return err
			}
			return nil
		}
	}
	if err := a.settings.Load(ctx); err != nil {
		a.log.Warnw("settings unavailable, using defaults", "error", err)
	}
	return nil
}

// Close releases the stores and flushes the logger.
func (a *app) Close() {
	var errs []error
	if a.queueKV != nil && a.queueKV != a.store {
		errs = append(errs, a.queueKV.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warnw("close stores", "error", err)
	}
	_ = a.log.Sync()
}

// ensureSQLiteDir creates the parent directory of a SQLite DSN.
func ensureSQLiteDir(dsn string) error {
	var path string
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		path = strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "//")
	case dsn == "" || dsn == "memory:" || dsn == "memory" || strings.Contains(dsn, "://"):
		return nil
	default:
		path = dsn
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// actorName is who admin actions are recorded against when --actor is unset.
func actorName(flag string) string {
	if flag != "" {
		return flag
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
