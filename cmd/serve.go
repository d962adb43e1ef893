// cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldcrew/crewclock/internal/api"
	"github.com/fieldcrew/crewclock/internal/offline"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background offline sync",
	Long: `Serves the crewclock API for mobile and web clients, exposes Prometheus
metrics on /metrics and drains the offline queue in the background.
Requires jwt_secret (CREWCLOCK_JWT_SECRET) to be set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := openApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		tokens, err := api.NewTokens(a.cfg.JWTSecret, a.cfg.JWTTTL)
		if err != nil {
			return fmt.Errorf("%w (set CREWCLOCK_JWT_SECRET)", err)
		}
		addr := a.cfg.APIAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv, err := api.NewServer(api.Config{
			Addr:         addr,
			Engine:       a.manager,
			Gateway:      a.gateway,
			Queue:        a.queue,
			Reports:      a.reports,
			Settings:     a.settings,
			Crews:        a.roster,
			Tokens:       tokens,
			Metrics:      a.metrics.Handler(),
			RateLimitRPM: a.cfg.RateLimitRPM,
			Logger:       a.log,
		})
		if err != nil {
			return err
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)
		go func() {
			select {
			case sig := <-sigs:
				a.log.Infow("received signal, shutting down", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = a.syncer.Start(ctx)
		}()
		go func() {
			defer wg.Done()
			watchConnectivity(ctx, offline.PingConnectivity{Store: a.store}, a.syncer, 5*time.Second)
		}()

		headerColor.Fprintf(cmd.OutOrStdout(), "--- ⏱  crewclock %s serving on %s ---\n", Version, addr)
		err = srv.Start(ctx)
		cancel()
		wg.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "--- 🛑 Shutdown complete ---")
		return nil
	},
}

// watchConnectivity polls the store and triggers a drain whenever it comes
// back after being unreachable.
func watchConnectivity(ctx context.Context, conn offline.Connectivity, syncer *offline.Syncer, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	online := conn.Online(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := conn.Online(ctx)
			if now && !online {
				syncer.Trigger()
			}
			online = now
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}
