// Package api serves the time tracking engine over HTTP for mobile and web
// clients.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/fieldcrew/crewclock/internal/directory"
	"github.com/fieldcrew/crewclock/internal/offline"
	"github.com/fieldcrew/crewclock/internal/report"
	"github.com/fieldcrew/crewclock/internal/settings"
	"github.com/fieldcrew/crewclock/internal/timeclock"
)

// Engine is the part of the session manager the API reads and administers
// through. Clock actions go through the offline gateway instead.
type Engine interface {
	AdminClockOut(ctx context.Context, memberID, actor, reason string) (timeclock.TimeEntry, error)
	EditEntry(ctx context.Context, entryID string, p timeclock.EntryPatch, actor string) (timeclock.TimeEntry, error)
	Approve(ctx context.Context, entryID, actor string) (timeclock.TimeEntry, error)
	Reject(ctx context.Context, entryID, actor, reason string) (timeclock.TimeEntry, error)
	ActiveSession(ctx context.Context, memberID string) (timeclock.ActiveSession, error)
	ActiveSessions(ctx context.Context) ([]timeclock.ActiveSession, error)
	Entry(ctx context.Context, id string) (timeclock.TimeEntry, error)
	Entries(ctx context.Context, f timeclock.EntryFilter) ([]timeclock.TimeEntry, error)
}

// Config holds the server's collaborators.
type Config struct {
	// Addr is the listen address (default: :8080)
	Addr string

	Engine   Engine
	Gateway  *offline.Gateway
	Queue    *offline.Queue
	Reports  *report.Generator
	Settings *settings.Store
	Crews    directory.CrewDirectory
	Tokens   *Tokens

	// Metrics is served unauthenticated on /metrics (optional)
	Metrics http.Handler

	// RateLimitRPM limits requests per client IP per minute (0 disables)
	RateLimitRPM int

	// ShutdownTimeout bounds graceful shutdown (default: 10s)
	ShutdownTimeout time.Duration

	Logger *zap.SugaredLogger
}

// Server is the HTTP API.
type Server struct {
	cfg     Config
	engine  Engine
	gateway *offline.Gateway
	queue   *offline.Queue
	reports *report.Generator
	store   *settings.Store
	crews   directory.CrewDirectory
	tokens  *Tokens
	log     *zap.SugaredLogger
}

// NewServer validates the configuration and creates a server.
func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Engine == nil:
		return nil, errors.New("api: engine is required")
	case cfg.Gateway == nil:
		return nil, errors.New("api: gateway is required")
	case cfg.Crews == nil:
		return nil, errors.New("api: crew directory is required")
	case cfg.Tokens == nil:
		return nil, fmt.Errorf("api: %w", ErrMissingSecret)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		cfg:     cfg,
		engine:  cfg.Engine,
		gateway: cfg.Gateway,
		queue:   cfg.Queue,
		reports: cfg.Reports,
		store:   cfg.Settings,
		crews:   cfg.Crews,
		tokens:  cfg.Tokens,
		log:     log,
	}, nil
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if s.cfg.RateLimitRPM > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitRPM, time.Minute))
	}

	r.Get("/health", s.health)
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/clock/in", s.clockIn)
		r.Post("/clock/out", s.clockOut)
		r.Post("/breaks/start", s.startBreak)
		r.Post("/breaks/end", s.endBreak)
		r.Get("/sessions/{memberID}", s.getSession)
		r.Get("/entries", s.listEntries)
		r.Get("/entries/{id}", s.getEntry)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)

			r.Get("/sessions", s.listSessions)
			r.Patch("/entries/{id}", s.editEntry)
			r.Post("/entries/{id}/approve", s.approveEntry)
			r.Post("/entries/{id}/reject", s.rejectEntry)
			r.Post("/admin/clock-out", s.adminClockOut)
			r.Get("/reports/labor", s.laborReport)
			r.Get("/settings", s.getSettings)
			r.Patch("/settings", s.patchSettings)
			r.Post("/sync/drain", s.drain)
			r.Get("/sync/unresolved", s.unresolved)
			r.Post("/sync/events/{id}/retry", s.retryEvent)
			r.Delete("/sync/events/{id}", s.discardEvent)
		})
	})
	return r
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.log.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debugw("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
