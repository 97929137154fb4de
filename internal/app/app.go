package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"meridian/internal/archive"
	"meridian/internal/backend"
	"meridian/internal/config"
	"meridian/internal/dashboard"
	"meridian/internal/logging"
	"meridian/internal/session"
	"meridian/internal/simulation"
	"meridian/internal/transport"
)

// App wires one session and its collaborators from configuration.
type App struct {
	Config    *config.Config
	Backend   *backend.Client
	Session   *session.Store
	Simulator *simulation.Client
	Reports   *archive.CachedStore
	Recorder  *archive.Recorder

	server      *dashboard.Server
	unsubscribe func()
	closeOnce   sync.Once
	log         *slog.Logger
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	log := logging.New("app")

	client, err := backend.New(cfg.BackendURL, cfg.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	reports, err := archive.Open(ctx, cfg.ArchiveStore())
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	store := session.New(session.Options{
		Dialer:          transport.NewWebSocketDialer(cfg.StreamURL, cfg.StreamIdleTimeout),
		Fetcher:         client,
		FeedCapacity:    cfg.FeedCapacity,
		FallbackTimeout: cfg.HTTPTimeout,
	})
	recorder := archive.NewRecorder(reports)
	unsubscribe := recorder.Attach(store)

	sim := simulation.New(simulation.Options{
		Backend:   client,
		Baseline:  store,
		CacheSize: cfg.Simulation.CacheSize,
		CacheTTL:  cfg.Simulation.CacheTTL,
		Parallel:  cfg.Simulation.Parallel,
	})

	log.Debug("app initialized", "backend", client.BaseURL(), "stream", cfg.StreamURL, "env", cfg.Env)
	return &App{
		Config:      cfg,
		Backend:     client,
		Session:     store,
		Simulator:   sim,
		Reports:     reports,
		Recorder:    recorder,
		unsubscribe: unsubscribe,
		log:         log,
	}, nil
}

// Handler is the dashboard API over this app's session.
func (a *App) Handler() *dashboard.Handler {
	return dashboard.NewHandler(dashboard.Options{
		Session:   a.Session,
		Simulator: a.Simulator,
		Backend:   a.Backend,
		Reports:   a.Reports,
	})
}

// Start serves the dashboard on the configured port until Shutdown.
func (a *App) Start() error {
	a.server = dashboard.NewServer(a.Config.Port, dashboard.Routes(a.Handler()))
	return a.server.Start()
}

// Shutdown stops the server, if any, then closes the session and waits for
// pending archive writes.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	a.Close()
	return err
}

// Close is idempotent.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
		_ = a.Session.Close()
		a.Recorder.Wait()
		if err := a.Reports.Close(); err != nil {
			a.log.Warn("close archive", "error", err)
		}
	})
}
