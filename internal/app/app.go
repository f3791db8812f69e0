package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/legacy-gateway/internal/auth"
	"github.com/vovakirdan/legacy-gateway/internal/config"
	"github.com/vovakirdan/legacy-gateway/internal/core"
	"github.com/vovakirdan/legacy-gateway/internal/service/events"
	"github.com/vovakirdan/legacy-gateway/internal/service/messages"
	"github.com/vovakirdan/legacy-gateway/internal/store"
	"github.com/vovakirdan/legacy-gateway/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/legacy-gateway/internal/transport/http"
)

// Trace is the _trace value sent in Hello, READY and RESUMED.
var Trace = []string{"legacy-gateway"}

// App wires together store, core and transport layers.
type App struct {
	cfg       config.Config
	server    *stdhttp.Server
	registry  *core.Registry
	publisher *events.Publisher
	store     store.Store
	log       *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	return NewWithStore(cfg, st, clock.New(), logger), nil
}

// NewWithStore wires the application around an already opened store.
func NewWithStore(cfg config.Config, st store.Store, clk clock.Clock, logger *zerolog.Logger) *App {
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	})

	registry := core.NewRegistry(core.RegistryOptions{
		ReplayBufferSize: cfg.Gateway.ReplayBufferSize,
		ResumeTimeout:    cfg.Gateway.ResumeTimeout,
		MultiSession:     cfg.Gateway.MultiSession,
		Clock:            clk,
	}, logger)

	dispatcher := core.NewDispatcher(registry, st, cfg.Gateway.DispatchConcurrency, logger)
	registry.SetPresenceNotifier(core.NewPresenceBroadcaster(dispatcher, st, logger))

	ready := core.NewReadyBuilder(st, registry.Presence, cfg.Gateway.HeartbeatInterval.Milliseconds(), Trace)
	publisher := events.New(dispatcher, ready)

	server := transporthttp.NewServer(transporthttp.Deps{
		Config:   cfg,
		Auth:     authService,
		Registry: registry,
		Ready:    ready,
		Messages: messages.New(st, publisher),
		Clock:    clk,
		Logger:   logger,
	})

	return &App{
		cfg:       cfg,
		server:    server,
		registry:  registry,
		publisher: publisher,
		store:     st,
		log:       logger,
	}
}

// Handler returns the HTTP handler serving gateway and REST routes.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Publisher returns the dispatch entry points for state mutations.
func (a *App) Publisher() *events.Publisher {
	return a.publisher
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.cfg.Addr).Msg("listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Hijacked gateway connections are not tracked by the server.
		a.registry.Shutdown()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
