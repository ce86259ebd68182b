package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/badgerstore"
	"github.com/vovakirdan/wirechat-relay/internal/store/jsonfile"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
)

// ErrUnknownDriver is returned for a history driver that is not compiled in.
var ErrUnknownDriver = errors.New("unknown history driver")

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.HistoryStore
	log             *zerolog.Logger
}

// OpenHistory opens the history store selected by cfg.Driver. An empty path
// falls back to the driver's default location.
func OpenHistory(cfg config.HistoryConfig, logger *zerolog.Logger) (store.HistoryStore, error) {
	path := cfg.ResolvedPath()
	switch cfg.Driver {
	case config.DriverJSON, "":
		return jsonfile.New(path, jsonfile.WithLogger(logger))
	case config.DriverSQLite:
		return sqlite.New(path)
	case config.DriverBadger:
		return badgerstore.New(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenHistory(cfg.History, logger)
	if err != nil {
		return nil, fmt.Errorf("init history store: %w", err)
	}

	logger.Info().
		Str("driver", cfg.History.Driver).
		Str("path", cfg.History.ResolvedPath()).
		Msg("history store opened")

	hub := core.NewHub(st, logger, core.Options{
		ChunkIdleTimeout:    cfg.Media.ChunkIdleTimeout,
		NotifyMediaFailures: cfg.Media.NotifyFailures,
	})
	server := transporthttp.NewServer(hub, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting wirechat relay")
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the history store.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close history store")
		} else {
			a.log.Info().Msg("history store closed")
		}
		a.store = nil
	}
}
