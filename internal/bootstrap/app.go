package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yanqian/mealplanner/internal/domain/mealplan"
	"github.com/yanqian/mealplanner/internal/domain/session"
	"github.com/yanqian/mealplanner/internal/infra/config"
	httpiface "github.com/yanqian/mealplanner/internal/interface/http"
)

const (
	restoreTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// App encapsulates the HTTP server lifecycle.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	server   *http.Server
	sessions *session.Store
	poller   *mealplan.Poller
	events   *httpiface.EventHub
}

// NewApp is used by Wire to build the runnable app.
func NewApp(cfg *config.Config, logger *slog.Logger, server *http.Server, sessions *session.Store, poller *mealplan.Poller, events *httpiface.EventHub) *App {
	return &App{
		cfg:      cfg,
		logger:   logger.With("component", "bootstrap"),
		server:   server,
		sessions: sessions,
		poller:   poller,
		events:   events,
	}
}

// Run restores the persisted session, starts the HTTP server and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, restoreTimeout)
	a.sessions.Init(initCtx)
	cancel()
	a.logger.Info("session restored", "state", a.sessions.Snapshot().State)

	events, unsubscribe := a.sessions.Subscribe()
	forwardCtx, stopForward := context.WithCancel(ctx)
	go a.events.Forward(forwardCtx, events)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting", "address", a.cfg.HTTP.Address)
		if err := a.server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	if a.poller.Cancel() {
		a.logger.Info("running generation cancelled")
	}
	stopForward()
	unsubscribe()
	a.events.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if err := a.sessions.Close(); err != nil {
		a.logger.Warn("session store close failed", "error", err)
	}
	return runErr
}
