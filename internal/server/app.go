// Package server initializes and runs the replica server. It wires the
// Postgres-backed repositories, the account and sync services, the
// optional Redis session store and the HTTP endpoint, and handles
// graceful shutdown on OS signals.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quietlog/quietlog/internal/logging"
	"github.com/quietlog/quietlog/internal/server/config"
	"github.com/quietlog/quietlog/internal/server/entries"
	"github.com/quietlog/quietlog/internal/server/handlers"
	"github.com/quietlog/quietlog/internal/server/sessions"
	"github.com/quietlog/quietlog/internal/server/shared/db"
	"github.com/quietlog/quietlog/internal/server/users"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	repos        db.RepositoryManager
	userService  *users.Service
	entryService *entries.Service
	sessionStore *sessions.Store
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	rm, err := db.NewPostgresRepositoryManager(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	us := users.NewService(rm.Users(), rm.RefreshTokens(), cfg)
	es := entries.NewService(rm.Entries(), logger)

	var ss *sessions.Store
	if cfg.RedisURL != "" {
		ss, err = sessions.NewStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis init error: %w", err)
		}
	}

	return &App{
		config:       cfg,
		logger:       logger,
		repos:        rm,
		userService:  us,
		entryService: es,
		sessionStore: ss,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "addr", app.config.EndpointAddr)

	app.initSignalHandler(cancelFunc)

	var devices handlers.DeviceTracker
	if app.sessionStore != nil {
		devices = app.sessionStore
	}
	router := handlers.NewRouter(app.userService, app.entryService, devices, app.logger)

	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, "server error", "error", err)
		}
	case <-ctx.Done():
		app.logger.Info(ctx, "Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "shutdown error", "error", err)
		}
	}

	if app.sessionStore != nil {
		if err := app.sessionStore.Close(); err != nil {
			app.logger.Warn(ctx, "redis close error", "error", err)
		}
	}
	if err := app.repos.Close(); err != nil {
		app.logger.Warn(ctx, "db close error", "error", err)
	}
}
