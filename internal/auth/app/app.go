package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/microstore/microstore/internal/auth/http"
	"github.com/microstore/microstore/internal/auth/service"
	"github.com/microstore/microstore/internal/auth/store"
	"github.com/microstore/microstore/internal/auth/store/drivers/sqlite"
	"github.com/microstore/microstore/pkg/jwtx"
	"github.com/microstore/microstore/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	keyManager *jwtx.KeyManager

	// Services
	tokenService        *service.TokenService
	authorizeService    *service.AuthorizeService
	seedService         *service.SeedService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	// Keys are ephemeral: generated at startup, held only in memory.
	// Every issued token dies with the process.
	keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:  cfg.Issuer,
		RSABits: cfg.RSABits,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keyManager = keyManager
	app.logger.Info("generated ephemeral signing key",
		"kid", keyManager.Signer.KID(),
		"issuer", cfg.Issuer,
	)
	app.logger.Warn("all previously issued tokens are now invalid due to key rotation on startup")

	app.initServices()

	ctx := slogx.WithContext(context.Background(), app.logger)
	if err := app.seedService.Seed(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed initial data: %w", err)
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Store:  app.db,
		Signer: app.keyManager.Signer,
		Issuer: app.cfg.Issuer,
	}

	app.authorizeService = &service.AuthorizeService{
		Store:   app.db,
		CodeTTL: 5 * time.Minute,
	}

	app.seedService = &service.SeedService{
		Store:      app.db,
		DevSecrets: app.cfg.DevSecrets,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.TokenService = app.tokenService
	router.AuthorizeService = app.authorizeService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
