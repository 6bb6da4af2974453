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

	httpapi "github.com/microstore/microstore/internal/orders/http"
	"github.com/microstore/microstore/internal/orders/inventory"
	"github.com/microstore/microstore/internal/orders/service"
	"github.com/microstore/microstore/internal/orders/store"
	"github.com/microstore/microstore/internal/orders/store/drivers/sqlite"
	"github.com/microstore/microstore/pkg/authsdk"
	"github.com/microstore/microstore/pkg/guard"
	"github.com/microstore/microstore/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the orders service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db    store.Store
	guard *guard.Guard

	orderService *service.OrderService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "orders-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	g, err := guard.New(guard.Options{
		AuthBaseURL: cfg.AuthBaseURL,
		Issuer:      cfg.Issuer,
		KeyTTL:      cfg.KeyTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token guard: %w", err)
	}
	app.guard = g

	// The inventory client obtains its own client-credentials token and
	// caches it until shortly before expiry.
	tokens := authsdk.NewTokenSource(
		authsdk.NewSDKClient(cfg.AuthBaseURL),
		cfg.ClientID,
		cfg.ClientSecret,
		[]string{"inventory.read", "inventory.write"},
	)
	app.orderService = &service.OrderService{
		Store:     app.db,
		Inventory: inventory.NewClient(cfg.InventoryBaseURL, tokens),
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("orders service starting", "port", app.cfg.Port, "version", BuildVersion)

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
	app.logger.Info("shutting down orders service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("orders service stopped")
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

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.guard,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.OrderService = app.orderService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
