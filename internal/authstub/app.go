package authstub

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

	"github.com/aussiebroadwan/authclient/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application runs the stub as a standalone HTTP service.
type Application struct {
	cfg    Config
	logger *slog.Logger

	stub   *Server
	server *http.Server
}

// NewApplication wires the stub, its logger and the HTTP server. When
// seedEmail is set, an account is created for it up front.
func NewApplication(cfg Config, seedEmail, seedPassword string) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authstub",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	stub, err := New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize stub: %w", err)
	}
	app.stub = stub

	if seedEmail != "" {
		if _, err := stub.CreateUser(seedEmail, seedPassword, "Seed User"); err != nil {
			return nil, fmt.Errorf("failed to seed user: %w", err)
		}
		app.logger.Info("seed user created", "email", seedEmail)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           stub,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return app, nil
}

// Stub exposes the server for hooks such as MagicLink.
func (app *Application) Stub() *Server { return app.stub }

// Run serves until SIGINT/SIGTERM, then shuts down gracefully.
func (app *Application) Run() error {
	app.stub.StartHousekeeping(app.cfg.HousekeepingInterval)
	app.logger.Info("authstub starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		app.stub.StopHousekeeping()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown drains in-flight requests within ShutdownGracePeriod.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authstub...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	var err error
	if err = app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		_ = app.server.Close()
	}
	app.stub.StopHousekeeping()

	app.logger.Info("authstub stopped")
	return err
}
