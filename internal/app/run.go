package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/config"
	"marketplace-relay/internal/server"
)

// Run is the main entry point for the application
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	cfg := config.Load()

	// Initialize logging
	if err := logging.InitGlobalLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		return err
	}
	defer logging.MustSync()

	logging.Info("Starting marketplace relay",
		logging.Int("port", cfg.Port),
		logging.Bool("cached_credential", cfg.CachedCredentialEnabled()),
	)

	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize application
	app, err := New(ctx, cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	srv := server.New(app.Handler(), cfg.Addr(), cfg.TLSCertFile, cfg.TLSKeyFile, logging.GetGlobalLogger())
	serveErrs, err := srv.Start()
	if err != nil {
		logging.Error("Server failed to start", err)
		return err
	}
	app.Start()

	// Wait for interrupt signal or a fatal serve error
	select {
	case <-ctx.Done():
		logging.Info("Shutting down server...")
	case err, open := <-serveErrs:
		if open && err != nil {
			logging.Error("Server stopped unexpectedly", err)
			return err
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Error during app shutdown", logging.Err(err))
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server forced to shutdown", err)
		return err
	}

	logging.Info("Server exited")
	return nil
}
