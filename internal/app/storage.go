package app

import (
	"context"
	"fmt"

	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/config"
	"marketplace-relay/internal/storage"
	"marketplace-relay/internal/storage/memory"
	"marketplace-relay/internal/storage/postgres"
	"marketplace-relay/internal/storage/sqlite"
)

func (app *App) initializeStorage(ctx context.Context) error {
	store, err := OpenStore(ctx, app.Config, logging.GetGlobalLogger())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.Store = store
	return nil
}

// OpenStore opens the order store selected by DATABASE_TYPE
func OpenStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (storage.OrderStore, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	switch cfg.DatabaseType {
	case "postgres":
		logger.Info("Database: PostgreSQL")
		store, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		logger.Info("Database: SQLite", logging.String("path", cfg.DatabasePath))
		store, err := sqlite.Open(cfg.DatabasePath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory", "":
		logger.Info("Database: in-memory, orders are lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}
}
