package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deusflow/hotpush/internal/config"
	"github.com/deusflow/hotpush/internal/history"
	"github.com/deusflow/hotpush/internal/storage"
)

// OpenStore opens the history backend selected by HISTORY_DRIVER.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (history.Store, error) {
	switch cfg.HistoryDriver {
	case config.DriverFile, "":
		return storage.OpenFile(ctx, cfg.HistoryPath, logger)
	case config.DriverSQLite:
		return storage.OpenSQLite(ctx, cfg.HistoryPath, logger)
	case config.DriverPostgres:
		return storage.OpenPostgres(ctx, cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.HistoryDriver)
	}
}
