package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearCatalog truncates all catalog tables. Schema and migration history are preserved.
func ClearCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing catalog tables", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE
		operation_parameters,
		operations,
		service_versions,
		services
		RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Catalog cleared", clearLogPrefix))
	return nil
}
