package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearAll truncates the descriptor and journal tables. Schema is preserved;
// RESTART IDENTITY resets sequences.
func ClearAll(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing descriptor and journal tables", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE call_journal, call_descriptors RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Tables cleared", clearLogPrefix))
	return nil
}
