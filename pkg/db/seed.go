package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/calldef/pkg/catalog"
	"github.com/morezero/calldef/pkg/registry"
)

const seedLogPrefix = "db:seed"

// SeedFromCatalog upserts every operation of cat in one transaction and
// returns how many were written. Idempotent.
func SeedFromCatalog(ctx context.Context, pool *pgxpool.Pool, cat *catalog.Catalog) (int, error) {
	if cat == nil {
		return 0, fmt.Errorf("%s - nil catalog", seedLogPrefix)
	}
	slog.Info(fmt.Sprintf("%s - seeding from catalog %s", seedLogPrefix, cat))

	entries, err := cat.Entries()
	if err != nil {
		return 0, fmt.Errorf("%s - catalog entries: %w", seedLogPrefix, err)
	}
	if len(entries) == 0 {
		slog.Info(fmt.Sprintf("%s - no operations to seed", seedLogPrefix))
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s - begin tx: %w", seedLogPrefix, err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := upsertDescriptor(ctx, tx, ParamsFromEntry(e)); err != nil {
			return 0, fmt.Errorf("%s - upsert %s: %w", seedLogPrefix, e.Name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s - commit: %w", seedLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - seeded %d operations", seedLogPrefix, len(entries)))
	return len(entries), nil
}

// LoadRegistry builds a registry from every stored descriptor.
func LoadRegistry(ctx context.Context, repo *Repository) (*registry.Registry, error) {
	rows, err := repo.ListDescriptors(ctx, "")
	if err != nil {
		return nil, err
	}
	entries, err := EntriesFromRows(rows)
	if err != nil {
		return nil, err
	}
	slog.Info(fmt.Sprintf("%s - loaded %d descriptors from database", seedLogPrefix, len(entries)))
	return registry.New(entries...)
}

// EntriesFromRows converts stored rows into registry entries.
func EntriesFromRows(rows []DescriptorRow) ([]registry.Entry, error) {
	entries := make([]registry.Entry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].Entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
