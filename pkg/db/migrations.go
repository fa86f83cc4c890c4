package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationsLogPrefix = "db:migrations"

const downSuffix = ".down.sql"

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	applied TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migration is one versioned schema change. Version is the file name
// without ".sql"; Down is empty when no "<version>.down.sql" exists.
type Migration struct {
	Version string
	Up      string
	Down    string
}

// MigrationState pairs a migration with the time it was applied.
type MigrationState struct {
	Version string
	Applied *time.Time
}

// LoadMigrations reads dir and pairs "<version>.sql" with "<version>.down.sql".
// Migrations are sorted by version.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	ups := map[string]string{}
	downs := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, name, err)
		}
		if strings.HasSuffix(name, downSuffix) {
			downs[strings.TrimSuffix(name, downSuffix)] = string(data)
			continue
		}
		ups[strings.TrimSuffix(name, ".sql")] = string(data)
	}

	for version := range downs {
		if _, ok := ups[version]; !ok {
			return nil, fmt.Errorf("%s - %s%s has no up migration", migrationsLogPrefix, version, downSuffix)
		}
	}

	out := make([]Migration, 0, len(ups))
	for version, up := range ups {
		out = append(out, Migration{Version: version, Up: up, Down: downs[version]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	slog.Info(fmt.Sprintf("%s - Loaded %d migrations from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

// pending returns the migrations not in applied, keeping order.
func pending(all []Migration, applied map[string]time.Time) []Migration {
	var out []Migration
	for _, m := range all {
		if _, ok := applied[m.Version]; !ok {
			out = append(out, m)
		}
	}
	return out
}

// lastApplied returns the highest applied version that is also known in all.
func lastApplied(all []Migration, applied map[string]time.Time) (Migration, bool) {
	for i := len(all) - 1; i >= 0; i-- {
		if _, ok := applied[all[i].Version]; ok {
			return all[i], true
		}
	}
	return Migration{}, false
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]time.Time, error) {
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("%s - create schema_migrations: %w", migrationsLogPrefix, err)
	}
	rows, err := pool.Query(ctx, `SELECT version, applied FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - list applied migrations: %w", migrationsLogPrefix, err)
	}
	defer rows.Close()

	out := map[string]time.Time{}
	for rows.Next() {
		var (
			version string
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		out[version] = at
	}
	return out, rows.Err()
}

// RunMigrations applies each pending migration in its own transaction and
// returns how many ran.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) (int, error) {
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return 0, err
	}
	todo := pending(migrations, applied)
	slog.Info(fmt.Sprintf("%s - Running %d of %d migrations", migrationsLogPrefix, len(todo), len(migrations)))

	for i, m := range todo {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		})
		if err != nil {
			return i, fmt.Errorf("%s - migration %s failed: %w", migrationsLogPrefix, m.Version, err)
		}
		slog.Info(fmt.Sprintf("%s - Applied %s", migrationsLogPrefix, m.Version))
	}
	return len(todo), nil
}

// MigrationStatus reports every migration in dir with its applied time.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, dir string) ([]MigrationState, error) {
	all, err := LoadMigrations(dir)
	if err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationState, 0, len(all))
	for _, m := range all {
		st := MigrationState{Version: m.Version}
		if at, ok := applied[m.Version]; ok {
			st.Applied = &at
		}
		out = append(out, st)
	}
	return out, nil
}

// MigrationDown rolls back the most recently applied migration of dir and
// returns its version. It fails when that migration has no down file.
func MigrationDown(ctx context.Context, pool *pgxpool.Pool, dir string) (string, error) {
	all, err := LoadMigrations(dir)
	if err != nil {
		return "", err
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return "", err
	}
	m, ok := lastApplied(all, applied)
	if !ok {
		return "", fmt.Errorf("%s - nothing to roll back", migrationsLogPrefix)
	}
	if strings.TrimSpace(m.Down) == "" {
		return "", fmt.Errorf("%s - %s has no %s file", migrationsLogPrefix, m.Version, downSuffix)
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.Down); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%s - rollback of %s failed: %w", migrationsLogPrefix, m.Version, err)
	}
	slog.Info(fmt.Sprintf("%s - Rolled back %s", migrationsLogPrefix, m.Version))
	return m.Version, nil
}
