package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

const poolTestPrefix = "db:pool_test"

func TestNewPool_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "invalid://not-a-valid-database-url"} {
		pool, err := NewPool(context.Background(), u)
		if err == nil {
			pool.Close()
			t.Fatalf("%s - expected error for %q", poolTestPrefix, u)
		}
		if pool != nil {
			t.Errorf("%s - expected nil pool on error for %q", poolTestPrefix, u)
		}
	}
}

func TestApplyPoolDefaults(t *testing.T) {
	tests := []struct {
		url     string
		wantMax int32
		wantMin int32
	}{
		{"postgres://u:p@localhost:5432/calldef", poolMaxConns, poolMinConns},
		{"postgres://u:p@localhost:5432/calldef?pool_max_conns=5", 5, poolMinConns},
		{"host=localhost dbname=calldef pool_min_conns=1", poolMaxConns, 1},
	}
	for _, tt := range tests {
		cfg, err := pgxpool.ParseConfig(tt.url)
		if err != nil {
			t.Fatalf("%s - ParseConfig(%q): %v", poolTestPrefix, tt.url, err)
		}
		applyPoolDefaults(cfg, tt.url)
		if cfg.MaxConns != tt.wantMax || cfg.MinConns != tt.wantMin {
			t.Errorf("%s - %q: max=%d min=%d, want %d/%d", poolTestPrefix, tt.url, cfg.MaxConns, cfg.MinConns, tt.wantMax, tt.wantMin)
		}
	}
}
