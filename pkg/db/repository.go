package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

const defaultRecentCalls = 50

// Repository provides database access for stored descriptors and the call journal.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// =========================================================================
// DESCRIPTOR OPERATIONS
// =========================================================================

const descriptorColumns = `id, name, api_type, method, operation_path, path_params, query_params,
	body_params, omit_key_when_value_undefined, description, revision, created, modified`

// UpsertDescriptor creates or updates a descriptor. Revision is bumped on update.
func (r *Repository) UpsertDescriptor(ctx context.Context, params UpsertDescriptorParams) (*DescriptorRow, error) {
	slog.Info(fmt.Sprintf("%s - UpsertDescriptor name=%s", repoLogPrefix, params.Name))
	return upsertDescriptor(ctx, r.pool, params)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func upsertDescriptor(ctx context.Context, q queryRower, params UpsertDescriptorParams) (*DescriptorRow, error) {
	pathParams := params.PathParams
	if pathParams == nil {
		pathParams = []string{}
	}
	row := q.QueryRow(ctx,
		`INSERT INTO call_descriptors (name, api_type, method, operation_path, path_params, query_params,
		                               body_params, omit_key_when_value_undefined, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (name) DO UPDATE SET
		   api_type = EXCLUDED.api_type,
		   method = EXCLUDED.method,
		   operation_path = EXCLUDED.operation_path,
		   path_params = EXCLUDED.path_params,
		   query_params = EXCLUDED.query_params,
		   body_params = EXCLUDED.body_params,
		   omit_key_when_value_undefined = EXCLUDED.omit_key_when_value_undefined,
		   description = COALESCE(EXCLUDED.description, call_descriptors.description),
		   revision = call_descriptors.revision + 1,
		   modified = NOW()
		 RETURNING `+descriptorColumns,
		params.Name, params.APIType, params.Method, params.OperationPath, pathParams,
		params.QueryParams, params.BodyParams, params.OmitKeyWhenValueUndefined, params.Description)
	return scanDescriptor(row)
}

// GetDescriptor finds a descriptor by qualified name. Returns nil when absent.
func (r *Repository) GetDescriptor(ctx context.Context, name string) (*DescriptorRow, error) {
	slog.Debug(fmt.Sprintf("%s - GetDescriptor name=%s", repoLogPrefix, name))
	row := r.pool.QueryRow(ctx,
		`SELECT `+descriptorColumns+` FROM call_descriptors WHERE name = $1 LIMIT 1`, name)
	d, err := scanDescriptor(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// ListDescriptors lists descriptors sorted by name, optionally for one API type.
func (r *Repository) ListDescriptors(ctx context.Context, apiType string) ([]DescriptorRow, error) {
	query := `SELECT ` + descriptorColumns + ` FROM call_descriptors`
	args := []interface{}{}
	if apiType != "" {
		query += ` WHERE api_type = $1`
		args = append(args, apiType)
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - ListDescriptors failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []DescriptorRow
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - ListDescriptors rows: %w", repoLogPrefix, err)
	}
	return out, nil
}

// DeleteDescriptor removes a descriptor. Reports whether a row was removed.
func (r *Repository) DeleteDescriptor(ctx context.Context, name string) (bool, error) {
	slog.Info(fmt.Sprintf("%s - DeleteDescriptor name=%s", repoLogPrefix, name))
	tag, err := r.pool.Exec(ctx, `DELETE FROM call_descriptors WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("%s - DeleteDescriptor failed: %w", repoLogPrefix, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanDescriptor(row pgx.Row) (*DescriptorRow, error) {
	var d DescriptorRow
	err := row.Scan(
		&d.ID, &d.Name, &d.APIType, &d.Method, &d.OperationPath,
		&d.PathParams, &d.QueryParams, &d.BodyParams,
		&d.OmitKeyWhenValueUndefined, &d.Description, &d.Revision, &d.Created, &d.Modified,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan descriptor failed: %w", repoLogPrefix, err)
	}
	return &d, nil
}

// =========================================================================
// CALL JOURNAL
// =========================================================================

// RecordCall appends a call to the journal and fills in ID and Created.
func (r *Repository) RecordCall(ctx context.Context, rec *CallRecord) error {
	slog.Debug(fmt.Sprintf("%s - RecordCall operation=%s success=%v", repoLogPrefix, rec.Operation, rec.IsSuccess))
	err := r.pool.QueryRow(ctx,
		`INSERT INTO call_journal (request_id, operation, api, stage, method, path, is_success,
		                           error_code, status, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created`,
		rec.RequestID, rec.Operation, rec.API, rec.Stage, rec.Method, rec.Path, rec.IsSuccess,
		rec.ErrorCode, rec.Status, rec.DurationMs,
	).Scan(&rec.ID, &rec.Created)
	if err != nil {
		return fmt.Errorf("%s - RecordCall failed: %w", repoLogPrefix, err)
	}
	return nil
}

// ListRecentCalls returns the newest journal rows first. limit < 1 uses the default.
func (r *Repository) ListRecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit < 1 {
		limit = defaultRecentCalls
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, request_id, operation, api, stage, method, path, is_success,
		        error_code, status, duration_ms, created
		 FROM call_journal
		 ORDER BY created DESC, id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - ListRecentCalls failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var c CallRecord
		if err := rows.Scan(
			&c.ID, &c.RequestID, &c.Operation, &c.API, &c.Stage, &c.Method, &c.Path, &c.IsSuccess,
			&c.ErrorCode, &c.Status, &c.DurationMs, &c.Created,
		); err != nil {
			return nil, fmt.Errorf("%s - ListRecentCalls scan failed: %w", repoLogPrefix, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
