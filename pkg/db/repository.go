package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for the operation catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// =========================================================================
// SERVICES
// =========================================================================

// GetService finds a service by app and name. Returns (nil, nil) when absent.
func (r *Repository) GetService(ctx context.Context, app, name string) (*Service, error) {
	slog.Debug(fmt.Sprintf("%s - GetService app=%s name=%s", repoLogPrefix, app, name))

	var s Service
	err := r.pool.QueryRow(ctx,
		`SELECT id, app, name, description, created, modified
		 FROM services
		 WHERE app = $1 AND name = $2
		 LIMIT 1`, app, name,
	).Scan(&s.ID, &s.App, &s.Name, &s.Description, &s.Created, &s.Modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - GetService failed: %w", repoLogPrefix, err)
	}
	return &s, nil
}

// UpsertService creates or updates a service and returns its row.
func (r *Repository) UpsertService(ctx context.Context, app, name string, description *string) (*Service, error) {
	now := time.Now().UTC()
	var s Service
	err := r.pool.QueryRow(ctx,
		`INSERT INTO services (app, name, description, created, modified)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (app, name) DO UPDATE SET
		   description = COALESCE($3, services.description),
		   modified = $4
		 RETURNING id, app, name, description, created, modified`,
		app, name, description, now,
	).Scan(&s.ID, &s.App, &s.Name, &s.Description, &s.Created, &s.Modified)
	if err != nil {
		return nil, fmt.Errorf("%s - UpsertService failed: %w", repoLogPrefix, err)
	}
	return &s, nil
}

// CountServices returns the number of catalogued services.
func (r *Repository) CountServices(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)::int FROM services`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s - CountServices failed: %w", repoLogPrefix, err)
	}
	return n, nil
}

// =========================================================================
// VERSIONS
// =========================================================================

// GetServiceVersions returns every version of a service.
func (r *Repository) GetServiceVersions(ctx context.Context, serviceID string) ([]ServiceVersion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, service_id, version, status, created
		 FROM service_versions
		 WHERE service_id = $1
		 ORDER BY created DESC`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("%s - GetServiceVersions failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []ServiceVersion
	for rows.Next() {
		var v ServiceVersion
		if err := rows.Scan(&v.ID, &v.ServiceID, &v.Version, &v.Status, &v.Created); err != nil {
			return nil, fmt.Errorf("%s - GetServiceVersions scan failed: %w", repoLogPrefix, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpsertServiceVersion creates or updates one version of a service.
func (r *Repository) UpsertServiceVersion(ctx context.Context, serviceID, version, status string) (*ServiceVersion, error) {
	var v ServiceVersion
	err := r.pool.QueryRow(ctx,
		`INSERT INTO service_versions (service_id, version, status, created)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (service_id, version) DO UPDATE SET status = $3
		 RETURNING id, service_id, version, status, created`,
		serviceID, version, status, time.Now().UTC(),
	).Scan(&v.ID, &v.ServiceID, &v.Version, &v.Status, &v.Created)
	if err != nil {
		return nil, fmt.Errorf("%s - UpsertServiceVersion failed: %w", repoLogPrefix, err)
	}
	return &v, nil
}

// =========================================================================
// OPERATIONS
// =========================================================================

// GetOperation finds an operation in a version. Returns (nil, nil) when absent.
func (r *Repository) GetOperation(ctx context.Context, versionID, name string) (*Operation, error) {
	var op Operation
	err := r.pool.QueryRow(ctx,
		`SELECT id, version_id, name, kind, is_bound, is_collection_return, critical, criticality_path
		 FROM operations
		 WHERE version_id = $1 AND name = $2
		 LIMIT 1`, versionID, name,
	).Scan(&op.ID, &op.VersionID, &op.Name, &op.Kind, &op.IsBound, &op.IsCollectionReturn, &op.Critical, &op.CriticalityPath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - GetOperation failed: %w", repoLogPrefix, err)
	}
	return &op, nil
}

// GetParameters returns an operation's parameters in declaration order.
func (r *Repository) GetParameters(ctx context.Context, operationID string) ([]OperationParameter, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT operation_id, position, name, type, is_collection
		 FROM operation_parameters
		 WHERE operation_id = $1
		 ORDER BY position ASC`, operationID)
	if err != nil {
		return nil, fmt.Errorf("%s - GetParameters failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []OperationParameter
	for rows.Next() {
		var p OperationParameter
		if err := rows.Scan(&p.OperationID, &p.Position, &p.Name, &p.Type, &p.IsCollection); err != nil {
			return nil, fmt.Errorf("%s - GetParameters scan failed: %w", repoLogPrefix, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertOperation creates or updates an operation and replaces its parameters
// in one transaction.
func (r *Repository) UpsertOperation(ctx context.Context, op Operation, params []OperationParameter) (*Operation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s - UpsertOperation begin failed: %w", repoLogPrefix, err)
	}
	defer tx.Rollback(ctx)

	var out Operation
	err = tx.QueryRow(ctx,
		`INSERT INTO operations (version_id, name, kind, is_bound, is_collection_return, critical, criticality_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (version_id, name) DO UPDATE SET
		   kind = $3,
		   is_bound = $4,
		   is_collection_return = $5,
		   critical = $6,
		   criticality_path = $7
		 RETURNING id, version_id, name, kind, is_bound, is_collection_return, critical, criticality_path`,
		op.VersionID, op.Name, op.Kind, op.IsBound, op.IsCollectionReturn, op.Critical, op.CriticalityPath,
	).Scan(&out.ID, &out.VersionID, &out.Name, &out.Kind, &out.IsBound, &out.IsCollectionReturn, &out.Critical, &out.CriticalityPath)
	if err != nil {
		return nil, fmt.Errorf("%s - UpsertOperation failed: %w", repoLogPrefix, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM operation_parameters WHERE operation_id = $1`, out.ID); err != nil {
		return nil, fmt.Errorf("%s - UpsertOperation clear parameters failed: %w", repoLogPrefix, err)
	}
	batch := &pgx.Batch{}
	for i, p := range params {
		batch.Queue(
			`INSERT INTO operation_parameters (operation_id, position, name, type, is_collection)
			 VALUES ($1, $2, $3, $4, $5)`,
			out.ID, i, p.Name, p.Type, p.IsCollection)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return nil, fmt.Errorf("%s - UpsertOperation insert parameters failed: %w", repoLogPrefix, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s - UpsertOperation commit failed: %w", repoLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - UpsertOperation %s (%d parameters)", repoLogPrefix, out.Name, len(params)))
	return &out, nil
}
