package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rrens/bi-genie/internal/metastore"
)

const uniqueViolation = "23505"

// Adapter implements metastore.Adapter for a PostgreSQL metadata database
type Adapter struct {
	pool *pgxpool.Pool
}

// NewAdapter creates a new PostgreSQL adapter
func NewAdapter() metastore.Adapter {
	return &Adapter{}
}

// Driver returns the driver identifier
func (a *Adapter) Driver() string {
	return "postgres"
}

// Connect establishes connection to PostgreSQL
func (a *Adapter) Connect(ctx context.Context, config metastore.ConnectionConfig) error {
	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	poolConfig.MaxConns = 4
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping: %w", err)
	}

	a.pool = pool
	return nil
}

// Close closes the connection pool
func (a *Adapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

// HealthCheck verifies connection is alive
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.pool == nil {
		return fmt.Errorf("not connected")
	}
	return a.pool.Ping(ctx)
}

// HasLink reports whether the pair exists in dashboard_slices
func (a *Adapter) HasLink(ctx context.Context, dashboardID, chartID int) (bool, error) {
	var exists bool
	err := a.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM dashboard_slices WHERE dashboard_id = $1 AND slice_id = $2)`,
		dashboardID, chartID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// InsertLink adds a dashboard_slices row
func (a *Adapter) InsertLink(ctx context.Context, dashboardID, chartID int) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO dashboard_slices (dashboard_id, slice_id) VALUES ($1, $2)`,
		dashboardID, chartID,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return metastore.ErrDuplicateLink
	}
	return err
}

// ListLinks returns slice ids on a dashboard
func (a *Adapter) ListLinks(ctx context.Context, dashboardID int) ([]int, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT slice_id FROM dashboard_slices WHERE dashboard_id = $1 ORDER BY slice_id`,
		dashboardID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}
