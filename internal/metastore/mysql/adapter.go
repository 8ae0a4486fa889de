package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/Rrens/bi-genie/internal/metastore"
)

const duplicateEntry = 1062

// Adapter implements metastore.Adapter for a MySQL metadata database
type Adapter struct {
	db *sql.DB
}

// NewAdapter creates a new MySQL adapter
func NewAdapter() metastore.Adapter {
	return &Adapter{}
}

// Driver returns the driver identifier
func (a *Adapter) Driver() string {
	return "mysql"
}

// Connect establishes connection to MySQL. DSN uses the driver's
// user:pass@tcp(host:port)/db form.
func (a *Adapter) Connect(ctx context.Context, config metastore.ConnectionConfig) error {
	cfg, err := mysql.ParseDSN(config.DSN)
	if err != nil {
		return fmt.Errorf("failed to parse dsn: %w", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}

	maxConns := 4
	if config.MaxConns > 0 {
		maxConns = int(config.MaxConns)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping: %w", err)
	}

	a.db = db
	return nil
}

// Close closes the connection
func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// HealthCheck verifies connection is alive
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("not connected")
	}
	return a.db.PingContext(ctx)
}

// HasLink reports whether the pair exists in dashboard_slices
func (a *Adapter) HasLink(ctx context.Context, dashboardID, chartID int) (bool, error) {
	var exists bool
	err := a.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM dashboard_slices WHERE dashboard_id = ? AND slice_id = ?)",
		dashboardID, chartID,
	).Scan(&exists)
	return exists, err
}

// InsertLink adds a dashboard_slices row
func (a *Adapter) InsertLink(ctx context.Context, dashboardID, chartID int) error {
	_, err := a.db.ExecContext(ctx,
		"INSERT INTO dashboard_slices (dashboard_id, slice_id) VALUES (?, ?)",
		dashboardID, chartID,
	)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == duplicateEntry {
		return metastore.ErrDuplicateLink
	}
	return err
}

// ListLinks returns slice ids on a dashboard
func (a *Adapter) ListLinks(ctx context.Context, dashboardID int) ([]int, error) {
	rows, err := a.db.QueryContext(ctx,
		"SELECT slice_id FROM dashboard_slices WHERE dashboard_id = ? ORDER BY slice_id",
		dashboardID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
