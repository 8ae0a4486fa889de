package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Rrens/bi-genie/internal/metastore"
)

// Adapter implements metastore.Adapter for a SQLite metadata database,
// the default backend of a single-node Superset.
type Adapter struct {
	db *sql.DB
}

// NewAdapter creates a new SQLite adapter
func NewAdapter() metastore.Adapter {
	return &Adapter{}
}

// Driver returns the driver identifier
func (a *Adapter) Driver() string {
	return "sqlite"
}

// Connect opens the database file named by DSN
func (a *Adapter) Connect(ctx context.Context, config metastore.ConnectionConfig) error {
	path := strings.TrimPrefix(config.DSN, "sqlite://")
	if path == "" {
		return fmt.Errorf("database file path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)

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
	var n int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM dashboard_slices WHERE dashboard_id = ? AND slice_id = ?",
		dashboardID, chartID,
	).Scan(&n)
	return n > 0, err
}

// InsertLink adds a dashboard_slices row
func (a *Adapter) InsertLink(ctx context.Context, dashboardID, chartID int) error {
	_, err := a.db.ExecContext(ctx,
		"INSERT INTO dashboard_slices (dashboard_id, slice_id) VALUES (?, ?)",
		dashboardID, chartID,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
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
