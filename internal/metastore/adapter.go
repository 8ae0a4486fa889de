// Package metastore writes dashboard membership rows directly into the
// Superset metadata database.
package metastore

import (
	"context"
	"errors"
)

// ErrDuplicateLink is returned by InsertLink when the pair already exists
var ErrDuplicateLink = errors.New("dashboard link already exists")

// ConnectionConfig contains metadata database connection parameters
type ConnectionConfig struct {
	DSN      string
	MaxConns int32
}

// Adapter defines the interface for metadata database drivers
type Adapter interface {
	// Driver returns the driver identifier (postgres, mysql, sqlite)
	Driver() string

	// Connect establishes connection to the metadata database
	Connect(ctx context.Context, config ConnectionConfig) error

	// Close closes the connection
	Close() error

	// HealthCheck verifies connection is alive
	HealthCheck(ctx context.Context) error

	// HasLink reports whether the chart is already on the dashboard
	HasLink(ctx context.Context, dashboardID, chartID int) (bool, error)

	// InsertLink adds the chart to the dashboard. A unique violation
	// is reported as ErrDuplicateLink.
	InsertLink(ctx context.Context, dashboardID, chartID int) error

	// ListLinks returns the chart ids on a dashboard in ascending order
	ListLinks(ctx context.Context, dashboardID int) ([]int, error)
}

// AdapterFactory creates a new adapter instance
type AdapterFactory func() Adapter
