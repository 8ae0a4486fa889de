// Package rest links charts to dashboards through the Superset REST API,
// for deployments where the metadata database is not reachable.
package rest

import (
	"context"
	"fmt"
	"sort"

	"github.com/Rrens/bi-genie/internal/superset"
)

// ChartAPI is the part of the Superset client the link store needs
type ChartAPI interface {
	GetChart(ctx context.Context, id int) (*superset.Chart, error)
	UpdateChart(ctx context.Context, id int, update superset.ChartUpdate) error
	DashboardCharts(ctx context.Context, dashboardID int) ([]int, error)
}

// LinkStore implements domain.LinkStore with chart updates
type LinkStore struct {
	charts ChartAPI
}

// NewLinkStore creates a REST link store
func NewLinkStore(charts ChartAPI) *LinkStore {
	return &LinkStore{charts: charts}
}

// Link adds dashboardID to the chart's dashboards unless it is already there
func (s *LinkStore) Link(ctx context.Context, dashboardID, chartID int) (bool, error) {
	chart, err := s.charts.GetChart(ctx, chartID)
	if err != nil {
		return false, fmt.Errorf("failed to get chart %d: %w", chartID, err)
	}

	current := chart.DashboardIDs()
	for _, id := range current {
		if id == dashboardID {
			return false, nil
		}
	}

	update := superset.ChartUpdate{Dashboards: append(current, dashboardID)}
	if err := s.charts.UpdateChart(ctx, chartID, update); err != nil {
		return false, fmt.Errorf("failed to link chart %d: %w", chartID, err)
	}
	return true, nil
}

// Links returns the charts on a dashboard in ascending order
func (s *LinkStore) Links(ctx context.Context, dashboardID int) ([]int, error) {
	ids, err := s.charts.DashboardCharts(ctx, dashboardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboard charts: %w", err)
	}
	sort.Ints(ids)
	return ids, nil
}
