package metastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// LinkStore implements domain.LinkStore on top of a metadata adapter.
// Linking checks for the pair first and only inserts when it is absent;
// a concurrent insert of the same pair is treated as already linked.
type LinkStore struct {
	router *Router
	driver string
	config ConnectionConfig
}

// NewLinkStore creates a link store that connects lazily through router
func NewLinkStore(router *Router, driver string, config ConnectionConfig) *LinkStore {
	return &LinkStore{router: router, driver: driver, config: config}
}

func (s *LinkStore) adapter(ctx context.Context) (Adapter, error) {
	return s.router.GetAdapter(ctx, s.driver, s.config)
}

// Link adds chartID to dashboardID if it is not already there
func (s *LinkStore) Link(ctx context.Context, dashboardID, chartID int) (bool, error) {
	adapter, err := s.adapter(ctx)
	if err != nil {
		return false, err
	}

	exists, err := adapter.HasLink(ctx, dashboardID, chartID)
	if err != nil {
		return false, fmt.Errorf("failed to check link: %w", err)
	}
	if exists {
		log.Debug().Int("dashboard_id", dashboardID).Int("chart_id", chartID).Msg("Chart already linked")
		return false, nil
	}

	if err := adapter.InsertLink(ctx, dashboardID, chartID); err != nil {
		if errors.Is(err, ErrDuplicateLink) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert link: %w", err)
	}
	return true, nil
}

// Links returns the charts on a dashboard
func (s *LinkStore) Links(ctx context.Context, dashboardID int) ([]int, error) {
	adapter, err := s.adapter(ctx)
	if err != nil {
		return nil, err
	}
	return adapter.ListLinks(ctx, dashboardID)
}

// Ping verifies the metadata database is reachable
func (s *LinkStore) Ping(ctx context.Context) error {
	adapter, err := s.adapter(ctx)
	if err != nil {
		return err
	}
	return adapter.HealthCheck(ctx)
}
