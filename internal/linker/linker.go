package linker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/layout"
	"github.com/Rrens/bi-genie/internal/superset"
)

// DashboardAPI is the part of the Superset client the linker needs
type DashboardAPI interface {
	CreateDashboard(ctx context.Context, dashboard superset.DashboardCreate) (int, error)
	UpdateDashboard(ctx context.Context, id int, update superset.DashboardUpdate) error
	UpdateChart(ctx context.Context, id int, update superset.ChartUpdate) error
	DashboardURL(id int) string
}

// Linker creates the dashboard for a round, places its charts and hands
// every object to the requesting user.
type Linker struct {
	api   DashboardAPI
	links domain.LinkStore
}

// New creates a linker
func New(api DashboardAPI, links domain.LinkStore) *Linker {
	return &Linker{api: api, links: links}
}

// Link builds the dashboard. On failure the returned dashboard, if non-nil,
// names what was already created; nothing is deleted.
func (l *Linker) Link(ctx context.Context, owner domain.Identity, title string, charts []domain.MaterializedChart, cells []domain.LayoutCell) (*domain.Dashboard, error) {
	titles := make(map[int]string, len(charts))
	for _, c := range charts {
		titles[c.ID] = c.Spec.Title
	}

	position, err := layout.BuildPositionJSON(cells, titles)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLinking, err)
	}

	owners := ownerIDs(owner)
	id, err := l.api.CreateDashboard(ctx, superset.DashboardCreate{
		DashboardTitle: title,
		Published:      true,
		PositionJSON:   position,
		Owners:         owners,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create dashboard: %v", domain.ErrLinking, err)
	}

	dashboard := &domain.Dashboard{
		ID:    id,
		Title: title,
		Cells: cells,
		Owner: owner,
		URL:   l.api.DashboardURL(id),
	}
	log.Info().Int("dashboard_id", id).Str("title", title).Msg("Dashboard created")

	for _, c := range charts {
		created, err := l.links.Link(ctx, id, c.ID)
		if err != nil {
			return dashboard, fmt.Errorf("%w: failed to link chart %d: %v", domain.ErrLinking, c.ID, err)
		}
		if !created {
			log.Debug().Int("dashboard_id", id).Int("chart_id", c.ID).Msg("Chart was already linked")
		}
	}

	if len(owners) == 0 {
		return dashboard, nil
	}

	if err := l.api.UpdateDashboard(ctx, id, superset.DashboardUpdate{Owners: owners}); err != nil {
		return dashboard, fmt.Errorf("%w: failed to set dashboard owner: %v", domain.ErrLinking, err)
	}
	for _, c := range charts {
		if err := l.api.UpdateChart(ctx, c.ID, superset.ChartUpdate{Owners: owners}); err != nil {
			return dashboard, fmt.Errorf("%w: failed to set owner of chart %d: %v", domain.ErrLinking, c.ID, err)
		}
	}

	return dashboard, nil
}

func ownerIDs(owner domain.Identity) []int {
	if owner.UserID <= 0 {
		return nil
	}
	return []int{owner.UserID}
}
