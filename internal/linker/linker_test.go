package linker_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/layout"
	"github.com/Rrens/bi-genie/internal/linker"
	"github.com/Rrens/bi-genie/internal/metastore/rest"
	"github.com/Rrens/bi-genie/internal/superset"
	"github.com/Rrens/bi-genie/internal/superset/supersettest"
)

func createCharts(t *testing.T, client *superset.Client, titles ...string) []domain.MaterializedChart {
	t.Helper()
	var charts []domain.MaterializedChart
	for _, title := range titles {
		id, err := client.CreateChart(context.Background(), superset.ChartCreate{SliceName: title, VizType: "pie", DatasourceID: 3, DatasourceType: "table", Params: "{}"})
		require.NoError(t, err)
		charts = append(charts, domain.MaterializedChart{ID: id, Spec: domain.ChartSpec{Title: title, Kind: domain.ChartKindBar}})
	}
	return charts
}

func TestLink(t *testing.T) {
	srv := supersettest.NewServer()
	defer srv.Close()
	client := srv.Client()

	charts := createCharts(t, client, "Revenue over time", "Revenue by region")
	cells := layout.Compute(charts, layout.DefaultOptions())
	owner := domain.Identity{UserID: 7, Username: "alice"}

	dashboard, err := linker.New(client, rest.NewLinkStore(client)).Link(context.Background(), owner, "Sales", charts, cells)
	require.NoError(t, err)

	assert.Equal(t, "http://superset.example/superset/dashboard/"+strconv.Itoa(dashboard.ID)+"/", dashboard.URL)

	rec, ok := srv.Dashboard(dashboard.ID)
	require.True(t, ok)
	assert.Equal(t, "Sales", rec.Create.DashboardTitle)
	assert.True(t, rec.Create.Published)
	assert.Equal(t, []int{7}, rec.Owners)

	var position map[string]struct {
		Meta struct {
			ChartID int `json:"chartId"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal([]byte(rec.Create.PositionJSON), &position))
	assert.Equal(t, charts[0].ID, position["CHART-1"].Meta.ChartID)
	assert.Equal(t, charts[1].ID, position["CHART-2"].Meta.ChartID)

	for _, c := range charts {
		chart, ok := srv.Chart(c.ID)
		require.True(t, ok)
		assert.Equal(t, []int{dashboard.ID}, chart.Dashboards)
		assert.Equal(t, []int{7}, chart.Owners)
	}
}

type failingLinks struct{}

func (failingLinks) Link(ctx context.Context, dashboardID, chartID int) (bool, error) {
	return false, errors.New("connection reset")
}

func (failingLinks) Links(ctx context.Context, dashboardID int) ([]int, error) {
	return nil, nil
}

func TestLink_FailureKeepsDashboard(t *testing.T) {
	srv := supersettest.NewServer()
	defer srv.Close()
	client := srv.Client()

	charts := createCharts(t, client, "Revenue")
	cells := layout.Compute(charts, layout.DefaultOptions())

	dashboard, err := linker.New(client, failingLinks{}).Link(context.Background(), domain.Identity{UserID: 7}, "Sales", charts, cells)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLinking))
	require.NotNil(t, dashboard)
	assert.NotZero(t, dashboard.ID)
	_, exists := srv.Dashboard(dashboard.ID)
	assert.True(t, exists)
}

func TestLink_DashboardCreateFails(t *testing.T) {
	srv := supersettest.NewServer()
	defer srv.Close()

	client := superset.NewClient(superset.Options{BaseURL: srv.URL, AdminUser: "admin", AdminPassword: "wrong"})

	dashboard, err := linker.New(client, failingLinks{}).Link(context.Background(), domain.Identity{UserID: 7}, "Sales", nil, nil)

	assert.Nil(t, dashboard)
	assert.True(t, errors.Is(err, domain.ErrLinking))
}
