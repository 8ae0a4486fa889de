package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/generator"
	"github.com/Rrens/bi-genie/internal/linker"
	"github.com/Rrens/bi-genie/internal/llm"
	"github.com/Rrens/bi-genie/internal/materializer"
	"github.com/Rrens/bi-genie/internal/metastore/rest"
	"github.com/Rrens/bi-genie/internal/permission"
	"github.com/Rrens/bi-genie/internal/repository/memory"
	"github.com/Rrens/bi-genie/internal/superset"
	"github.com/Rrens/bi-genie/internal/superset/supersettest"
	"github.com/Rrens/bi-genie/internal/validator"
)

// pipeline wires the real stages against a fake Superset and a scripted model
type pipeline struct {
	srv      *supersettest.Server
	model    *MockLLMProvider
	sessions *memory.SessionStore
	svc      *DashboardService
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	srv := supersettest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddDataset(3, "sales_data", "order_date", "region", "revenue")
	srv.AddDataset(9, "hr_salaries", "employee", "salary")
	srv.AddUser("alice-token", superset.User{ID: 7, Username: "alice", IsActive: true}, 3)

	client := srv.Client()
	model := new(MockLLMProvider)
	router := llm.NewRouter("mock")
	router.RegisterProvider(model)
	sessions := memory.NewSessionStore(domain.DefaultSessionTTL)

	svc := NewDashboardService(Deps{
		Resolver:     permission.NewResolver(client, permission.Options{}),
		Generator:    generator.New(router, generator.Options{HistoryTurns: 6}),
		Validator:    validator.New(nil),
		Materializer: materializer.New(client, 4),
		Linker:       linker.New(client, rest.NewLinkStore(client)),
		Sessions:     sessions,
	})

	return &pipeline{srv: srv, model: model, sessions: sessions, svc: svc}
}

func (p *pipeline) answer(content string) {
	p.model.On("GenerateProposal", mock.Anything, mock.Anything, mock.Anything).
		Return(&llm.Response{Content: content, Model: "mock-1"}, nil)
}

func barChart(datasetID int, title string) string {
	return fmt.Sprintf(`{"dataset_id": %d, "kind": "bar", "title": %q, "metrics": [{"column": "revenue", "aggregate": "SUM"}], "dimensions": ["region"]}`, datasetID, title)
}

func TestFlow_SalesDashboard(t *testing.T) {
	p := newPipeline(t)
	p.answer(`{"title": "Sales overview", "charts": [
		{"dataset_id": 3, "kind": "time_series", "title": "Revenue over time", "metrics": [{"column": "revenue", "aggregate": "SUM"}], "dimensions": ["order_date"]},
		{"dataset_id": 3, "kind": "bar", "title": "Revenue by region", "metrics": [{"column": "revenue", "aggregate": "SUM"}], "dimensions": ["region"]}
	]}`)

	report, err := p.svc.Submit(context.Background(), domain.SubmitRequest{Message: "Show revenue by region and over time", SessionID: "s1"}, "alice-token")
	require.NoError(t, err)

	assert.Equal(t, domain.ReportSuccess, report.Status)
	require.Len(t, report.ChartIDs, 2)
	require.Len(t, report.Layout, 2)
	assert.Equal(t, 0, report.Layout[0].Row)
	assert.Equal(t, 0, report.Layout[0].Column)
	assert.Equal(t, 0, report.Layout[1].Row)
	assert.Equal(t, 6, report.Layout[1].Column)

	require.NotNil(t, report.DashboardID)
	dashboardID := *report.DashboardID
	dash, ok := p.srv.Dashboard(dashboardID)
	require.True(t, ok)
	assert.Equal(t, "Sales overview", dash.Create.DashboardTitle)
	assert.Equal(t, []int{7}, dash.Owners)

	for _, id := range report.ChartIDs {
		chart, ok := p.srv.Chart(id)
		require.True(t, ok)
		assert.Equal(t, []int{dashboardID}, chart.Dashboards)
		assert.Equal(t, []int{7}, chart.Owners)
		assert.Equal(t, 3, chart.Create.DatasourceID)
	}

	turns, err := p.svc.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "Show revenue by region and over time", turns[0].Request)
	assert.Equal(t, report.ChartIDs, turns[0].Outcome.ChartIDs)
}

func TestFlow_ProposalTruncatedToSix(t *testing.T) {
	p := newPipeline(t)
	charts := make([]string, 8)
	for i := range charts {
		charts[i] = barChart(3, fmt.Sprintf("Chart %d", i+1))
	}
	p.answer(`{"title": "Many", "charts": [` + strings.Join(charts, ",") + `]}`)

	report, err := p.svc.Submit(context.Background(), domain.SubmitRequest{Message: "everything", SessionID: "s1"}, "alice-token")
	require.NoError(t, err)

	assert.Len(t, report.ChartIDs, 6)
	assert.Equal(t, 2, report.Truncated)
	assert.Equal(t, 6, p.srv.ChartCreates)

	titles := map[string]bool{}
	for _, id := range report.ChartIDs {
		chart, _ := p.srv.Chart(id)
		titles[chart.Create.SliceName] = true
	}
	assert.False(t, titles["Chart 7"])
	assert.False(t, titles["Chart 8"])
}

func TestFlow_PartialMaterialization(t *testing.T) {
	p := newPipeline(t)
	p.srv.FailChart = func(c superset.ChartCreate) string {
		if c.SliceName == "Broken" {
			return "Unknown column used in metrics"
		}
		return ""
	}
	p.answer(`{"title": "Sales", "charts": [` + barChart(3, "First") + `,` + barChart(3, "Broken") + `,` + barChart(3, "Third") + `]}`)

	report, err := p.svc.Submit(context.Background(), domain.SubmitRequest{Message: "revenue", SessionID: "s1"}, "alice-token")
	require.NoError(t, err)

	assert.Equal(t, domain.ReportPartial, report.Status)
	require.NotNil(t, report.Failure)
	assert.Equal(t, domain.FailurePartialMaterialization, report.Failure.Kind)
	assert.Equal(t, "1 of 3 charts could not be created", report.Failure.Message)
	assert.Len(t, report.ChartIDs, 2)
	require.Len(t, report.FailedCharts, 1)
	assert.Equal(t, 1, report.FailedCharts[0].Index)
	assert.Equal(t, domain.StageMaterializing, report.FailedCharts[0].Stage)

	require.NotNil(t, report.DashboardID)
	links, err := p.srv.Client().DashboardCharts(context.Background(), *report.DashboardID)
	require.NoError(t, err)
	assert.ElementsMatch(t, report.ChartIDs, links)
}

func TestFlow_ForeignDatasetsCreateNothing(t *testing.T) {
	p := newPipeline(t)
	p.answer(`{"title": "HR", "charts": [{"dataset_id": 9, "kind": "bar", "title": "Salaries", "metrics": [{"column": "salary", "aggregate": "AVG"}], "dimensions": ["employee"]}]}`)

	report, err := p.svc.Submit(context.Background(), domain.SubmitRequest{Message: "salaries", SessionID: "s1"}, "alice-token")

	assert.True(t, errors.Is(err, domain.ErrNoValidCharts))
	assert.Equal(t, domain.FailureNoValidCharts, report.Failure.Kind)
	assert.Equal(t, 0, p.srv.ChartCreates)
	assert.Empty(t, p.srv.Dashboards)
}

func TestFlow_UnknownTokenRejected(t *testing.T) {
	p := newPipeline(t)

	report, err := p.svc.Submit(context.Background(), domain.SubmitRequest{Message: "revenue", SessionID: "s1"}, "stale-token")

	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))
	assert.Equal(t, domain.FailureUnauthenticated, report.Failure.Kind)
	p.model.AssertNotCalled(t, "GenerateProposal", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, p.sessions.Len())
}

func TestFlow_FollowUpSeesHistory(t *testing.T) {
	p := newPipeline(t)
	p.model.On("GenerateProposal", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return len(req.History) == 0
	}), mock.Anything).Return(&llm.Response{Content: `{"title": "Sales", "charts": [` + barChart(3, "Revenue by region") + `]}`}, nil).Once()
	p.model.On("GenerateProposal", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return len(req.History) == 1 && req.History[0].Request == "revenue by region"
	}), mock.Anything).Return(&llm.Response{Content: `{"title": "Sales 2", "charts": [` + barChart(3, "Again") + `]}`}, nil).Once()

	ctx := context.Background()
	_, err := p.svc.Submit(ctx, domain.SubmitRequest{Message: "revenue by region", SessionID: "s1"}, "alice-token")
	require.NoError(t, err)
	_, err = p.svc.Submit(ctx, domain.SubmitRequest{Message: "same but again", SessionID: "s1"}, "alice-token")
	require.NoError(t, err)

	p.model.AssertExpectations(t)

	turns, err := p.svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestFlow_ExpiredSessionStartsFresh(t *testing.T) {
	p := newPipeline(t)
	now := time.Now()
	p.svc.now = func() time.Time { return now }
	p.answer(`{"title": "Sales", "charts": [` + barChart(3, "Revenue by region") + `]}`)

	ctx := context.Background()
	_, err := p.svc.Submit(ctx, domain.SubmitRequest{Message: "first", SessionID: "s1"}, "alice-token")
	require.NoError(t, err)

	now = now.Add(31 * time.Minute)
	turns, err := p.svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}
