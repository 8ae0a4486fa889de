package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/events"
	"github.com/Rrens/bi-genie/internal/generator"
	"github.com/Rrens/bi-genie/internal/materializer"
	"github.com/Rrens/bi-genie/internal/repository/memory"
	"github.com/Rrens/bi-genie/internal/validator"
)

var clock = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	resolver     *MockResolver
	generator    *MockGenerator
	materializer *MockMaterializer
	linker       *MockLinker
	rounds       *MockRoundRepository
	events       *MockPublisher
	sessions     *memory.SessionStore
	svc          *DashboardService
}

func newFixture() *fixture {
	f := &fixture{
		resolver:     new(MockResolver),
		generator:    new(MockGenerator),
		materializer: new(MockMaterializer),
		linker:       new(MockLinker),
		rounds:       new(MockRoundRepository),
		events:       new(MockPublisher),
		sessions:     memory.NewSessionStore(30 * time.Minute),
	}
	f.svc = NewDashboardService(Deps{
		Resolver:     f.resolver,
		Generator:    f.generator,
		Validator:    validator.New(nil),
		Materializer: f.materializer,
		Linker:       f.linker,
		Sessions:     f.sessions,
		Rounds:       f.rounds,
		Events:       f.events,
		Now:          func() time.Time { return clock },
	})
	return f
}

func alice() *domain.PermissionContext {
	return &domain.PermissionContext{
		Identity: domain.Identity{UserID: 7, Username: "alice"},
		Datasets: map[int]domain.Dataset{
			3: {ID: 3, Name: "sales_data", Columns: []domain.Column{{Name: "order_date", IsTemporal: true}, {Name: "region"}, {Name: "revenue"}}},
		},
	}
}

func chart(title string, datasetID int) domain.ChartSpec {
	return domain.ChartSpec{
		DatasetID:  datasetID,
		Kind:       domain.ChartKindBar,
		Metrics:    []domain.Metric{{Column: "revenue", Aggregate: "SUM"}},
		Dimensions: []string{"region"},
		Title:      title,
	}
}

func (f *fixture) expectSideEffects() {
	f.rounds.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.events.On("Publish", mock.Anything, mock.Anything).Return(nil)
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture()
	f.resolver.On("Resolve", mock.Anything, "tok").Return(alice(), nil)
	f.generator.On("Generate", mock.Anything, mock.Anything).Return(&generator.Result{
		Proposal: &domain.Proposal{Title: "Sales", Charts: []domain.ChartSpec{chart("A", 3), chart("B", 3)}},
	}, nil)
	f.materializer.On("Materialize", mock.Anything, alice().Identity, mock.Anything, []int{0, 1}).Return(&materializer.Result{
		Charts: []domain.MaterializedChart{{ID: 101, Spec: chart("A", 3)}, {ID: 102, Spec: chart("B", 3)}},
	})
	f.linker.On("Link", mock.Anything, alice().Identity, "Sales", mock.Anything, mock.Anything).
		Return(&domain.Dashboard{ID: 55, URL: "http://superset/superset/dashboard/55/"}, nil)
	f.expectSideEffects()

	report, err := f.svc.Submit(context.Background(), domain.SubmitRequest{Message: "revenue", SessionID: "s1"}, "tok")
	require.NoError(t, err)

	assert.Equal(t, domain.ReportSuccess, report.Status)
	assert.Equal(t, []int{101, 102}, report.ChartIDs)
	require.NotNil(t, report.DashboardID)
	assert.Equal(t, 55, *report.DashboardID)
	assert.Len(t, report.Layout, 2)
	assert.Nil(t, report.Failure)

	turns, err := f.svc.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, domain.ReportSuccess, turns[0].Outcome.Status)

	f.rounds.AssertCalled(t, "Create", mock.Anything, mock.MatchedBy(func(r *domain.Round) bool {
		return r.Status == domain.ReportSuccess && *r.OwnerID == 7 && *r.DashboardID == 55
	}))
	f.events.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(e events.RoundFinished) bool {
		return e.Status == "success" && len(e.ChartIDs) == 2
	}))
}

func TestSubmit_UnauthenticatedHasNoSideEffects(t *testing.T) {
	f := newFixture()
	f.resolver.On("Resolve", mock.Anything, "stale").Return(nil, fmt.Errorf("%w: token rejected", domain.ErrUnauthenticated))

	report, err := f.svc.Submit(context.Background(), domain.SubmitRequest{Message: "revenue", SessionID: "s1"}, "stale")

	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))
	require.NotNil(t, report)
	assert.Equal(t, domain.ReportFailed, report.Status)
	assert.Equal(t, domain.FailureUnauthenticated, report.Failure.Kind)

	f.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	f.rounds.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestSubmit_UnauthenticatedDoesNotExtendSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.sessions.Append(ctx, "s1", domain.Turn{Request: "revenue by region"}, clock.Add(-25*time.Minute)))
	f.resolver.On("Resolve", mock.Anything, "bogus").Return(nil, fmt.Errorf("%w: token rejected", domain.ErrUnauthenticated))

	_, err := f.svc.Submit(ctx, domain.SubmitRequest{Message: "revenue", SessionID: "s1"}, "bogus")
	require.True(t, errors.Is(err, domain.ErrUnauthenticated))

	_, err = f.sessions.Get(ctx, "s1", clock.Add(6*time.Minute))
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
}

func TestSubmit_NoValidChartsCreatesNothing(t *testing.T) {
	f := newFixture()
	f.resolver.On("Resolve", mock.Anything, "tok").Return(alice(), nil)
	f.generator.On("Generate", mock.Anything, mock.Anything).Return(&generator.Result{
		Proposal: &domain.Proposal{Title: "HR", Charts: []domain.ChartSpec{chart("Salaries", 9), chart("Headcount", 10)}},
	}, nil)
	f.expectSideEffects()

	report, err := f.svc.Submit(context.Background(), domain.SubmitRequest{Message: "salaries", SessionID: "s1"}, "tok")

	assert.True(t, errors.Is(err, domain.ErrNoValidCharts))
	assert.Equal(t, domain.FailureNoValidCharts, report.Failure.Kind)
	assert.Len(t, report.FailedCharts, 2)
	assert.Empty(t, report.ChartIDs)
	assert.Nil(t, report.DashboardID)
	f.materializer.AssertNotCalled(t, "Materialize", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.linker.AssertNotCalled(t, "Link", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_ProposalParseError(t *testing.T) {
	f := newFixture()
	f.resolver.On("Resolve", mock.Anything, "tok").Return(alice(), nil)
	f.generator.On("Generate", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: no JSON object", domain.ErrProposalParse))
	f.expectSideEffects()

	report, err := f.svc.Submit(context.Background(), domain.SubmitRequest{Message: "revenue", SessionID: "s1"}, "tok")

	assert.True(t, errors.Is(err, domain.ErrProposalParse))
	assert.Equal(t, domain.FailureProposalParse, report.Failure.Kind)

	turns, _ := f.svc.History(context.Background(), "s1")
	require.Len(t, turns, 1)
	assert.Equal(t, domain.FailureProposalParse, turns[0].Outcome.FailureKind)
}

func TestSubmit_NothingMaterialized(t *testing.T) {
	f := newFixture()
	f.resolver.On("Resolve", mock.Anything, "tok").Return(alice(), nil)
	f.generator.On("Generate", mock.Anything, mock.Anything).Return(&generator.Result{
		Proposal: &domain.Proposal{Title: "Sales", Charts: []domain.ChartSpec{chart("A", 3)}},
	}, nil)
	f.materializer.On("Materialize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&materializer.Result{
		Failed: []domain.ChartFailure{{Index: 0, Title: "A", Stage: domain.StageMaterializing, Reason: "superset error (HTTP 500)"}},
	})
	f.expectSideEffects()

	report, err := f.svc.Submit(context.Background(), domain.SubmitRequest{Message: "revenue", SessionID: "s1"}, "tok")

	assert.True(t, errors.Is(err, domain.ErrPartialMaterialization))
	assert.Nil(t, report.DashboardID)
	assert.Len(t, report.FailedCharts, 1)
	f.linker.AssertNotCalled(t, "Link", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_LinkingFailureReportsCreatedObjects(t *testing.T) {
	f := newFixture()
	f.resolver.On("Resolve", mock.Anything, "tok").Return(alice(), nil)
	f.generator.On("Generate", mock.Anything, mock.Anything).Return(&generator.Result{
		Proposal: &domain.Proposal{Title: "Sales", Charts: []domain.ChartSpec{chart("A", 3)}},
	}, nil)
	f.materializer.On("Materialize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&materializer.Result{
		Charts: []domain.MaterializedChart{{ID: 101, Spec: chart("A", 3)}},
	})
	f.linker.On("Link", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.Dashboard{ID: 55}, fmt.Errorf("%w: failed to link chart 101", domain.ErrLinking))
	f.expectSideEffects()

	report, err := f.svc.Submit(context.Background(), domain.SubmitRequest{Message: "revenue", SessionID: "s1"}, "tok")

	assert.True(t, errors.Is(err, domain.ErrLinking))
	assert.Equal(t, domain.ReportFailed, report.Status)
	assert.Equal(t, []int{101}, report.ChartIDs)
	require.NotNil(t, report.DashboardID)
	assert.Equal(t, 55, *report.DashboardID)
}

func TestSubmit_SideEffectFailuresDoNotFailRound(t *testing.T) {
	f := newFixture()
	f.resolver.On("Resolve", mock.Anything, "tok").Return(alice(), nil)
	f.generator.On("Generate", mock.Anything, mock.Anything).Return(&generator.Result{
		Proposal: &domain.Proposal{Title: "Sales", Charts: []domain.ChartSpec{chart("A", 3)}},
	}, nil)
	f.materializer.On("Materialize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&materializer.Result{
		Charts: []domain.MaterializedChart{{ID: 101, Spec: chart("A", 3)}},
	})
	f.linker.On("Link", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&domain.Dashboard{ID: 55}, nil)
	f.rounds.On("Create", mock.Anything, mock.Anything).Return(errors.New("ledger down"))
	f.events.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nats down"))

	report, err := f.svc.Submit(context.Background(), domain.SubmitRequest{Message: "revenue", SessionID: "s1"}, "tok")

	require.NoError(t, err)
	assert.Equal(t, domain.ReportSuccess, report.Status)
}

func TestSubmit_PassesRecentHistory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		require.NoError(t, f.sessions.Append(ctx, "s1", domain.Turn{Request: fmt.Sprintf("turn %d", i)}, clock.Add(-time.Minute)))
	}

	f.resolver.On("Resolve", mock.Anything, "tok").Return(alice(), nil)
	f.generator.On("Generate", mock.Anything, mock.MatchedBy(func(in generator.Input) bool {
		return len(in.History) == 6 && in.History[5].Request == "turn 7"
	})).Return(nil, fmt.Errorf("%w: model call failed", domain.ErrUpstreamUnavailable))
	f.expectSideEffects()

	_, err := f.svc.Submit(ctx, domain.SubmitRequest{Message: "again", SessionID: "s1"}, "tok")

	assert.True(t, errors.Is(err, domain.ErrUpstreamUnavailable))
	f.generator.AssertExpectations(t)
}

func TestHistoryAndReset(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	turns, err := f.svc.History(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, turns)

	require.NoError(t, f.sessions.Append(ctx, "s1", domain.Turn{Request: "revenue"}, clock))
	require.NoError(t, f.svc.Reset(ctx, "s1"))

	turns, err = f.svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRounds(t *testing.T) {
	f := newFixture()
	f.resolver.On("Identify", mock.Anything, "tok").Return(domain.Identity{UserID: 7}, nil)
	f.rounds.On("ListByOwner", mock.Anything, 7, 20).Return([]domain.Round{{Request: "revenue"}}, nil)

	rounds, err := f.svc.Rounds(context.Background(), "tok", 0)
	require.NoError(t, err)
	assert.Len(t, rounds, 1)
}
