package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/events"
	"github.com/Rrens/bi-genie/internal/generator"
	"github.com/Rrens/bi-genie/internal/layout"
	"github.com/Rrens/bi-genie/internal/materializer"
	"github.com/Rrens/bi-genie/internal/validator"
)

var tracer = otel.Tracer("github.com/Rrens/bi-genie/internal/service")

// PermissionResolver builds the caller's permission context
type PermissionResolver interface {
	Identify(ctx context.Context, token string) (domain.Identity, error)
	Resolve(ctx context.Context, token string) (*domain.PermissionContext, error)
}

// ProposalGenerator asks the model for a dashboard proposal
type ProposalGenerator interface {
	Generate(ctx context.Context, in generator.Input) (*generator.Result, error)
}

// SpecValidator filters a proposal down to buildable charts
type SpecValidator interface {
	Validate(ctx context.Context, pc *domain.PermissionContext, proposal *domain.Proposal) (*validator.Result, error)
}

// ChartMaterializer creates charts in Superset
type ChartMaterializer interface {
	Materialize(ctx context.Context, owner domain.Identity, specs []domain.ChartSpec, indexes []int) *materializer.Result
}

// DashboardLinker creates the dashboard and attaches charts to it
type DashboardLinker interface {
	Link(ctx context.Context, owner domain.Identity, title string, charts []domain.MaterializedChart, cells []domain.LayoutCell) (*domain.Dashboard, error)
}

// Deps are the collaborators of a DashboardService. Rounds and Events
// are optional.
type Deps struct {
	Resolver     PermissionResolver
	Generator    ProposalGenerator
	Validator    SpecValidator
	Materializer ChartMaterializer
	Linker       DashboardLinker
	Sessions     domain.SessionStore
	Rounds       domain.RoundRepository
	Events       events.Publisher
	Layout       layout.Options
	HistoryTurns int
	Now          func() time.Time
}

// DashboardService runs the request-to-dashboard pipeline
type DashboardService struct {
	resolver     PermissionResolver
	generator    ProposalGenerator
	validator    SpecValidator
	materializer ChartMaterializer
	linker       DashboardLinker
	sessions     domain.SessionStore
	rounds       domain.RoundRepository
	events       events.Publisher
	layout       layout.Options
	historyTurns int
	now          func() time.Time
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(deps Deps) *DashboardService {
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Layout.CanvasWidth <= 0 {
		deps.Layout = layout.DefaultOptions()
	}
	if deps.HistoryTurns <= 0 {
		deps.HistoryTurns = 6
	}
	return &DashboardService{
		resolver:     deps.Resolver,
		generator:    deps.Generator,
		validator:    deps.Validator,
		materializer: deps.Materializer,
		linker:       deps.Linker,
		sessions:     deps.Sessions,
		rounds:       deps.Rounds,
		events:       deps.Events,
		layout:       deps.Layout,
		historyTurns: deps.HistoryTurns,
		now:          deps.Now,
	}
}

// round carries the state of one Submit call
type round struct {
	req      domain.SubmitRequest
	report   *domain.Report
	owner    *domain.Identity
	proposal *domain.Proposal
	started  time.Time
}

// Submit turns a natural-language request into a Superset dashboard.
// The returned report is never nil; on failure it names every object the
// round created. A partially materialized dashboard is reported with
// status partial and a nil error.
func (s *DashboardService) Submit(ctx context.Context, req domain.SubmitRequest, token string) (*domain.Report, error) {
	ctx, span := tracer.Start(ctx, "dashboard.submit", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
	))
	defer span.End()

	r := &round{
		req:     req,
		report:  &domain.Report{RoundID: uuid.New(), ChartIDs: []int{}},
		started: s.now(),
	}
	span.SetAttributes(attribute.String("round.id", r.report.RoundID.String()))

	pc, err := s.resolve(ctx, token)
	if err != nil {
		// the caller is unknown, so nothing is recorded or refreshed on their behalf
		s.markFailed(span, r, err)
		return r.report, err
	}
	r.owner = &pc.Identity

	history := s.history(ctx, req.SessionID, r.started)

	gen, err := s.generate(ctx, generator.Input{Request: req.Message, Permissions: pc, History: history})
	if err != nil {
		return s.fail(ctx, span, r, err)
	}
	r.proposal = gen.Proposal
	r.report.Title = gen.Proposal.Title
	r.report.Truncated = gen.Truncated

	checked, err := s.validate(ctx, pc, gen.Proposal)
	if checked != nil {
		r.report.FailedCharts = append(r.report.FailedCharts, checked.Rejected...)
	}
	if err != nil {
		return s.fail(ctx, span, r, err)
	}

	built := s.materialize(ctx, pc.Identity, checked)
	for _, c := range built.Charts {
		r.report.ChartIDs = append(r.report.ChartIDs, c.ID)
	}
	r.report.FailedCharts = append(r.report.FailedCharts, built.Failed...)
	if len(built.Charts) == 0 {
		return s.fail(ctx, span, r, errNothingMaterialized(len(built.Failed)))
	}

	cells := layout.Compute(built.Charts, s.layout)
	r.report.Layout = cells

	dashboard, err := s.link(ctx, pc.Identity, gen.Proposal.Title, built.Charts, cells)
	if dashboard != nil {
		r.report.DashboardID = &dashboard.ID
		r.report.DashboardURL = dashboard.URL
	}
	if err != nil {
		return s.fail(ctx, span, r, err)
	}

	r.report.Status = domain.ReportSuccess
	if len(built.Failed) > 0 {
		r.report.Status = domain.ReportPartial
		r.report.Failure = &domain.Failure{
			Kind:    domain.FailurePartialMaterialization,
			Message: partialMessage(len(built.Charts), len(built.Failed)),
		}
	}

	span.SetAttributes(
		attribute.String("round.status", string(r.report.Status)),
		attribute.Int("round.charts", len(r.report.ChartIDs)),
	)
	log.Info().
		Str("round_id", r.report.RoundID.String()).
		Str("status", string(r.report.Status)).
		Int("dashboard_id", dashboard.ID).
		Ints("chart_ids", r.report.ChartIDs).
		Dur("elapsed", s.now().Sub(r.started)).
		Msg("Round finished")

	s.record(ctx, r)
	return r.report, nil
}

// History returns the live turns of a session, oldest first
func (s *DashboardService) History(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	record, err := s.sessions.Get(ctx, sessionID, s.now())
	if errors.Is(err, domain.ErrSessionNotFound) {
		return []domain.Turn{}, nil
	}
	if err != nil {
		return nil, err
	}
	return record.Turns, nil
}

// Reset forgets a session
func (s *DashboardService) Reset(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

// Rounds lists the caller's recent rounds from the ledger
func (s *DashboardService) Rounds(ctx context.Context, token string, limit int) ([]domain.Round, error) {
	identity, err := s.resolver.Identify(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.rounds == nil {
		return []domain.Round{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.rounds.ListByOwner(ctx, identity.UserID, limit)
}

func (s *DashboardService) history(ctx context.Context, sessionID string, now time.Time) []domain.Turn {
	record, err := s.sessions.Get(ctx, sessionID, now)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to load session, starting fresh")
		}
		return nil
	}
	return record.RecentTurns(s.historyTurns)
}

func (s *DashboardService) resolve(ctx context.Context, token string) (*domain.PermissionContext, error) {
	ctx, span := tracer.Start(ctx, "dashboard.resolve")
	defer span.End()

	pc, err := s.resolver.Resolve(ctx, token)
	endSpan(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("datasets", len(pc.Datasets)))
	}
	return pc, err
}

func (s *DashboardService) generate(ctx context.Context, in generator.Input) (*generator.Result, error) {
	ctx, span := tracer.Start(ctx, "dashboard.generate")
	defer span.End()

	res, err := s.generator.Generate(ctx, in)
	endSpan(span, err)
	if err == nil {
		span.SetAttributes(
			attribute.Int("attempts", res.Attempts),
			attribute.Int("charts", len(res.Proposal.Charts)),
			attribute.Int("tokens", res.TokensUsed),
		)
	}
	return res, err
}

func (s *DashboardService) validate(ctx context.Context, pc *domain.PermissionContext, proposal *domain.Proposal) (*validator.Result, error) {
	ctx, span := tracer.Start(ctx, "dashboard.validate")
	defer span.End()

	res, err := s.validator.Validate(ctx, pc, proposal)
	endSpan(span, err)
	if res != nil {
		span.SetAttributes(
			attribute.Int("accepted", len(res.Accepted)),
			attribute.Int("rejected", len(res.Rejected)),
		)
	}
	return res, err
}

func (s *DashboardService) materialize(ctx context.Context, owner domain.Identity, checked *validator.Result) *materializer.Result {
	ctx, span := tracer.Start(ctx, "dashboard.materialize")
	defer span.End()

	res := s.materializer.Materialize(ctx, owner, checked.Accepted, checked.Indexes)
	span.SetAttributes(
		attribute.Int("created", len(res.Charts)),
		attribute.Int("failed", len(res.Failed)),
	)
	return res
}

func (s *DashboardService) link(ctx context.Context, owner domain.Identity, title string, charts []domain.MaterializedChart, cells []domain.LayoutCell) (*domain.Dashboard, error) {
	ctx, span := tracer.Start(ctx, "dashboard.link")
	defer span.End()

	dashboard, err := s.linker.Link(ctx, owner, title, charts, cells)
	endSpan(span, err)
	return dashboard, err
}

func (s *DashboardService) fail(ctx context.Context, span trace.Span, r *round, err error) (*domain.Report, error) {
	s.markFailed(span, r, err)
	log.Warn().
		Err(err).
		Str("round_id", r.report.RoundID.String()).
		Str("failure_kind", r.report.Failure.Kind).
		Ints("chart_ids", r.report.ChartIDs).
		Msg("Round failed")
	s.record(ctx, r)
	return r.report, err
}

func (s *DashboardService) markFailed(span trace.Span, r *round, err error) {
	r.report.Status = domain.ReportFailed
	r.report.Failure = &domain.Failure{Kind: domain.FailureKind(err), Message: err.Error()}
	span.RecordError(err)
	span.SetStatus(codes.Error, r.report.Failure.Kind)
}

// record appends the turn, writes the ledger row and publishes the event.
// None of these can change the outcome of the round.
func (s *DashboardService) record(ctx context.Context, r *round) {
	report := r.report
	outcome := domain.Outcome{
		Status:       report.Status,
		DashboardID:  report.DashboardID,
		DashboardURL: report.DashboardURL,
		ChartIDs:     report.ChartIDs,
	}
	if report.Failure != nil {
		outcome.FailureKind = report.Failure.Kind
		outcome.Message = report.Failure.Message
	}

	turn := domain.Turn{Request: r.req.Message, Proposal: r.proposal, Outcome: outcome, At: r.started}
	if err := s.sessions.Append(ctx, r.req.SessionID, turn, s.now()); err != nil {
		log.Error().Err(err).Str("session_id", r.req.SessionID).Msg("Failed to append session turn")
	}

	var ownerID *int
	if r.owner != nil {
		id := r.owner.UserID
		ownerID = &id
	}

	if s.rounds != nil {
		row := &domain.Round{
			ID:           report.RoundID,
			SessionID:    r.req.SessionID,
			OwnerID:      ownerID,
			Request:      r.req.Message,
			Status:       report.Status,
			FailureKind:  outcome.FailureKind,
			DashboardID:  report.DashboardID,
			ChartIDs:     report.ChartIDs,
			FailedCharts: report.FailedCharts,
			CreatedAt:    r.started,
		}
		if report.Failure != nil {
			row.FailureMessage = report.Failure.Message
		}
		if err := s.rounds.Create(ctx, row); err != nil {
			log.Error().Err(err).Str("round_id", report.RoundID.String()).Msg("Failed to write round ledger")
		}
	}

	event := events.RoundFinished{
		RoundID:     report.RoundID,
		SessionID:   r.req.SessionID,
		OwnerID:     ownerID,
		Status:      string(report.Status),
		FailureKind: outcome.FailureKind,
		DashboardID: report.DashboardID,
		ChartIDs:    report.ChartIDs,
		FinishedAt:  s.now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Error().Err(err).Str("round_id", report.RoundID.String()).Msg("Failed to publish round event")
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.FailureKind(err))
	}
}

func errNothingMaterialized(failed int) error {
	return fmt.Errorf("%w: none of %d charts could be created", domain.ErrPartialMaterialization, failed)
}

func partialMessage(created, failed int) string {
	return fmt.Sprintf("%d of %d charts could not be created", failed, created+failed)
}
