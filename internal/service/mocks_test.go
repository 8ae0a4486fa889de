package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/events"
	"github.com/Rrens/bi-genie/internal/generator"
	"github.com/Rrens/bi-genie/internal/llm"
	"github.com/Rrens/bi-genie/internal/materializer"
)

// MockResolver mocks PermissionResolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Identify(ctx context.Context, token string) (domain.Identity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.Identity), args.Error(1)
}

func (m *MockResolver) Resolve(ctx context.Context, token string) (*domain.PermissionContext, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PermissionContext), args.Error(1)
}

// MockGenerator mocks ProposalGenerator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, in generator.Input) (*generator.Result, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*generator.Result), args.Error(1)
}

// MockMaterializer mocks ChartMaterializer
type MockMaterializer struct {
	mock.Mock
}

func (m *MockMaterializer) Materialize(ctx context.Context, owner domain.Identity, specs []domain.ChartSpec, indexes []int) *materializer.Result {
	args := m.Called(ctx, owner, specs, indexes)
	return args.Get(0).(*materializer.Result)
}

// MockLinker mocks DashboardLinker
type MockLinker struct {
	mock.Mock
}

func (m *MockLinker) Link(ctx context.Context, owner domain.Identity, title string, charts []domain.MaterializedChart, cells []domain.LayoutCell) (*domain.Dashboard, error) {
	args := m.Called(ctx, owner, title, charts, cells)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Dashboard), args.Error(1)
}

// MockRoundRepository mocks domain.RoundRepository
type MockRoundRepository struct {
	mock.Mock
}

func (m *MockRoundRepository) Create(ctx context.Context, round *domain.Round) error {
	args := m.Called(ctx, round)
	return args.Error(0)
}

func (m *MockRoundRepository) ListByOwner(ctx context.Context, ownerID int, limit int) ([]domain.Round, error) {
	args := m.Called(ctx, ownerID, limit)
	return args.Get(0).([]domain.Round), args.Error(1)
}

// MockPublisher mocks events.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event events.RoundFinished) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() {
	m.Called()
}

// MockLLMProvider mocks llm.Provider
type MockLLMProvider struct {
	mock.Mock
}

func (m *MockLLMProvider) Name() string              { return "mock" }
func (m *MockLLMProvider) AvailableModels() []string { return []string{"mock-1"} }
func (m *MockLLMProvider) DefaultModel() string      { return "mock-1" }
func (m *MockLLMProvider) IsConfigured() bool        { return true }

func (m *MockLLMProvider) GenerateProposal(ctx context.Context, req llm.Request, model string) (*llm.Response, error) {
	args := m.Called(ctx, req, model)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

