package llm

import (
	"context"

	"github.com/Rrens/bi-genie/internal/domain"
)

// Request contains dashboard proposal generation parameters
type Request struct {
	Question  string
	UserName  string
	Datasets  []domain.Dataset
	History   []domain.Turn
	MaxCharts int

	// Corrective is set on the single retry after an unparseable answer and
	// quotes what was wrong with it
	Corrective string
}

// Response contains the raw model answer
type Response struct {
	Content    string
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// GenerateProposal asks the model for a dashboard proposal in JSON
	GenerateProposal(ctx context.Context, req Request, model string) (*Response, error)
}
