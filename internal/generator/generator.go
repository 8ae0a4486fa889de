package generator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/llm"
)

// ProviderSource resolves LLM providers by name
type ProviderSource interface {
	GetProvider(name string) (llm.Provider, error)
}

// Options configures a Generator
type Options struct {
	Provider     string
	Model        string
	HistoryTurns int
	MaxCharts    int
}

// Generator asks a language model for a dashboard proposal
type Generator struct {
	providers    ProviderSource
	provider     string
	model        string
	historyTurns int
	maxCharts    int
}

// New creates a proposal generator
func New(providers ProviderSource, opts Options) *Generator {
	if opts.HistoryTurns < 0 {
		opts.HistoryTurns = 0
	}
	if opts.MaxCharts <= 0 || opts.MaxCharts > domain.MaxProposalCharts {
		opts.MaxCharts = domain.MaxProposalCharts
	}
	return &Generator{
		providers:    providers,
		provider:     opts.Provider,
		model:        opts.Model,
		historyTurns: opts.HistoryTurns,
		maxCharts:    opts.MaxCharts,
	}
}

// Input is what a proposal is generated from
type Input struct {
	Request     string
	Permissions *domain.PermissionContext
	History     []domain.Turn
}

// Result is a parsed proposal with generation metadata
type Result struct {
	Proposal   *domain.Proposal
	Truncated  int
	Attempts   int
	Model      string
	TokensUsed int
}

// Generate produces a proposal. An unparseable answer is retried once with
// a corrective instruction; model transport failures are not retried.
func (g *Generator) Generate(ctx context.Context, in Input) (*Result, error) {
	provider, err := g.providers.GetProvider(g.provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	history := in.History
	if len(history) > g.historyTurns {
		history = history[len(history)-g.historyTurns:]
	}

	var userName string
	if in.Permissions != nil {
		userName = in.Permissions.Identity.Username
	}

	req := llm.Request{
		Question:  in.Request,
		UserName:  userName,
		Datasets:  datasetsOf(in.Permissions),
		History:   history,
		MaxCharts: g.maxCharts,
	}

	result := &Result{}
	var parseErr error
	for attempt := 1; attempt <= 2; attempt++ {
		result.Attempts = attempt

		resp, err := provider.GenerateProposal(ctx, req, g.model)
		if err != nil {
			return nil, fmt.Errorf("%w: model call failed: %v", domain.ErrUpstreamUnavailable, err)
		}
		result.Model = resp.Model
		result.TokensUsed += resp.TokensUsed

		proposal, truncated, err := ParseProposal(resp.Content, g.maxCharts)
		if err == nil {
			result.Proposal = proposal
			result.Truncated = truncated
			if truncated > 0 {
				log.Info().Int("dropped", truncated).Msg("Proposal truncated to chart limit")
			}
			return result, nil
		}

		parseErr = err
		log.Warn().Err(err).Int("attempt", attempt).Str("provider", provider.Name()).Msg("Unparseable proposal")
		req.Corrective = err.Error()
	}

	return nil, fmt.Errorf("%w: %v", domain.ErrProposalParse, parseErr)
}

func datasetsOf(pc *domain.PermissionContext) []domain.Dataset {
	if pc == nil {
		return nil
	}
	ids := pc.DatasetIDs()
	out := make([]domain.Dataset, 0, len(ids))
	for _, id := range ids {
		out = append(out, pc.Datasets[id])
	}
	return out
}
