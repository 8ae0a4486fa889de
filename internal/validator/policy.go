package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/Rrens/bi-genie/internal/domain"
)

// PolicyQuery is the Rego rule every chart spec is checked against
const PolicyQuery = "data.bigenie.chart.allow"

// Policy is an organisation rule set evaluated with OPA. It can only
// remove charts from a proposal.
type Policy struct {
	query rego.PreparedEvalQuery
}

// LoadPolicy compiles the Rego module at path
func LoadPolicy(ctx context.Context, path string) (*Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return NewPolicy(ctx, path, string(src))
}

// NewPolicy compiles a Rego module from source
func NewPolicy(ctx context.Context, name, module string) (*Policy, error) {
	query, err := rego.New(
		rego.Query(PolicyQuery),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy: %w", err)
	}
	return &Policy{query: query}, nil
}

type policyInput struct {
	User    domain.Identity  `json:"user"`
	Chart   domain.ChartSpec `json:"chart"`
	Dataset domain.Dataset   `json:"dataset"`
}

// Allow reports whether the policy admits spec. An undefined result denies.
func (p *Policy) Allow(ctx context.Context, user domain.Identity, spec domain.ChartSpec, ds domain.Dataset) (bool, error) {
	raw, err := json.Marshal(policyInput{User: user, Chart: spec, Dataset: ds})
	if err != nil {
		return false, fmt.Errorf("failed to marshal policy input: %w", err)
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return false, fmt.Errorf("failed to build policy input: %w", err)
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("policy evaluation failed: %w", err)
	}
	return rs.Allowed(), nil
}
