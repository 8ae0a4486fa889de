package validator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/bi-genie/internal/domain"
)

// Result splits a proposal into charts that may be built and charts that may not
type Result struct {
	Accepted []domain.ChartSpec
	Indexes  []int // position of each accepted spec in the proposal
	Rejected []domain.ChartFailure
}

// Validator checks proposed charts against the caller's permissions and
// the dataset schemas. Dataset permission is enforced before anything else.
type Validator struct {
	policy   *Policy
	validate *validator.Validate
}

// New creates a validator. policy may be nil.
func New(policy *Policy) *Validator {
	return &Validator{
		policy:   policy,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate returns the specs that may be materialized. It fails with
// ErrNoValidCharts when nothing survives.
func (v *Validator) Validate(ctx context.Context, pc *domain.PermissionContext, proposal *domain.Proposal) (*Result, error) {
	result := &Result{}
	if proposal == nil {
		return nil, fmt.Errorf("%w: empty proposal", domain.ErrNoValidCharts)
	}

	for i, spec := range proposal.Charts {
		checked, reason := v.check(ctx, pc, spec)
		if reason != "" {
			log.Info().Int("index", i).Str("title", spec.Title).Str("reason", reason).Msg("Chart rejected")
			result.Rejected = append(result.Rejected, domain.ChartFailure{
				Index:  i,
				Title:  spec.Title,
				Stage:  domain.StageValidation,
				Reason: reason,
			})
			continue
		}
		result.Accepted = append(result.Accepted, checked)
		result.Indexes = append(result.Indexes, i)
	}

	if len(result.Accepted) == 0 {
		return result, fmt.Errorf("%w: all %d proposed charts were rejected", domain.ErrNoValidCharts, len(proposal.Charts))
	}
	return result, nil
}

func (v *Validator) check(ctx context.Context, pc *domain.PermissionContext, spec domain.ChartSpec) (domain.ChartSpec, string) {
	if spec.DecodeError != "" {
		return spec, "malformed chart: " + spec.DecodeError
	}
	ds, ok := pc.Dataset(spec.DatasetID)
	if !ok {
		return spec, fmt.Sprintf("dataset %d is not accessible", spec.DatasetID)
	}
	if !spec.Kind.Valid() {
		return spec, fmt.Sprintf("unsupported chart kind %q", spec.Kind)
	}

	spec = repair(spec)

	if len(spec.Metrics) == 0 {
		return spec, "chart has no metrics"
	}
	if spec.Kind.NeedsDimension() && len(spec.Dimensions) == 0 {
		return spec, fmt.Sprintf("%s chart needs at least one dimension", spec.Kind)
	}

	if err := v.validate.Struct(spec); err != nil {
		return spec, describe(err)
	}

	for _, m := range spec.Metrics {
		if !ds.HasColumn(m.Column) {
			return spec, fmt.Sprintf("column %q not found in dataset %s", m.Column, ds.Name)
		}
	}
	for _, d := range spec.Dimensions {
		if !ds.HasColumn(d) {
			return spec, fmt.Sprintf("column %q not found in dataset %s", d, ds.Name)
		}
	}
	for _, f := range spec.Filters {
		if !ds.HasColumn(f.Column) {
			return spec, fmt.Sprintf("filter column %q not found in dataset %s", f.Column, ds.Name)
		}
	}

	if v.policy != nil {
		allowed, err := v.policy.Allow(ctx, pc.Identity, spec, ds)
		if err != nil {
			log.Error().Err(err).Str("title", spec.Title).Msg("Policy evaluation failed")
			return spec, "policy evaluation failed"
		}
		if !allowed {
			return spec, "denied by policy"
		}
	}

	return spec, ""
}

// repair fills defaults the model commonly omits
func repair(spec domain.ChartSpec) domain.ChartSpec {
	metrics := make([]domain.Metric, 0, len(spec.Metrics))
	for _, m := range spec.Metrics {
		if m.Aggregate == "" {
			m.Aggregate = "SUM"
		}
		metrics = append(metrics, m)
	}
	spec.Metrics = metrics

	seen := make(map[string]bool, len(spec.Dimensions))
	dims := make([]string, 0, len(spec.Dimensions))
	for _, d := range spec.Dimensions {
		if seen[d] {
			continue
		}
		seen[d] = true
		dims = append(dims, d)
	}
	spec.Dimensions = dims

	if strings.TrimSpace(spec.Title) == "" {
		spec.Title = defaultTitle(spec)
	}
	return spec
}

func defaultTitle(spec domain.ChartSpec) string {
	kind := strings.ReplaceAll(string(spec.Kind), "_", " ")
	if len(spec.Metrics) == 0 {
		return strings.ToUpper(kind[:1]) + kind[1:]
	}
	title := spec.Metrics[0].Label()
	if len(spec.Dimensions) > 0 {
		title += " by " + spec.Dimensions[0]
	}
	return title + " (" + kind + ")"
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Namespace()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", fe.Namespace(), fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s exceeds %s characters", fe.Namespace(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
