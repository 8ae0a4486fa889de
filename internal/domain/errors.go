package domain

import "errors"

var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
	ErrProposalParse          = errors.New("proposal parse error")
	ErrNoValidCharts          = errors.New("no valid charts")
	ErrPartialMaterialization = errors.New("partial materialization failure")
	ErrLinking                = errors.New("linking failure")
	ErrSessionNotFound        = errors.New("session not found")
)

// Failure kinds exposed to callers
const (
	FailureUnauthenticated        = "unauthenticated"
	FailureUpstreamUnavailable    = "upstream_unavailable"
	FailureProposalParse          = "proposal_parse_error"
	FailureNoValidCharts          = "no_valid_charts"
	FailurePartialMaterialization = "partial_materialization_failure"
	FailureLinking                = "linking_failure"
	FailureInternal               = "internal"
)

// FailureKind classifies an error returned by the pipeline
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return FailureUnauthenticated
	case errors.Is(err, ErrUpstreamUnavailable):
		return FailureUpstreamUnavailable
	case errors.Is(err, ErrProposalParse):
		return FailureProposalParse
	case errors.Is(err, ErrNoValidCharts):
		return FailureNoValidCharts
	case errors.Is(err, ErrPartialMaterialization):
		return FailurePartialMaterialization
	case errors.Is(err, ErrLinking):
		return FailureLinking
	default:
		return FailureInternal
	}
}
