package domain

import (
	"strings"
	"time"
)

// ChartKind is one of the closed set of supported visualization kinds
type ChartKind string

const (
	ChartKindTimeSeries ChartKind = "time_series"
	ChartKindBar        ChartKind = "bar"
	ChartKindPie        ChartKind = "pie"
	ChartKindTable      ChartKind = "table"
	ChartKindBigNumber  ChartKind = "big_number"
	ChartKindMap        ChartKind = "map"
)

// ChartKinds lists every supported kind in prompt order
var ChartKinds = []ChartKind{
	ChartKindTimeSeries,
	ChartKindBar,
	ChartKindPie,
	ChartKindTable,
	ChartKindBigNumber,
	ChartKindMap,
}

var kindAliases = map[string]ChartKind{
	"line":        ChartKindTimeSeries,
	"timeseries":  ChartKindTimeSeries,
	"time-series": ChartKindTimeSeries,
	"big-number":  ChartKindBigNumber,
	"bignumber":   ChartKindBigNumber,
	"kpi":         ChartKindBigNumber,
}

// ParseChartKind normalizes a model-supplied kind. Unknown values are
// returned as-is so validation can reject them with a reason.
func ParseChartKind(s string) ChartKind {
	k := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := kindAliases[k]; ok {
		return alias
	}
	return ChartKind(k)
}

// Valid reports whether k belongs to the supported set
func (k ChartKind) Valid() bool {
	for _, known := range ChartKinds {
		if k == known {
			return true
		}
	}
	return false
}

// NeedsDimension reports whether the kind requires at least one grouping column
func (k ChartKind) NeedsDimension() bool {
	return k != ChartKindBigNumber
}

// Metric is an aggregated column
type Metric struct {
	Column    string `json:"column" validate:"required,max=255"`
	Aggregate string `json:"aggregate" validate:"required,oneof=SUM AVG COUNT COUNT_DISTINCT MIN MAX"`
}

// Label renders the metric the way Superset labels simple aggregates
func (m Metric) Label() string {
	return m.Aggregate + "(" + m.Column + ")"
}

// Filter operators accepted in chart specs
const (
	FilterEq        = "eq"
	FilterNeq       = "neq"
	FilterGt        = "gt"
	FilterGte       = "gte"
	FilterLt        = "lt"
	FilterLte       = "lte"
	FilterIn        = "in"
	FilterNotIn     = "not_in"
	FilterLike      = "like"
	FilterIsNull    = "is_null"
	FilterIsNotNull = "is_not_null"
)

// Filter restricts the rows a chart aggregates
type Filter struct {
	Column   string `json:"column" validate:"required,max=255"`
	Operator string `json:"operator" validate:"required,oneof=eq neq gt gte lt lte in not_in like is_null is_not_null"`
	Value    any    `json:"value,omitempty"`
}

// ChartSpec is a proposed chart before it exists in Superset
type ChartSpec struct {
	DatasetID  int       `json:"dataset_id" validate:"required,gt=0"`
	Kind       ChartKind `json:"kind"`
	Metrics    []Metric  `json:"metrics" validate:"dive"`
	Dimensions []string  `json:"dimensions" validate:"dive,required,max=255"`
	Filters    []Filter  `json:"filters,omitempty" validate:"dive"`
	Title      string    `json:"title" validate:"required,max=250"`

	// DecodeError is set when the model's entry for this chart had the
	// wrong shape; such a chart is always rejected.
	DecodeError string `json:"decode_error,omitempty"`
}

// Proposal is the model's suggested dashboard
type Proposal struct {
	Title  string      `json:"title"`
	Charts []ChartSpec `json:"charts"`
}

// MaxProposalCharts caps how many charts one round may create
const MaxProposalCharts = 6

// MaterializedChart is a chart that now exists in Superset
type MaterializedChart struct {
	Spec      ChartSpec `json:"spec"`
	ID        int       `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChartFailure explains why a spec did not become a chart
type ChartFailure struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Failure stages
const (
	StageValidation    = "validation"
	StageMaterializing = "materialization"
)
