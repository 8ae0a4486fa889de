package materializer

import (
	"encoding/json"
	"fmt"

	"github.com/Rrens/bi-genie/internal/domain"
)

var vizTypes = map[domain.ChartKind]string{
	domain.ChartKindTimeSeries: "echarts_timeseries_line",
	domain.ChartKindBar:        "echarts_timeseries_bar",
	domain.ChartKindPie:        "pie",
	domain.ChartKindTable:      "table",
	domain.ChartKindBigNumber:  "big_number_total",
	domain.ChartKindMap:        "country_map",
}

// VizType returns the Superset visualization plugin for a chart kind
func VizType(kind domain.ChartKind) (string, bool) {
	viz, ok := vizTypes[kind]
	return viz, ok
}

var operators = map[string]string{
	domain.FilterEq:        "==",
	domain.FilterNeq:       "!=",
	domain.FilterGt:        ">",
	domain.FilterGte:       ">=",
	domain.FilterLt:        "<",
	domain.FilterLte:       "<=",
	domain.FilterIn:        "IN",
	domain.FilterNotIn:     "NOT IN",
	domain.FilterLike:      "LIKE",
	domain.FilterIsNull:    "IS NULL",
	domain.FilterIsNotNull: "IS NOT NULL",
}

func simpleMetric(m domain.Metric) map[string]any {
	return map[string]any{
		"expressionType": "SIMPLE",
		"column":         map[string]any{"column_name": m.Column},
		"aggregate":      m.Aggregate,
		"label":          m.Label(),
		"hasCustomLabel": false,
	}
}

func adhocFilters(filters []domain.Filter) []map[string]any {
	out := make([]map[string]any, 0, len(filters))
	for _, f := range filters {
		filter := map[string]any{
			"expressionType": "SIMPLE",
			"clause":         "WHERE",
			"subject":        f.Column,
			"operator":       operators[f.Operator],
		}
		if f.Operator != domain.FilterIsNull && f.Operator != domain.FilterIsNotNull {
			filter["comparator"] = f.Value
		}
		out = append(out, filter)
	}
	return out
}

// BuildParams renders the form-data blob Superset stores with a chart
func BuildParams(spec domain.ChartSpec, datasetID int) (string, error) {
	viz, ok := VizType(spec.Kind)
	if !ok {
		return "", fmt.Errorf("unsupported chart kind %q", spec.Kind)
	}

	metrics := make([]map[string]any, 0, len(spec.Metrics))
	for _, m := range spec.Metrics {
		metrics = append(metrics, simpleMetric(m))
	}

	params := map[string]any{
		"viz_type":      viz,
		"datasource":    fmt.Sprintf("%d__table", datasetID),
		"time_range":    "No filter",
		"adhoc_filters": adhocFilters(spec.Filters),
	}

	switch spec.Kind {
	case domain.ChartKindTimeSeries, domain.ChartKindBar:
		params["x_axis"] = spec.Dimensions[0]
		params["metrics"] = metrics
		params["groupby"] = spec.Dimensions[1:]
		params["row_limit"] = 10000
		params["order_desc"] = true
		params["truncate_metric"] = true
	case domain.ChartKindPie:
		params["metric"] = metrics[0]
		params["groupby"] = spec.Dimensions
		params["row_limit"] = 25
	case domain.ChartKindBigNumber:
		params["metric"] = metrics[0]
		params["header_font_size"] = 0.4
		params["subheader_font_size"] = 0.15
	case domain.ChartKindMap:
		params["entity"] = spec.Dimensions[0]
		params["metric"] = metrics[0]
		params["select_country"] = "usa"
	default:
		params["query_mode"] = "aggregate"
		params["metrics"] = metrics
		params["groupby"] = spec.Dimensions
		params["row_limit"] = 100
		params["order_desc"] = true
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode chart params: %w", err)
	}
	return string(raw), nil
}
