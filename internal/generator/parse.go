package generator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/llm"
)

var errNoCharts = errors.New("proposal contains no charts")

// ParseProposal turns raw model output into a Proposal. Charts beyond
// maxCharts are dropped in model order; the number dropped is returned.
func ParseProposal(content string, maxCharts int) (*domain.Proposal, int, error) {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		return nil, 0, fmt.Errorf("no JSON object in model output")
	}

	var envelope struct {
		Title          string          `json:"title"`
		DashboardTitle string          `json:"dashboard_title"`
		Charts         json.RawMessage `json:"charts"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, 0, fmt.Errorf("invalid JSON: %w", err)
	}

	var charts []json.RawMessage
	if len(envelope.Charts) > 0 && !bytes.Equal(envelope.Charts, []byte("null")) {
		if err := json.Unmarshal(envelope.Charts, &charts); err != nil {
			return nil, 0, fmt.Errorf("invalid charts array: %w", err)
		}
	} else {
		// Older single-chart answers put the chart fields at the top level.
		var legacy rawChart
		if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
			return nil, 0, fmt.Errorf("invalid JSON: %w", err)
		}
		if legacy.isEmpty() {
			return nil, 0, errNoCharts
		}
		charts = []json.RawMessage{json.RawMessage(raw)}
	}

	if len(charts) == 0 {
		return nil, 0, errNoCharts
	}

	if maxCharts <= 0 {
		maxCharts = domain.MaxProposalCharts
	}
	truncated := 0
	if len(charts) > maxCharts {
		truncated = len(charts) - maxCharts
		charts = charts[:maxCharts]
	}

	title := strings.TrimSpace(envelope.Title)
	if title == "" {
		title = strings.TrimSpace(envelope.DashboardTitle)
	}
	if title == "" {
		title = "Dashboard"
	}

	// A chart that does not decode stays in place so the validator can
	// reject it at its index; the proposal fails only if none decode.
	proposal := &domain.Proposal{Title: title, Charts: make([]domain.ChartSpec, 0, len(charts))}
	var firstErr error
	decoded := 0
	for _, data := range charts {
		spec, err := decodeChart(data)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			decoded++
		}
		proposal.Charts = append(proposal.Charts, spec)
	}
	if decoded == 0 {
		return nil, 0, fmt.Errorf("invalid charts: %w", firstErr)
	}
	return proposal, truncated, nil
}

func decodeChart(data json.RawMessage) (domain.ChartSpec, error) {
	var c rawChart
	if err := json.Unmarshal(data, &c); err != nil {
		var titles struct {
			Title      any `json:"title"`
			ChartTitle any `json:"chart_title"`
		}
		_ = json.Unmarshal(data, &titles)
		title, _ := titles.Title.(string)
		if title == "" {
			title, _ = titles.ChartTitle.(string)
		}
		return domain.ChartSpec{
			Title:       strings.TrimSpace(title),
			DecodeError: err.Error(),
		}, err
	}
	return c.toSpec(), nil
}

type rawChart struct {
	DatasetID       flexInt         `json:"dataset_id"`
	Kind            string          `json:"kind"`
	ChartType       string          `json:"chart_type"`
	Title           string          `json:"title"`
	ChartTitle      string          `json:"chart_title"`
	Metrics         []rawMetric     `json:"metrics"`
	MetricColumn    string          `json:"metric_column"`
	Dimensions      []string        `json:"dimensions"`
	DimensionColumn string          `json:"dimension_column"`
	Filters         []domain.Filter `json:"filters"`
}

func (c rawChart) isEmpty() bool {
	return c.DatasetID == 0 && c.Kind == "" && c.ChartType == "" && len(c.Metrics) == 0 && c.MetricColumn == ""
}

func (c rawChart) toSpec() domain.ChartSpec {
	kind := c.Kind
	if kind == "" {
		kind = c.ChartType
	}
	title := c.Title
	if title == "" {
		title = c.ChartTitle
	}

	spec := domain.ChartSpec{
		DatasetID: int(c.DatasetID),
		Kind:      domain.ParseChartKind(kind),
		Title:     strings.TrimSpace(title),
	}

	for _, m := range c.Metrics {
		spec.Metrics = append(spec.Metrics, domain.Metric{
			Column:    strings.TrimSpace(m.Column),
			Aggregate: normalizeAggregate(m.Aggregate),
		})
	}
	if len(spec.Metrics) == 0 && c.MetricColumn != "" {
		spec.Metrics = []domain.Metric{{Column: strings.TrimSpace(c.MetricColumn)}}
	}

	for _, d := range c.Dimensions {
		if d = strings.TrimSpace(d); d != "" {
			spec.Dimensions = append(spec.Dimensions, d)
		}
	}
	if len(spec.Dimensions) == 0 && c.DimensionColumn != "" {
		spec.Dimensions = []string{strings.TrimSpace(c.DimensionColumn)}
	}

	for _, f := range c.Filters {
		f.Column = strings.TrimSpace(f.Column)
		f.Operator = normalizeOperator(f.Operator)
		spec.Filters = append(spec.Filters, f)
	}
	return spec
}

// flexInt accepts 3, 3.0 and "3"
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != float64(int(v)) {
		return fmt.Errorf("dataset_id %s is not an integer", string(data))
	}
	*f = flexInt(int(v))
	return nil
}

// rawMetric accepts "revenue" or {"column": "revenue", "aggregate": "sum"}
type rawMetric struct {
	Column    string `json:"column"`
	Aggregate string `json:"aggregate"`
}

func (m *rawMetric) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Column = s
		return nil
	}
	type plain rawMetric
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = rawMetric(p)
	return nil
}

var aggregateAliases = map[string]string{
	"AVERAGE":        "AVG",
	"MEAN":           "AVG",
	"COUNT DISTINCT": "COUNT_DISTINCT",
	"DISTINCT":       "COUNT_DISTINCT",
	"TOTAL":          "SUM",
}

func normalizeAggregate(s string) string {
	a := strings.ToUpper(strings.TrimSpace(s))
	if alias, ok := aggregateAliases[a]; ok {
		return alias
	}
	return a
}

var operatorAliases = map[string]string{
	"=":           domain.FilterEq,
	"==":          domain.FilterEq,
	"!=":          domain.FilterNeq,
	"<>":          domain.FilterNeq,
	">":           domain.FilterGt,
	">=":          domain.FilterGte,
	"<":           domain.FilterLt,
	"<=":          domain.FilterLte,
	"not in":      domain.FilterNotIn,
	"is null":     domain.FilterIsNull,
	"is not null": domain.FilterIsNotNull,
}

func normalizeOperator(s string) string {
	op := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := operatorAliases[op]; ok {
		return alias
	}
	return op
}
