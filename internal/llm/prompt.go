package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Rrens/bi-genie/internal/domain"
)

const proposalContract = `{"title": "<dashboard title>", "charts": [
  {"dataset_id": <int>, "kind": "<kind>", "title": "<chart title>",
   "metrics": [{"column": "<numeric column>", "aggregate": "SUM|AVG|COUNT|COUNT_DISTINCT|MIN|MAX"}],
   "dimensions": ["<column>"],
   "filters": [{"column": "<column>", "operator": "eq|neq|gt|gte|lt|lte|in|not_in|like|is_null|is_not_null", "value": <value>}]}
]}`

// SystemPrompt describes the assistant's role and the caller's datasets
func SystemPrompt(req Request) string {
	name := req.UserName
	if name == "" {
		name = "there"
	}
	maxCharts := req.MaxCharts
	if maxCharts <= 0 {
		maxCharts = domain.MaxProposalCharts
	}

	kinds := make([]string, len(domain.ChartKinds))
	for i, k := range domain.ChartKinds {
		kinds[i] = string(k)
	}

	return fmt.Sprintf(`You are BI Genie, a dashboard builder embedded in Apache Superset.
Charts and dashboards are created automatically from your answer; the user does nothing by hand.

You are working for %s.

Available datasets (use the exact dataset_id integer):
%s

Rules:
1. Only use datasets and columns listed above. Never reference any other dataset.
2. Chart kinds: %s.
3. Propose between 1 and %d charts. Prefer several complementary charts for broad requests.
4. time_series charts use a date column as the first dimension.
5. big_number charts take exactly one metric and no dimensions.
6. Answer with ONLY one raw JSON object, no markdown, no explanation, in this shape:
%s`, name, renderDatasets(req.Datasets), strings.Join(kinds, ", "), maxCharts, proposalContract)
}

// UserPrompt renders recent turns, the request and any corrective instruction
func UserPrompt(req Request) string {
	var b strings.Builder

	if len(req.History) > 0 {
		b.WriteString("Earlier in this conversation:\n")
		for _, turn := range req.History {
			fmt.Fprintf(&b, "- User asked: %s\n", turn.Request)
			if turn.Proposal != nil {
				fmt.Fprintf(&b, "  You proposed %q with %d chart(s)\n", turn.Proposal.Title, len(turn.Proposal.Charts))
			}
			if turn.Outcome.Status != "" {
				fmt.Fprintf(&b, "  Outcome: %s", turn.Outcome.Status)
				if turn.Outcome.Message != "" {
					fmt.Fprintf(&b, " (%s)", turn.Outcome.Message)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Request: %s\n", req.Question)

	if req.Corrective != "" {
		fmt.Fprintf(&b, "\nYour previous answer could not be used: %s\nReply again with ONLY the JSON object described above.\n", req.Corrective)
	}

	return b.String()
}

// BuildPrompt joins system and user prompts for single-prompt models
func BuildPrompt(req Request) string {
	return SystemPrompt(req) + "\n\n" + UserPrompt(req)
}

func renderDatasets(datasets []domain.Dataset) string {
	if len(datasets) == 0 {
		return "(none)"
	}

	type entry struct {
		ID      int      `json:"dataset_id"`
		Name    string   `json:"name"`
		Columns []string `json:"columns"`
		Dates   []string `json:"date_columns,omitempty"`
	}

	entries := make([]entry, 0, len(datasets))
	for _, ds := range datasets {
		e := entry{ID: ds.ID, Name: ds.Name, Columns: ds.ColumnNames()}
		for _, c := range ds.Columns {
			if c.IsTemporal {
				e.Dates = append(e.Dates, c.Name)
			}
		}
		entries = append(entries, e)
	}

	data, _ := json.MarshalIndent(entries, "", "  ")
	return string(data)
}

// ExtractJSON pulls the JSON object out of a model answer: code fences are
// stripped and the text between the first '{' and the last '}' is returned.
func ExtractJSON(content string) string {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		if nl := strings.Index(text, "\n"); nl != -1 {
			text = text[nl+1:]
		}
		if end := strings.LastIndex(text, "```"); end != -1 {
			text = text[:end]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}
