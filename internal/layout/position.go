package layout

import (
	"encoding/json"
	"fmt"

	"github.com/Rrens/bi-genie/internal/domain"
)

// BuildPositionJSON renders cells as a Superset v2 position_json document.
// titles maps chart id to slice name.
func BuildPositionJSON(cells []domain.LayoutCell, titles map[int]string) (string, error) {
	position := map[string]any{
		"DASHBOARD_VERSION_KEY": "v2",
		"ROOT_ID": map[string]any{
			"children": []string{"GRID_ID"},
			"id":       "ROOT_ID",
			"type":     "ROOT",
		},
	}

	var rowIDs []string
	rowChildren := map[string][]string{}

	for i, cell := range cells {
		rowID := fmt.Sprintf("ROW-%d", cell.Row+1)
		if _, seen := rowChildren[rowID]; !seen {
			rowIDs = append(rowIDs, rowID)
		}

		chartKey := fmt.Sprintf("CHART-%d", i+1)
		rowChildren[rowID] = append(rowChildren[rowID], chartKey)

		position[chartKey] = map[string]any{
			"children": []string{},
			"id":       chartKey,
			"type":     "CHART",
			"meta": map[string]any{
				"chartId":   cell.ChartID,
				"height":    cell.Height,
				"width":     cell.Width,
				"sliceName": titles[cell.ChartID],
			},
			"parents": []string{"ROOT_ID", "GRID_ID", rowID},
		}
	}

	for _, rowID := range rowIDs {
		position[rowID] = map[string]any{
			"children": rowChildren[rowID],
			"id":       rowID,
			"type":     "ROW",
			"meta":     map[string]any{"background": "BACKGROUND_TRANSPARENT"},
			"parents":  []string{"ROOT_ID", "GRID_ID"},
		}
	}

	if rowIDs == nil {
		rowIDs = []string{}
	}
	position["GRID_ID"] = map[string]any{
		"children": rowIDs,
		"id":       "GRID_ID",
		"type":     "GRID",
		"parents":  []string{"ROOT_ID"},
	}

	data, err := json.Marshal(position)
	if err != nil {
		return "", fmt.Errorf("failed to marshal position json: %w", err)
	}
	return string(data), nil
}
