package superset

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when Superset rejects the presented credentials
var ErrUnauthorized = errors.New("superset: unauthorized")

// APIError is a non-2xx answer from Superset other than 401/403
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("superset error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Temporary reports whether the failure is on Superset's side
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500
}

// User is the result of /api/v1/me/
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsActive  bool   `json:"is_active"`
}

// DatasetSummary is a row of the dataset listing
type DatasetSummary struct {
	ID        int    `json:"id"`
	TableName string `json:"table_name"`
}

// DatasetColumn is a column of a dataset detail response
type DatasetColumn struct {
	ColumnName string `json:"column_name"`
	Type       string `json:"type"`
	IsDttm     bool   `json:"is_dttm"`
}

// DatasetDetail is the result of /api/v1/dataset/{id}
type DatasetDetail struct {
	ID        int             `json:"id"`
	TableName string          `json:"table_name"`
	Columns   []DatasetColumn `json:"columns"`
}

// ChartCreate is the body of POST /api/v1/chart/.
// Params is the JSON-encoded form-data blob Superset stores verbatim.
type ChartCreate struct {
	SliceName      string `json:"slice_name"`
	VizType        string `json:"viz_type"`
	DatasourceID   int    `json:"datasource_id"`
	DatasourceType string `json:"datasource_type"`
	Params         string `json:"params"`
	Owners         []int  `json:"owners,omitempty"`
}

// ChartUpdate is the body of PUT /api/v1/chart/{id}
type ChartUpdate struct {
	Owners     []int `json:"owners,omitempty"`
	Dashboards []int `json:"dashboards,omitempty"`
}

// Chart is the subset of GET /api/v1/chart/{id} this service reads
type Chart struct {
	ID         int    `json:"id"`
	SliceName  string `json:"slice_name"`
	Dashboards []ref  `json:"dashboards"`
	Owners     []ref  `json:"owners"`
}

// DashboardIDs returns the ids of dashboards the chart belongs to
func (c *Chart) DashboardIDs() []int {
	ids := make([]int, 0, len(c.Dashboards))
	for _, d := range c.Dashboards {
		ids = append(ids, d.ID)
	}
	return ids
}

type ref struct {
	ID int `json:"id"`
}

// DashboardCreate is the body of POST /api/v1/dashboard/
type DashboardCreate struct {
	DashboardTitle string `json:"dashboard_title"`
	Published      bool   `json:"published"`
	PositionJSON   string `json:"position_json,omitempty"`
	Owners         []int  `json:"owners,omitempty"`
}

// DashboardUpdate is the body of PUT /api/v1/dashboard/{id}
type DashboardUpdate struct {
	Owners []int `json:"owners,omitempty"`
}

type resultEnvelope[T any] struct {
	Result T `json:"result"`
}

type listEnvelope[T any] struct {
	Count  int `json:"count"`
	Result []T `json:"result"`
}

type createdEnvelope struct {
	ID int `json:"id"`
}

type errorEnvelope struct {
	Message json.RawMessage `json:"message"`
	Msg     string          `json:"msg"`
}

func errorMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return truncate(string(body), 500)
	}
	if env.Msg != "" {
		return env.Msg
	}
	if len(env.Message) > 0 {
		var s string
		if err := json.Unmarshal(env.Message, &s); err == nil {
			return s
		}
		return truncate(string(env.Message), 500)
	}
	return truncate(string(body), 500)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
