package domain

import "context"

// LayoutCell places one chart on the dashboard grid
type LayoutCell struct {
	ChartID int `json:"chart_id"`
	Row     int `json:"row"`
	Column  int `json:"column"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

// Dashboard is the container created for a round
type Dashboard struct {
	ID    int          `json:"id"`
	Title string       `json:"title"`
	Cells []LayoutCell `json:"cells"`
	Owner Identity     `json:"owner"`
	URL   string       `json:"url"`
}

// LinkStore records chart membership of a dashboard.
// Link must be idempotent: linking an existing pair reports created=false and no error.
type LinkStore interface {
	Link(ctx context.Context, dashboardID, chartID int) (created bool, err error)
	Links(ctx context.Context, dashboardID int) ([]int, error)
}
