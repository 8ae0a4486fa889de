package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubmitRequest is a natural-language dashboard request
type SubmitRequest struct {
	Message   string `json:"message" validate:"required,max=4000"`
	SessionID string `json:"session_id" validate:"required,max=128"`
}

// ReportStatus is the overall result of a round
type ReportStatus string

const (
	ReportSuccess ReportStatus = "success"
	ReportPartial ReportStatus = "partial"
	ReportFailed  ReportStatus = "failed"
)

// Failure is the typed failure attached to a report
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Report is returned to the caller for every round, successful or not.
// On failure it still lists every object the round created.
type Report struct {
	RoundID      uuid.UUID      `json:"round_id"`
	Status       ReportStatus   `json:"status"`
	Title        string         `json:"title,omitempty"`
	DashboardID  *int           `json:"dashboard_id,omitempty"`
	DashboardURL string         `json:"dashboard_url,omitempty"`
	ChartIDs     []int          `json:"chart_ids"`
	Layout       []LayoutCell   `json:"layout,omitempty"`
	Failure      *Failure       `json:"failure,omitempty"`
	FailedCharts []ChartFailure `json:"failed_charts,omitempty"`
	Truncated    int            `json:"truncated,omitempty"`
}

// Round is the ledger row persisted for every submitted request
type Round struct {
	ID             uuid.UUID      `json:"id"`
	SessionID      string         `json:"session_id"`
	OwnerID        *int           `json:"owner_id,omitempty"`
	Request        string         `json:"request"`
	Status         ReportStatus   `json:"status"`
	FailureKind    string         `json:"failure_kind,omitempty"`
	FailureMessage string         `json:"failure_message,omitempty"`
	DashboardID    *int           `json:"dashboard_id,omitempty"`
	ChartIDs       []int          `json:"chart_ids"`
	FailedCharts   []ChartFailure `json:"failed_charts,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// RoundRepository persists the round ledger
type RoundRepository interface {
	Create(ctx context.Context, round *Round) error
	ListByOwner(ctx context.Context, ownerID int, limit int) ([]Round, error)
}
