package domain

import (
	"context"
	"time"
)

// DefaultSessionTTL is the inactivity window after which a session is gone
const DefaultSessionTTL = 30 * time.Minute

// Outcome summarizes how a round ended
type Outcome struct {
	Status       ReportStatus `json:"status"`
	FailureKind  string       `json:"failure_kind,omitempty"`
	Message      string       `json:"message,omitempty"`
	DashboardID  *int         `json:"dashboard_id,omitempty"`
	DashboardURL string       `json:"dashboard_url,omitempty"`
	ChartIDs     []int        `json:"chart_ids,omitempty"`
}

// Turn is one request/response exchange within a session
type Turn struct {
	Request  string    `json:"request"`
	Proposal *Proposal `json:"proposal,omitempty"`
	Outcome  Outcome   `json:"outcome"`
	At       time.Time `json:"at"`
}

// SessionRecord holds the conversation history of one session id
type SessionRecord struct {
	ID           string    `json:"id"`
	Turns        []Turn    `json:"turns"`
	LastActivity time.Time `json:"last_activity"`
}

// NewSessionRecord starts an empty record
func NewSessionRecord(id string, now time.Time) *SessionRecord {
	return &SessionRecord{ID: id, Turns: []Turn{}, LastActivity: now}
}

// Expired reports whether the record has been idle longer than ttl
func (r *SessionRecord) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.LastActivity) > ttl
}

// RecentTurns returns at most n of the latest turns, oldest first
func (r *SessionRecord) RecentTurns(n int) []Turn {
	if r == nil || n <= 0 {
		return nil
	}
	if len(r.Turns) <= n {
		return r.Turns
	}
	return r.Turns[len(r.Turns)-n:]
}

// SessionStore keeps session records with lazy inactivity expiry.
// An expired record is indistinguishable from a missing one.
type SessionStore interface {
	Get(ctx context.Context, id string, now time.Time) (*SessionRecord, error)
	Append(ctx context.Context, id string, turn Turn, now time.Time) error
	Delete(ctx context.Context, id string) error
}
