package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// RoundFinished is emitted after every round with the objects it created
type RoundFinished struct {
	RoundID     uuid.UUID `json:"round_id"`
	SessionID   string    `json:"session_id"`
	OwnerID     *int      `json:"owner_id,omitempty"`
	Status      string    `json:"status"`
	FailureKind string    `json:"failure_kind,omitempty"`
	DashboardID *int      `json:"dashboard_id,omitempty"`
	ChartIDs    []int     `json:"chart_ids"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Publisher sends round events to whoever tracks created Superset objects
type Publisher interface {
	Publish(ctx context.Context, event RoundFinished) error
	Close()
}

// NATSPublisher publishes events on core NATS subjects
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher connects to NATS
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("bi-genie"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

// Publish sends the event to <subject>.<status>
func (p *NATSPublisher) Publish(ctx context.Context, event RoundFinished) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.subject, event.Status)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

// Close drains the NATS connection
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

// Noop drops events; used when no NATS url is configured
type Noop struct{}

func (Noop) Publish(context.Context, RoundFinished) error { return nil }
func (Noop) Close()                                       {}
