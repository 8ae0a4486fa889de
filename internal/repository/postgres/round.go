package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rrens/bi-genie/internal/domain"
)

// RoundRepository implements domain.RoundRepository
type RoundRepository struct {
	pool *pgxpool.Pool
}

// NewRoundRepository creates a new round repository
func NewRoundRepository(pool *pgxpool.Pool) *RoundRepository {
	return &RoundRepository{pool: pool}
}

// Create inserts a ledger row
func (r *RoundRepository) Create(ctx context.Context, round *domain.Round) error {
	query := `
		INSERT INTO genie_rounds (id, session_id, owner_id, request, status, failure_kind, failure_message,
			dashboard_id, chart_ids, failed_charts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var failedJSON []byte
	if len(round.FailedCharts) > 0 {
		var err error
		failedJSON, err = json.Marshal(round.FailedCharts)
		if err != nil {
			return fmt.Errorf("failed to marshal failed charts: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx, query,
		round.ID,
		round.SessionID,
		round.OwnerID,
		round.Request,
		string(round.Status),
		nullString(round.FailureKind),
		nullString(round.FailureMessage),
		round.DashboardID,
		toInt32s(round.ChartIDs),
		failedJSON,
		round.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create round: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's most recent rounds, newest first
func (r *RoundRepository) ListByOwner(ctx context.Context, ownerID int, limit int) ([]domain.Round, error) {
	query := `
		SELECT id, session_id, owner_id, request, status, COALESCE(failure_kind, ''), COALESCE(failure_message, ''),
			dashboard_id, chart_ids, failed_charts, created_at
		FROM genie_rounds
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}

	rounds, err := pgx.CollectRows(rows, scanRound)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rounds: %w", err)
	}
	return rounds, nil
}

func scanRound(row pgx.CollectableRow) (domain.Round, error) {
	var (
		round      domain.Round
		status     string
		chartIDs   []int32
		failedJSON []byte
	)
	err := row.Scan(
		&round.ID,
		&round.SessionID,
		&round.OwnerID,
		&round.Request,
		&status,
		&round.FailureKind,
		&round.FailureMessage,
		&round.DashboardID,
		&chartIDs,
		&failedJSON,
		&round.CreatedAt,
	)
	if err != nil {
		return round, err
	}

	round.Status = domain.ReportStatus(status)
	round.ChartIDs = make([]int, 0, len(chartIDs))
	for _, id := range chartIDs {
		round.ChartIDs = append(round.ChartIDs, int(id))
	}
	if len(failedJSON) > 0 {
		if err := json.Unmarshal(failedJSON, &round.FailedCharts); err != nil {
			return round, fmt.Errorf("failed to unmarshal failed charts: %w", err)
		}
	}
	return round, nil
}

func toInt32s(ids []int) []int32 {
	out := make([]int32, 0, len(ids))
	for _, id := range ids {
		out = append(out, int32(id))
	}
	return out
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
