package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// EventStore implements domain.EventStore over lifecycle_events and
// challenge_history.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const insertEvent = `
	INSERT INTO lifecycle_events (
		id, challenge_id, user_id, from_status, to_status, reason, trigger,
		balance_at_transition, occurred_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING`

func eventArgs(ev domain.LifecycleEvent) []any {
	return []any{
		ev.ID, ev.ChallengeID, ev.OwnerID, string(ev.From), string(ev.To),
		string(ev.Reason), string(ev.Trigger), ev.BalanceAtTransition, ev.Timestamp,
	}
}

const insertHistory = `
	INSERT INTO challenge_history (
		challenge_id, user_id, initial_balance, final_balance, status,
		duration_days, profit_amount, profit_percentage, completed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (challenge_id) DO NOTHING`

func historyArgs(h domain.ChallengeHistory) []any {
	return []any{
		h.ChallengeID, h.OwnerID, h.InitialBalance, h.FinalBalance, string(h.Status),
		h.DurationDays, h.ProfitAmount, h.ProfitPercentage, h.CompletedAt,
	}
}

// EventsFor returns the challenge's lifecycle events, oldest first.
func (s *EventStore) EventsFor(ctx context.Context, challengeID string) ([]domain.LifecycleEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, challenge_id, user_id, from_status, to_status, reason, trigger,
			balance_at_transition, occurred_at
		FROM lifecycle_events WHERE challenge_id = $1 ORDER BY occurred_at ASC`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("postgres: events for %s: %w", challengeID, err)
	}
	defer rows.Close()

	out := make([]domain.LifecycleEvent, 0)
	for rows.Next() {
		var ev domain.LifecycleEvent
		if err := rows.Scan(
			&ev.ID, &ev.ChallengeID, &ev.OwnerID, &ev.From, &ev.To, &ev.Reason, &ev.Trigger,
			&ev.BalanceAtTransition, &ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: events for %s rows: %w", challengeID, err)
	}
	return out, nil
}

// ListHistory returns the user's completed challenges, most recent first.
func (s *EventStore) ListHistory(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.ChallengeHistory, error) {
	query, args := newListQuery(`
		SELECT challenge_id, user_id, initial_balance, final_balance, status,
			duration_days, profit_amount, profit_percentage, completed_at
		FROM challenge_history WHERE user_id = $1`, ownerID).
		apply(opts, "completed_at", "completed_at DESC")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: history for %s: %w", ownerID, err)
	}
	defer rows.Close()

	out := make([]domain.ChallengeHistory, 0)
	for rows.Next() {
		var h domain.ChallengeHistory
		if err := rows.Scan(
			&h.ChallengeID, &h.OwnerID, &h.InitialBalance, &h.FinalBalance, &h.Status,
			&h.DurationDays, &h.ProfitAmount, &h.ProfitPercentage, &h.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan history: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: history for %s rows: %w", ownerID, err)
	}
	return out, nil
}

var _ domain.EventStore = (*EventStore)(nil)
