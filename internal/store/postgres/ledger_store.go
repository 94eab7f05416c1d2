package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// LedgerStore implements domain.LedgerStore using the trades table.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const entrySelectCols = `id, challenge_id, user_id, symbol, side, price, quantity, pnl, seq, executed_at`

const insertEntry = `
	INSERT INTO trades (
		id, challenge_id, user_id, symbol, side, price, quantity, pnl, seq, executed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO NOTHING`

func entryArgs(e domain.LedgerEntry) []any {
	return []any{
		e.ID, e.ChallengeID, e.OwnerID, e.Symbol, string(e.Side),
		e.Price, e.Quantity, e.PnL, e.Seq, e.Timestamp,
	}
}

func collectEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	defer rows.Close()
	out := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.ChallengeID, &e.OwnerID, &e.Symbol, &e.Side,
			&e.Price, &e.Quantity, &e.PnL, &e.Seq, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntriesFor returns the challenge's entries in sequence order.
func (s *LedgerStore) EntriesFor(ctx context.Context, challengeID string) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entrySelectCols+` FROM trades WHERE challenge_id = $1 ORDER BY seq ASC`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("postgres: entries for %s: %w", challengeID, err)
	}
	out, err := collectEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan entries for %s: %w", challengeID, err)
	}
	return out, nil
}

// ListEntries returns the user's entries across challenges, newest first.
func (s *LedgerStore) ListEntries(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query, args := newListQuery(`SELECT `+entrySelectCols+` FROM trades WHERE user_id = $1`, ownerID).
		apply(opts, "executed_at", "executed_at DESC, seq DESC")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list entries for %s: %w", ownerID, err)
	}
	out, err := collectEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan entries for %s: %w", ownerID, err)
	}
	return out, nil
}

// SumPnLSince sums pnl of the challenge's entries executed at or after since.
func (s *LedgerStore) SumPnLSince(ctx context.Context, challengeID string, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE challenge_id = $1 AND executed_at >= $2`,
		challengeID, since,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum pnl for %s: %w", challengeID, err)
	}
	return sum, nil
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
