package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// Committer implements domain.Committer: the challenge update, ledger entry,
// lifecycle event and history row of one trade land in a single transaction.
type Committer struct {
	pool *pgxpool.Pool
}

// NewCommitter creates a new Committer backed by the given pool.
func NewCommitter(pool *pgxpool.Pool) *Committer {
	return &Committer{pool: pool}
}

// Commit applies tc when the stored challenge is still at tc.ExpectedVersion.
func (c *Committer) Commit(ctx context.Context, tc domain.TradeCommit) error {
	ch := tc.Challenge

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: commit %s: begin: %w", ch.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE challenges
		SET current_balance = $1, status = $2, version = $3, updated_at = $4
		WHERE id = $5 AND version = $6`,
		ch.CurrentBalance, string(ch.Status), ch.Version, ch.UpdatedAt, ch.ID, tc.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("postgres: commit %s: update challenge: %w", ch.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM challenges WHERE id = $1)`, ch.ID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: commit %s: check challenge: %w", ch.ID, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: commit %s at version %d: %w", ch.ID, tc.ExpectedVersion, domain.ErrVersionConflict)
	}

	if tc.Entry != nil {
		if _, err := tx.Exec(ctx, insertEntry, entryArgs(*tc.Entry)...); err != nil {
			return fmt.Errorf("postgres: commit %s: insert entry: %w", ch.ID, err)
		}
	}
	if tc.Event != nil {
		if _, err := tx.Exec(ctx, insertEvent, eventArgs(*tc.Event)...); err != nil {
			return fmt.Errorf("postgres: commit %s: insert event: %w", ch.ID, err)
		}
	}
	if tc.History != nil {
		if _, err := tx.Exec(ctx, insertHistory, historyArgs(*tc.History)...); err != nil {
			return fmt.Errorf("postgres: commit %s: insert history: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit %s: %w", ch.ID, err)
	}
	return nil
}

var _ domain.Committer = (*Committer)(nil)
