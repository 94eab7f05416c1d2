// Package sqlite implements the domain stores on a single SQLite file. It
// backs the "sqlite" storage driver for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

//go:embed schema.sql
var schema string

// Store keeps every table in one SQLite database. Times are stored as unix
// nanoseconds and amounts as decimal text so no precision is lost.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping checks that the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

type rowScanner interface {
	Scan(dest ...any) error
}

// ---------------------------------------------------------------------------
// ChallengeStore
// ---------------------------------------------------------------------------

const challengeCols = `id, user_id, plan, initial_balance, current_balance,
	max_daily_loss, max_total_loss, profit_target, status, version, created_at, updated_at`

func scanChallenge(r rowScanner) (domain.Challenge, error) {
	var (
		c                domain.Challenge
		status           string
		created, updated int64
	)
	err := r.Scan(&c.ID, &c.OwnerID, &c.Plan, &c.InitialBalance, &c.CurrentBalance,
		&c.MaxDailyLoss, &c.MaxTotalLoss, &c.ProfitTarget, &status, &c.Version, &created, &updated)
	if err != nil {
		return domain.Challenge{}, err
	}
	c.Status = domain.ChallengeStatus(status)
	c.CreatedAt = fromNanos(created)
	c.UpdatedAt = fromNanos(updated)
	return c, nil
}

func (s *Store) queryChallenges(ctx context.Context, query string, args ...any) ([]domain.Challenge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Challenge, 0)
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateChallenge inserts c. A duplicate id yields domain.ErrAlreadyExists.
func (s *Store) CreateChallenge(ctx context.Context, c domain.Challenge) error {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO challenges (`+challengeCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Plan, c.InitialBalance.String(), c.CurrentBalance.String(),
		c.MaxDailyLoss.String(), c.MaxTotalLoss.String(), c.ProfitTarget.String(),
		string(c.Status), c.Version, nanos(c.CreatedAt), nanos(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create challenge %s: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: create challenge %s: %w", c.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// GetChallenge returns the challenge or domain.ErrNotFound.
func (s *Store) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	c, err := scanChallenge(s.db.QueryRowContext(ctx, `SELECT `+challengeCols+` FROM challenges WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Challenge{}, domain.ErrNotFound
		}
		return domain.Challenge{}, fmt.Errorf("sqlite: get challenge %s: %w", id, err)
	}
	return c, nil
}

// ListChallenges returns the user's challenges, newest first.
func (s *Store) ListChallenges(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.Challenge, error) {
	query, args := listClause(`SELECT `+challengeCols+` FROM challenges WHERE user_id = ?`, []any{ownerID},
		opts, "created_at", "created_at DESC, id DESC")
	out, err := s.queryChallenges(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list challenges for %s: %w", ownerID, err)
	}
	return out, nil
}

// ListChallengesByStatus returns challenges in the given status, newest first.
func (s *Store) ListChallengesByStatus(ctx context.Context, status domain.ChallengeStatus, opts domain.ListOpts) ([]domain.Challenge, error) {
	query, args := listClause(`SELECT `+challengeCols+` FROM challenges WHERE status = ?`, []any{string(status)},
		opts, "created_at", "created_at DESC, id DESC")
	out, err := s.queryChallenges(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %s challenges: %w", status, err)
	}
	return out, nil
}

// Leaderboard ranks challenges by profit percentage. Amounts are text in
// SQLite, so ranking happens in Go.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	all, err := s.queryChallenges(ctx, `SELECT `+challengeCols+` FROM challenges`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: leaderboard: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool {
		pi, pj := all[i].ProfitPercentage(), all[j].ProfitPercentage()
		if !pi.Equal(pj) {
			return pi.GreaterThan(pj)
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return domain.RankChallenges(all), nil
}

// ---------------------------------------------------------------------------
// LedgerStore
// ---------------------------------------------------------------------------

const entryCols = `id, challenge_id, user_id, symbol, side, price, quantity, pnl, seq, executed_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEntry(ctx context.Context, db execer, e domain.LedgerEntry) error {
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO trades (`+entryCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ChallengeID, e.OwnerID, e.Symbol, string(e.Side),
		e.Price.String(), e.Quantity.String(), e.PnL.String(), e.Seq, nanos(e.Timestamp),
	)
	return err
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var (
			e    domain.LedgerEntry
			side string
			at   int64
		)
		if err := rows.Scan(&e.ID, &e.ChallengeID, &e.OwnerID, &e.Symbol, &side,
			&e.Price, &e.Quantity, &e.PnL, &e.Seq, &at); err != nil {
			return nil, err
		}
		e.Side = domain.Side(side)
		e.Timestamp = fromNanos(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntriesFor returns the challenge's entries in sequence order.
func (s *Store) EntriesFor(ctx context.Context, challengeID string) ([]domain.LedgerEntry, error) {
	out, err := s.queryEntries(ctx, `SELECT `+entryCols+` FROM trades WHERE challenge_id = ? ORDER BY seq ASC`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: entries for %s: %w", challengeID, err)
	}
	return out, nil
}

// ListEntries returns the user's entries across challenges, newest first.
func (s *Store) ListEntries(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query, args := listClause(`SELECT `+entryCols+` FROM trades WHERE user_id = ?`, []any{ownerID},
		opts, "executed_at", "executed_at DESC, seq DESC")
	out, err := s.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list entries for %s: %w", ownerID, err)
	}
	return out, nil
}

// SumPnLSince sums pnl in decimal arithmetic over entries at or after since.
func (s *Store) SumPnLSince(ctx context.Context, challengeID string, since time.Time) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pnl FROM trades WHERE challenge_id = ? AND executed_at >= ?`, challengeID, nanos(since))
	if err != nil {
		return decimal.Zero, fmt.Errorf("sqlite: sum pnl for %s: %w", challengeID, err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var pnl decimal.Decimal
		if err := rows.Scan(&pnl); err != nil {
			return decimal.Zero, fmt.Errorf("sqlite: scan pnl: %w", err)
		}
		sum = sum.Add(pnl)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("sqlite: sum pnl for %s rows: %w", challengeID, err)
	}
	return sum, nil
}

// ---------------------------------------------------------------------------
// EventStore
// ---------------------------------------------------------------------------

// EventsFor returns the challenge's lifecycle events, oldest first.
func (s *Store) EventsFor(ctx context.Context, challengeID string) ([]domain.LifecycleEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, challenge_id, user_id, from_status, to_status, reason, trigger,
			balance_at_transition, occurred_at
		FROM lifecycle_events WHERE challenge_id = ? ORDER BY occurred_at ASC`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: events for %s: %w", challengeID, err)
	}
	defer rows.Close()

	out := make([]domain.LifecycleEvent, 0)
	for rows.Next() {
		var (
			ev                        domain.LifecycleEvent
			from, to, reason, trigger string
			at                        int64
		)
		if err := rows.Scan(&ev.ID, &ev.ChallengeID, &ev.OwnerID, &from, &to, &reason, &trigger,
			&ev.BalanceAtTransition, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		ev.From = domain.ChallengeStatus(from)
		ev.To = domain.ChallengeStatus(to)
		ev.Reason = domain.TransitionReason(reason)
		ev.Trigger = domain.TransitionTrigger(trigger)
		ev.Timestamp = fromNanos(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListHistory returns the user's completed challenges, most recent first.
func (s *Store) ListHistory(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.ChallengeHistory, error) {
	query, args := listClause(`
		SELECT challenge_id, user_id, initial_balance, final_balance, status,
			duration_days, profit_amount, profit_percentage, completed_at
		FROM challenge_history WHERE user_id = ?`, []any{ownerID}, opts, "completed_at", "completed_at DESC")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history for %s: %w", ownerID, err)
	}
	defer rows.Close()

	out := make([]domain.ChallengeHistory, 0)
	for rows.Next() {
		var (
			h      domain.ChallengeHistory
			status string
			at     int64
		)
		if err := rows.Scan(&h.ChallengeID, &h.OwnerID, &h.InitialBalance, &h.FinalBalance, &status,
			&h.DurationDays, &h.ProfitAmount, &h.ProfitPercentage, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan history: %w", err)
		}
		h.Status = domain.ChallengeStatus(status)
		h.CompletedAt = fromNanos(at)
		out = append(out, h)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Committer
// ---------------------------------------------------------------------------

// Commit applies tc in one transaction when the stored challenge is still at
// tc.ExpectedVersion.
func (s *Store) Commit(ctx context.Context, tc domain.TradeCommit) error {
	ch := tc.Challenge

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: commit %s: begin: %w", ch.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE challenges SET current_balance = ?, status = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		ch.CurrentBalance.String(), string(ch.Status), ch.Version, nanos(ch.UpdatedAt), ch.ID, tc.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("sqlite: commit %s: update challenge: %w", ch.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM challenges WHERE id = ?`, ch.ID).Scan(&exists); err != nil {
			return fmt.Errorf("sqlite: commit %s: check challenge: %w", ch.ID, err)
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return fmt.Errorf("sqlite: commit %s at version %d: %w", ch.ID, tc.ExpectedVersion, domain.ErrVersionConflict)
	}

	if tc.Entry != nil {
		if err := insertEntry(ctx, tx, *tc.Entry); err != nil {
			return fmt.Errorf("sqlite: commit %s: insert entry: %w", ch.ID, err)
		}
	}
	if ev := tc.Event; ev != nil {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO lifecycle_events (
				id, challenge_id, user_id, from_status, to_status, reason, trigger,
				balance_at_transition, occurred_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.ChallengeID, ev.OwnerID, string(ev.From), string(ev.To), string(ev.Reason),
			string(ev.Trigger), ev.BalanceAtTransition.String(), nanos(ev.Timestamp),
		); err != nil {
			return fmt.Errorf("sqlite: commit %s: insert event: %w", ch.ID, err)
		}
	}
	if h := tc.History; h != nil {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO challenge_history (
				challenge_id, user_id, initial_balance, final_balance, status,
				duration_days, profit_amount, profit_percentage, completed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.ChallengeID, h.OwnerID, h.InitialBalance.String(), h.FinalBalance.String(), string(h.Status),
			h.DurationDays, h.ProfitAmount.String(), h.ProfitPercentage.String(), nanos(h.CompletedAt),
		); err != nil {
			return fmt.Errorf("sqlite: commit %s: insert history: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit %s: %w", ch.ID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// AuditStore
// ---------------------------------------------------------------------------

// Log appends an audit entry with detail encoded as JSON.
func (s *Store) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO audit_log (event, detail, created_at) VALUES (?, ?, ?)`,
		event, string(detailJSON), nanos(time.Now())); err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries, newest first.
func (s *Store) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := listClause(`SELECT id, event, detail, created_at FROM audit_log WHERE 1 = 1`, nil,
		opts, "created_at", "created_at DESC, id DESC")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			e      domain.AuditEntry
			detail sql.NullString
			at     int64
		)
		if err := rows.Scan(&e.ID, &e.Event, &detail, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		e.CreatedAt = fromNanos(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// ArchiveStore
// ---------------------------------------------------------------------------

// ListUnarchived returns terminal challenges updated before the cutoff that
// have not been archived, oldest first.
func (s *Store) ListUnarchived(ctx context.Context, before time.Time, limit int) ([]domain.Challenge, error) {
	query := `SELECT ` + challengeCols + ` FROM challenges
		WHERE status IN ('passed', 'failed') AND archived_at IS NULL AND updated_at < ?
		ORDER BY updated_at ASC`
	args := []any{nanos(before)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	out, err := s.queryChallenges(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list unarchived challenges: %w", err)
	}
	return out, nil
}

// MarkArchived stamps archived_at on the challenge.
func (s *Store) MarkArchived(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE challenges SET archived_at = ? WHERE id = ?`, nanos(at), id)
	if err != nil {
		return fmt.Errorf("sqlite: mark challenge %s archived: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// listClause appends the time range, order and pagination of opts.
func listClause(base string, args []any, opts domain.ListOpts, timeCol, orderBy string) (string, []any) {
	var sb strings.Builder
	sb.WriteString(base)
	if opts.Since != nil {
		sb.WriteString(" AND " + timeCol + " >= ?")
		args = append(args, nanos(*opts.Since))
	}
	if opts.Until != nil {
		sb.WriteString(" AND " + timeCol + " < ?")
		args = append(args, nanos(*opts.Until))
	}
	sb.WriteString(" ORDER BY " + orderBy)
	if opts.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			sb.WriteString(" LIMIT -1")
		}
		sb.WriteString(" OFFSET ?")
		args = append(args, opts.Offset)
	}
	return sb.String(), args
}

// Compile-time interface checks.
var (
	_ domain.ChallengeStore = (*Store)(nil)
	_ domain.LedgerStore    = (*Store)(nil)
	_ domain.EventStore     = (*Store)(nil)
	_ domain.Committer      = (*Store)(nil)
	_ domain.AuditStore     = (*Store)(nil)
	_ domain.ArchiveStore   = (*Store)(nil)
)
