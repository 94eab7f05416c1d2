package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// ChallengeStore implements domain.ChallengeStore and domain.ArchiveStore
// using PostgreSQL.
type ChallengeStore struct {
	pool *pgxpool.Pool
}

// NewChallengeStore creates a new ChallengeStore backed by the given pool.
func NewChallengeStore(pool *pgxpool.Pool) *ChallengeStore {
	return &ChallengeStore{pool: pool}
}

const challengeSelectCols = `id, user_id, plan, initial_balance, current_balance,
	max_daily_loss, max_total_loss, profit_target, status, version,
	created_at, updated_at`

func scanChallenge(row pgx.Row) (domain.Challenge, error) {
	var c domain.Challenge
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Plan, &c.InitialBalance, &c.CurrentBalance,
		&c.MaxDailyLoss, &c.MaxTotalLoss, &c.ProfitTarget, &c.Status, &c.Version,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func collectChallenges(rows pgx.Rows) ([]domain.Challenge, error) {
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
func (s *ChallengeStore) CreateChallenge(ctx context.Context, c domain.Challenge) error {
	const query = `
		INSERT INTO challenges (
			id, user_id, plan, initial_balance, current_balance,
			max_daily_loss, max_total_loss, profit_target, status, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.OwnerID, c.Plan, c.InitialBalance, c.CurrentBalance,
		c.MaxDailyLoss, c.MaxTotalLoss, c.ProfitTarget, string(c.Status), c.Version,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: create challenge %s: %w", c.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create challenge %s: %w", c.ID, err)
	}
	return nil
}

// GetChallenge returns the challenge or domain.ErrNotFound.
func (s *ChallengeStore) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+challengeSelectCols+` FROM challenges WHERE id = $1`, id)
	c, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Challenge{}, domain.ErrNotFound
		}
		return domain.Challenge{}, fmt.Errorf("postgres: get challenge %s: %w", id, err)
	}
	return c, nil
}

// ListChallenges returns the user's challenges, newest first.
func (s *ChallengeStore) ListChallenges(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.Challenge, error) {
	query, args := newListQuery(`SELECT `+challengeSelectCols+` FROM challenges WHERE user_id = $1`, ownerID).
		apply(opts, "created_at", "created_at DESC, id DESC")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list challenges for %s: %w", ownerID, err)
	}
	out, err := collectChallenges(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan challenges for %s: %w", ownerID, err)
	}
	return out, nil
}

// ListChallengesByStatus returns challenges in the given status, newest first.
func (s *ChallengeStore) ListChallengesByStatus(ctx context.Context, status domain.ChallengeStatus, opts domain.ListOpts) ([]domain.Challenge, error) {
	query, args := newListQuery(`SELECT `+challengeSelectCols+` FROM challenges WHERE status = $1`, string(status)).
		apply(opts, "created_at", "created_at DESC, id DESC")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s challenges: %w", status, err)
	}
	out, err := collectChallenges(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan %s challenges: %w", status, err)
	}
	return out, nil
}

// Leaderboard ranks challenges by profit over initial balance.
func (s *ChallengeStore) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	query := `SELECT ` + challengeSelectCols + ` FROM challenges
		ORDER BY (current_balance - initial_balance) / initial_balance DESC, created_at ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: leaderboard: %w", err)
	}
	list, err := collectChallenges(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan leaderboard: %w", err)
	}
	return domain.RankChallenges(list), nil
}

// ListUnarchived returns terminal challenges updated before the cutoff that
// have not been archived, oldest first.
func (s *ChallengeStore) ListUnarchived(ctx context.Context, before time.Time, limit int) ([]domain.Challenge, error) {
	query := `SELECT ` + challengeSelectCols + ` FROM challenges
		WHERE status IN ('passed', 'failed') AND archived_at IS NULL AND updated_at < $1
		ORDER BY updated_at ASC`
	args := []any{before}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unarchived challenges: %w", err)
	}
	out, err := collectChallenges(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan unarchived challenges: %w", err)
	}
	return out, nil
}

// MarkArchived stamps archived_at on the challenge.
func (s *ChallengeStore) MarkArchived(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE challenges SET archived_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("postgres: mark challenge %s archived: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var (
	_ domain.ChallengeStore = (*ChallengeStore)(nil)
	_ domain.ArchiveStore   = (*ChallengeStore)(nil)
)
