package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ChallengeStore persists challenges.
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c Challenge) error
	GetChallenge(ctx context.Context, id string) (Challenge, error)
	ListChallenges(ctx context.Context, ownerID string, opts ListOpts) ([]Challenge, error)
	ListChallengesByStatus(ctx context.Context, status ChallengeStatus, opts ListOpts) ([]Challenge, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// LedgerStore reads the append-only ledger. Entries are written by a
// Committer.
type LedgerStore interface {
	// EntriesFor returns every entry of a challenge in insertion order.
	EntriesFor(ctx context.Context, challengeID string) ([]LedgerEntry, error)
	ListEntries(ctx context.Context, ownerID string, opts ListOpts) ([]LedgerEntry, error)
	// SumPnLSince sums pnl over entries with timestamp >= since.
	SumPnLSince(ctx context.Context, challengeID string, since time.Time) (decimal.Decimal, error)
}

// EventStore exposes lifecycle events and completed-challenge history.
type EventStore interface {
	EventsFor(ctx context.Context, challengeID string) ([]LifecycleEvent, error)
	ListHistory(ctx context.Context, ownerID string, opts ListOpts) ([]ChallengeHistory, error)
}

// TradeCommit is the unit persisted atomically after a trade. The challenge
// update only applies when the stored version equals ExpectedVersion.
type TradeCommit struct {
	Challenge       Challenge
	ExpectedVersion int64
	Entry           *LedgerEntry
	Event           *LifecycleEvent
	History         *ChallengeHistory
}

// Committer applies a TradeCommit as one transaction. It returns
// ErrVersionConflict when the stored challenge moved on and ErrNotFound when
// it does not exist. Re-applying a commit whose entry is already stored is a
// no-op for the entry.
type Committer interface {
	Commit(ctx context.Context, tc TradeCommit) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// ArchiveStore tracks which terminal challenges were copied to cold storage.
type ArchiveStore interface {
	// ListUnarchived returns terminal challenges last updated before the
	// cutoff that have not been archived yet, oldest first.
	ListUnarchived(ctx context.Context, before time.Time, limit int) ([]Challenge, error)
	MarkArchived(ctx context.Context, id string, at time.Time) error
}
