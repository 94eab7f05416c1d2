// Package memory implements the domain stores in process memory. It backs
// the "memory" storage driver and tests, and is safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// Store keeps challenges, ledger entries, lifecycle events, history and the
// audit log behind a single RWMutex.
type Store struct {
	mu         sync.RWMutex
	challenges map[string]domain.Challenge
	entries    map[string][]domain.LedgerEntry
	entryIDs   map[string]struct{}
	events     map[string][]domain.LifecycleEvent
	history    []domain.ChallengeHistory
	audit      []domain.AuditEntry
	archived   map[string]time.Time
	now        func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		challenges: make(map[string]domain.Challenge),
		entries:    make(map[string][]domain.LedgerEntry),
		entryIDs:   make(map[string]struct{}),
		events:     make(map[string][]domain.LifecycleEvent),
		archived:   make(map[string]time.Time),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ---------------------------------------------------------------------------
// ChallengeStore
// ---------------------------------------------------------------------------

// CreateChallenge stores a new challenge. It returns domain.ErrAlreadyExists
// when the id is taken.
func (s *Store) CreateChallenge(_ context.Context, c domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[c.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.challenges[c.ID] = c
	return nil
}

// GetChallenge returns the challenge with the given id.
func (s *Store) GetChallenge(_ context.Context, id string) (domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return domain.Challenge{}, domain.ErrNotFound
	}
	return c, nil
}

// ListChallenges returns the owner's challenges, newest first.
func (s *Store) ListChallenges(_ context.Context, ownerID string, opts domain.ListOpts) ([]domain.Challenge, error) {
	return s.filterChallenges(opts, func(c domain.Challenge) bool { return c.OwnerID == ownerID }), nil
}

// ListChallengesByStatus returns challenges in the given status, newest first.
func (s *Store) ListChallengesByStatus(_ context.Context, status domain.ChallengeStatus, opts domain.ListOpts) ([]domain.Challenge, error) {
	return s.filterChallenges(opts, func(c domain.Challenge) bool { return c.Status == status }), nil
}

func (s *Store) filterChallenges(opts domain.ListOpts, keep func(domain.Challenge) bool) []domain.Challenge {
	s.mu.RLock()
	out := make([]domain.Challenge, 0)
	for _, c := range s.challenges {
		if !keep(c) || !inRange(c.CreatedAt, opts) {
			continue
		}
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, opts)
}

// Leaderboard ranks every challenge by profit percentage.
func (s *Store) Leaderboard(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	all := make([]domain.Challenge, 0, len(s.challenges))
	for _, c := range s.challenges {
		all = append(all, c)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
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

// appendEntryLocked appends e to its challenge's ledger. Appending an id
// that is already stored is a no-op.
func (s *Store) appendEntryLocked(e domain.LedgerEntry) {
	if _, dup := s.entryIDs[e.ID]; dup {
		return
	}
	s.entryIDs[e.ID] = struct{}{}
	s.entries[e.ChallengeID] = append(s.entries[e.ChallengeID], e)
}

// EntriesFor returns a copy of the challenge's entries in insertion order.
func (s *Store) EntriesFor(_ context.Context, challengeID string) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.entries[challengeID]
	out := make([]domain.LedgerEntry, len(src))
	copy(out, src)
	return out, nil
}

// ListEntries returns the owner's entries across challenges, newest first.
func (s *Store) ListEntries(_ context.Context, ownerID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	out := make([]domain.LedgerEntry, 0)
	for _, list := range s.entries {
		for _, e := range list {
			if e.OwnerID == ownerID && inRange(e.Timestamp, opts) {
				out = append(out, e)
			}
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Seq > out[j].Seq
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return paginate(out, opts), nil
}

// SumPnLSince sums pnl over entries with timestamp >= since.
func (s *Store) SumPnLSince(_ context.Context, challengeID string, since time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	for _, e := range s.entries[challengeID] {
		if !e.Timestamp.Before(since) {
			sum = sum.Add(e.PnL)
		}
	}
	return sum, nil
}

// ---------------------------------------------------------------------------
// EventStore
// ---------------------------------------------------------------------------

// EventsFor returns the challenge's lifecycle events in emission order.
func (s *Store) EventsFor(_ context.Context, challengeID string) ([]domain.LifecycleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[challengeID]
	out := make([]domain.LifecycleEvent, len(src))
	copy(out, src)
	return out, nil
}

// ListHistory returns the owner's completed challenges, most recent first.
func (s *Store) ListHistory(_ context.Context, ownerID string, opts domain.ListOpts) ([]domain.ChallengeHistory, error) {
	s.mu.RLock()
	out := make([]domain.ChallengeHistory, 0)
	for i := len(s.history) - 1; i >= 0; i-- {
		h := s.history[i]
		if h.OwnerID == ownerID && inRange(h.CompletedAt, opts) {
			out = append(out, h)
		}
	}
	s.mu.RUnlock()
	return paginate(out, opts), nil
}

// ---------------------------------------------------------------------------
// Committer
// ---------------------------------------------------------------------------

// Commit applies tc atomically under the store lock.
func (s *Store) Commit(_ context.Context, tc domain.TradeCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.challenges[tc.Challenge.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != tc.ExpectedVersion {
		return domain.ErrVersionConflict
	}

	s.challenges[tc.Challenge.ID] = tc.Challenge
	if tc.Entry != nil {
		s.appendEntryLocked(*tc.Entry)
	}
	if tc.Event != nil {
		s.events[tc.Event.ChallengeID] = append(s.events[tc.Event.ChallengeID], *tc.Event)
	}
	if tc.History != nil {
		s.history = append(s.history, *tc.History)
	}
	return nil
}

// ---------------------------------------------------------------------------
// ArchiveStore
// ---------------------------------------------------------------------------

// ListUnarchived returns terminal challenges updated before the cutoff that
// are not yet archived, oldest update first.
func (s *Store) ListUnarchived(_ context.Context, before time.Time, limit int) ([]domain.Challenge, error) {
	s.mu.RLock()
	out := make([]domain.Challenge, 0)
	for id, c := range s.challenges {
		if _, done := s.archived[id]; done || !c.Status.Terminal() || !c.UpdatedAt.Before(before) {
			continue
		}
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return paginate(out, domain.ListOpts{Limit: limit}), nil
}

// MarkArchived records that the challenge was archived at the given time.
func (s *Store) MarkArchived(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[id]; !ok {
		return domain.ErrNotFound
	}
	s.archived[id] = at
	return nil
}

// ---------------------------------------------------------------------------
// AuditStore
// ---------------------------------------------------------------------------

// Log appends an audit entry.
func (s *Store) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, domain.AuditEntry{
		ID:        int64(len(s.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: s.now(),
	})
	return nil
}

// List returns audit entries, newest first.
func (s *Store) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	out := make([]domain.AuditEntry, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		if inRange(s.audit[i].CreatedAt, opts) {
			out = append(out, s.audit[i])
		}
	}
	s.mu.RUnlock()
	return paginate(out, opts), nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func inRange(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && !t.Before(*opts.Until) {
		return false
	}
	return true
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return items[:0]
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
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
