package service

import (
	"slices"
	"sort"
	"sync"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// localTier holds commits that were applied in memory because the durable
// store rejected them. Commits are queued per challenge in application order
// and replayed in that order by the resync loop. While a challenge has
// pending commits its latest state lives here, not in the durable store.
type localTier struct {
	mu      sync.Mutex
	pending map[string][]domain.TradeCommit
	dead    []domain.TradeCommit
}

func newLocalTier() *localTier {
	return &localTier{pending: make(map[string][]domain.TradeCommit)}
}

func (t *localTier) add(tc domain.TradeCommit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := tc.Challenge.ID
	t.pending[id] = append(t.pending[id], tc)
}

func (t *localTier) has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending[id]) > 0
}

// latest returns the most recent local-only state of the challenge.
func (t *localTier) latest(id string) (domain.Challenge, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.pending[id]
	if len(q) == 0 {
		return domain.Challenge{}, false
	}
	return q[len(q)-1].Challenge, true
}

// entries returns the pending ledger entries of the challenge in order.
func (t *localTier) entries(id string) []domain.LedgerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.LedgerEntry
	for _, tc := range t.pending[id] {
		if tc.Entry != nil {
			out = append(out, *tc.Entry)
		}
	}
	return out
}

// events returns the pending lifecycle events of the challenge in order.
func (t *localTier) events(id string) []domain.LifecycleEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.LifecycleEvent
	for _, tc := range t.pending[id] {
		if tc.Event != nil {
			out = append(out, *tc.Event)
		}
	}
	return out
}

func (t *localTier) peek(id string) (domain.TradeCommit, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.pending[id]
	if len(q) == 0 {
		return domain.TradeCommit{}, false
	}
	return q[0], true
}

func (t *localTier) pop(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.pending[id]
	if len(q) <= 1 {
		delete(t.pending, id)
		return
	}
	t.pending[id] = q[1:]
}

// ids returns the challenges with pending commits in a stable order.
func (t *localTier) ids() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.pending))
	for id := range t.pending {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *localTier) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, q := range t.pending {
		n += len(q)
	}
	return n
}

// deadLetter moves every pending commit of the challenge to the dead list and
// returns how many moved.
func (t *localTier) deadLetter(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.pending[id]
	t.dead = append(t.dead, q...)
	delete(t.pending, id)
	return len(q)
}

func (t *localTier) deadCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dead)
}

func (t *localTier) deadLetters() []domain.TradeCommit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.dead)
}
