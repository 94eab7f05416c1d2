package service

import (
	"sync"
	"time"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// Dedup remembers trade results by client request id for a TTL window so a
// retried submission returns the original result instead of trading twice.
// It is safe for concurrent use.
type Dedup struct {
	seen map[string]dedupEntry
	ttl  time.Duration
	mu   sync.Mutex
	now  func() time.Time
}

type dedupEntry struct {
	result domain.TradeResult
	at     time.Time
}

// NewDedup creates a Dedup that remembers results for ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]dedupEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func dedupKey(challengeID, requestID string) string {
	return challengeID + "/" + requestID
}

// Lookup returns the stored result for the request when it is still fresh.
func (d *Dedup) Lookup(challengeID, requestID string) (domain.TradeResult, bool) {
	if requestID == "" {
		return domain.TradeResult{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.seen[dedupKey(challengeID, requestID)]
	if !ok || d.now().Sub(e.at) >= d.ttl {
		return domain.TradeResult{}, false
	}
	return e.result, true
}

// Remember stores the result of a request.
func (d *Dedup) Remember(challengeID, requestID string, res domain.TradeResult) {
	if requestID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[dedupKey(challengeID, requestID)] = dedupEntry{result: res, at: d.now()}
}

// Cleanup removes entries that have expired beyond the TTL. This should be
// called periodically to prevent unbounded memory growth.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, e := range d.seen {
		if now.Sub(e.at) >= d.ttl {
			delete(d.seen, k)
		}
	}
}
