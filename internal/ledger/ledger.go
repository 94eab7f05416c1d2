// Package ledger records trade executions against challenges and prices each
// entry through a pluggable P&L model.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// Ledger prices new entries and reads stored ones. Entries are written only
// through a domain.Committer, together with the challenge update they
// produce. It never touches the challenge balance.
type Ledger struct {
	store domain.LedgerStore
	model PnLModel
	now   func() time.Time
	newID func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides entry id generation.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// New creates a Ledger backed by store and priced by model.
func New(store domain.LedgerStore, model PnLModel, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		model: model,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// NewEntry validates the execution and prices it. It does not store
// anything. Seq is left for the caller to assign.
func (l *Ledger) NewEntry(ch domain.Challenge, req domain.TradeRequest) (domain.LedgerEntry, error) {
	if err := req.Validate(); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("ledger: new entry: %w", err)
	}
	if ch.ID == "" {
		return domain.LedgerEntry{}, fmt.Errorf("ledger: new entry: empty challenge id: %w", domain.ErrInvalidTradeInput)
	}
	return domain.LedgerEntry{
		ID:          l.newID(),
		ChallengeID: ch.ID,
		OwnerID:     ch.OwnerID,
		Symbol:      strings.TrimSpace(req.Symbol),
		Side:        req.Side,
		Price:       req.Price,
		Quantity:    req.Quantity,
		PnL:         l.model.PnL(req.Side, req.Price, req.Quantity),
		Timestamp:   l.now(),
	}, nil
}

// EntriesFor returns every entry of the challenge in insertion order.
func (l *Ledger) EntriesFor(ctx context.Context, challengeID string) ([]domain.LedgerEntry, error) {
	entries, err := l.store.EntriesFor(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("ledger: entries for %s: %w", challengeID, err)
	}
	return entries, nil
}

// SumPnLSince sums pnl over the challenge's entries with timestamp >= since.
func (l *Ledger) SumPnLSince(ctx context.Context, challengeID string, since time.Time) (decimal.Decimal, error) {
	sum, err := l.store.SumPnLSince(ctx, challengeID, since)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: sum pnl %s: %w", challengeID, err)
	}
	return sum, nil
}

// SumEntriesSince sums pnl over entries with timestamp >= since.
func SumEntriesSince(entries []domain.LedgerEntry, since time.Time) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		if !e.Timestamp.Before(since) {
			sum = sum.Add(e.PnL)
		}
	}
	return sum
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
