package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/ledger"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/lifecycle"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/risk"
)

// Notifier delivers operator alerts. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// TradeConfig tunes the trade orchestrator.
type TradeConfig struct {
	// DayLocation sets the calendar day used for the daily-loss window.
	DayLocation *time.Location
	// LocalFallback applies commits in memory when the durable store fails.
	LocalFallback bool
	LockTTL       time.Duration
	LockRetry     time.Duration
	DedupTTL      time.Duration
	// Now overrides the clock used for manual completion.
	Now func() time.Time
}

// TradeDeps groups the collaborators of TradeService. Cache, Locks and
// Notifier are optional.
type TradeDeps struct {
	Challenges domain.ChallengeStore
	Ledger     *ledger.Ledger
	Committer  domain.Committer
	// Events lets resync confirm that a completion-only commit landed.
	Events     domain.EventStore
	Machine    *lifecycle.Machine
	Cache      domain.ChallengeCache
	Locks      domain.LockManager
	Bus        domain.SignalBus
	Audit      domain.AuditStore
	Notifier   Notifier
}

// TradeService is the only component that mutates challenge balance and
// status. Each trade runs as one unit under a per-challenge lock: validate,
// price, evaluate, transition, commit.
type TradeService struct {
	challenges domain.ChallengeStore
	ledger     *ledger.Ledger
	committer  domain.Committer
	events     domain.EventStore
	machine    *lifecycle.Machine
	cache      domain.ChallengeCache
	bus        domain.SignalBus
	audit      domain.AuditStore
	notifier   Notifier
	locks      *challengeLocker
	local      *localTier
	dedup      *Dedup
	cfg        TradeConfig
	now        func() time.Time
	logger     *slog.Logger
}

// NewTradeService creates a TradeService.
func NewTradeService(deps TradeDeps, cfg TradeConfig, logger *slog.Logger) *TradeService {
	if cfg.DayLocation == nil {
		cfg.DayLocation = time.UTC
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &TradeService{
		challenges: deps.Challenges,
		ledger:     deps.Ledger,
		committer:  deps.Committer,
		events:     deps.Events,
		machine:    deps.Machine,
		cache:      deps.Cache,
		bus:        deps.Bus,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		locks:      newChallengeLocker(deps.Locks, cfg.LockTTL, cfg.LockRetry),
		local:      newLocalTier(),
		dedup:      NewDedup(cfg.DedupTTL),
		cfg:        cfg,
		now:        cfg.Now,
		logger:     logger.With(slog.String("component", "trade_service")),
	}
}

// ExecuteTrade records one trade against the challenge and applies its P&L.
// A challenge that is not ACTIVE yields domain.ErrChallengeNotActive and
// malformed input yields domain.ErrInvalidTradeInput; in both cases nothing
// is recorded. The result's Durability reports whether the commit reached
// the durable store or only the local tier.
func (s *TradeService) ExecuteTrade(ctx context.Context, challengeID string, req domain.TradeRequest) (domain.TradeResult, error) {
	unlock, err := s.locks.lock(ctx, challengeID)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: lock challenge %s: %w", challengeID, err)
	}
	defer unlock()

	if res, ok := s.dedup.Lookup(challengeID, req.RequestID); ok {
		s.logger.InfoContext(ctx, "trade_service: duplicate request, returning previous result",
			slog.String("challenge_id", challengeID),
			slog.String("request_id", req.RequestID),
		)
		return res, nil
	}

	ch, err := s.load(ctx, challengeID)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: load challenge %s: %w", challengeID, err)
	}
	if !ch.IsActive() {
		return domain.TradeResult{}, fmt.Errorf("trade_service: challenge %s is %s: %w", ch.ID, ch.Status, domain.ErrChallengeNotActive)
	}

	entry, err := s.ledger.NewEntry(ch, req)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: %w", err)
	}
	entry.Seq = ch.Version + 1

	newBalance := ch.CurrentBalance.Add(entry.PnL)
	daily, err := s.dailyPnL(ctx, ch.ID, entry.Timestamp)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: daily pnl %s: %w", ch.ID, err)
	}
	daily = daily.Add(entry.PnL)

	decision, err := risk.Evaluate(ch, newBalance, daily)
	if err != nil {
		s.logger.ErrorContext(ctx, "trade_service: invariant violated during evaluation",
			slog.String("challenge_id", ch.ID),
			slog.String("error", err.Error()),
		)
		return domain.TradeResult{}, fmt.Errorf("trade_service: %w", err)
	}

	next, ev, err := s.machine.Apply(ch, newBalance, decision, entry.Timestamp)
	if err != nil {
		s.logger.ErrorContext(ctx, "trade_service: invariant violated during transition",
			slog.String("challenge_id", ch.ID),
			slog.String("decision", decision.String()),
			slog.String("error", err.Error()),
		)
		return domain.TradeResult{}, fmt.Errorf("trade_service: %w", err)
	}

	tc := domain.TradeCommit{
		Challenge:       next,
		ExpectedVersion: ch.Version,
		Entry:           &entry,
		Event:           ev,
	}
	if ev != nil {
		h := lifecycle.History(ch, *ev)
		tc.History = &h
	}

	durability, err := s.commit(ctx, tc)
	if err != nil {
		return domain.TradeResult{}, err
	}

	res := domain.TradeResult{
		Challenge:  next,
		Entry:      entry,
		Event:      ev,
		Durability: durability,
	}
	s.dedup.Remember(challengeID, req.RequestID, res)
	s.afterCommit(ctx, tc, durability)

	s.logger.InfoContext(ctx, "trade_service: trade executed",
		slog.String("challenge_id", next.ID),
		slog.String("entry_id", entry.ID),
		slog.String("symbol", entry.Symbol),
		slog.String("side", string(entry.Side)),
		slog.String("pnl", entry.PnL.String()),
		slog.String("balance", next.CurrentBalance.String()),
		slog.String("status", string(next.Status)),
		slog.String("durability", string(durability)),
	)
	return res, nil
}

// ForceComplete resolves a user-triggered completion of the challenge. When
// the challenge stays ACTIVE nothing is written and Event is nil.
func (s *TradeService) ForceComplete(ctx context.Context, challengeID string) (domain.CompletionResult, error) {
	unlock, err := s.locks.lock(ctx, challengeID)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("trade_service: lock challenge %s: %w", challengeID, err)
	}
	defer unlock()

	ch, err := s.load(ctx, challengeID)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("trade_service: load challenge %s: %w", challengeID, err)
	}
	if !ch.IsActive() {
		return domain.CompletionResult{}, fmt.Errorf("trade_service: challenge %s is %s: %w", ch.ID, ch.Status, domain.ErrChallengeNotActive)
	}

	next, ev, err := s.machine.ForceComplete(ch, s.now())
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("trade_service: %w", err)
	}
	if ev == nil {
		durability := domain.DurabilityDurable
		if s.local.has(ch.ID) {
			durability = domain.DurabilityLocalOnly
		}
		return domain.CompletionResult{Challenge: ch, Durability: durability}, nil
	}

	h := lifecycle.History(ch, *ev)
	tc := domain.TradeCommit{
		Challenge:       next,
		ExpectedVersion: ch.Version,
		Event:           ev,
		History:         &h,
	}
	durability, err := s.commit(ctx, tc)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	s.afterCommit(ctx, tc, durability)

	s.logger.InfoContext(ctx, "trade_service: challenge completed",
		slog.String("challenge_id", next.ID),
		slog.String("status", string(next.Status)),
		slog.String("reason", string(ev.Reason)),
		slog.String("durability", string(durability)),
	)
	return domain.CompletionResult{Challenge: next, Event: ev, Durability: durability}, nil
}

// Current returns the latest known state of the challenge: the local tier
// when it holds pending commits, then the cache, then the durable store.
func (s *TradeService) Current(ctx context.Context, challengeID string) (domain.Challenge, error) {
	if c, ok := s.local.latest(challengeID); ok {
		return c, nil
	}
	if s.cache != nil {
		if c, err := s.cache.Get(ctx, challengeID); err == nil {
			return c, nil
		}
	}
	c, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return domain.Challenge{}, err
	}
	s.cacheSet(ctx, c)
	return c, nil
}

// PendingEntries returns ledger entries of the challenge that are not yet durable.
func (s *TradeService) PendingEntries(challengeID string) []domain.LedgerEntry {
	return s.local.entries(challengeID)
}

// PendingEvents returns lifecycle events of the challenge that are not yet durable.
func (s *TradeService) PendingEvents(challengeID string) []domain.LifecycleEvent {
	return s.local.events(challengeID)
}

// PendingCount returns the number of commits waiting in the local tier.
func (s *TradeService) PendingCount() int {
	return s.local.size()
}

// DailyPnL returns the challenge's cumulative P&L since the start of the
// current day, including entries that are not yet durable.
func (s *TradeService) DailyPnL(ctx context.Context, challengeID string) (decimal.Decimal, error) {
	return s.dailyPnL(ctx, challengeID, s.now())
}

// load reads the authoritative state for a mutation. The cache is skipped.
func (s *TradeService) load(ctx context.Context, challengeID string) (domain.Challenge, error) {
	if c, ok := s.local.latest(challengeID); ok {
		return c, nil
	}
	return s.challenges.GetChallenge(ctx, challengeID)
}

func (s *TradeService) dailyPnL(ctx context.Context, challengeID string, at time.Time) (decimal.Decimal, error) {
	since := ledger.StartOfDay(at, s.cfg.DayLocation)
	sum, err := s.ledger.SumPnLSince(ctx, challengeID, since)
	if err != nil {
		return decimal.Zero, err
	}
	return sum.Add(ledger.SumEntriesSince(s.local.entries(challengeID), since)), nil
}

// commit writes tc durably, or to the local tier when fallback is enabled
// and the failure is not a logical conflict. Commits queue behind any
// pending local commits of the same challenge to keep their order.
func (s *TradeService) commit(ctx context.Context, tc domain.TradeCommit) (domain.Durability, error) {
	id := tc.Challenge.ID

	if s.local.has(id) {
		s.flushChallenge(ctx, id)
	}

	var err error
	if !s.local.has(id) {
		err = s.committer.Commit(ctx, tc)
		if err == nil {
			return domain.DurabilityDurable, nil
		}
		if errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrNotFound) || !s.cfg.LocalFallback {
			return "", fmt.Errorf("trade_service: commit challenge %s: %w", id, err)
		}
	} else if !s.cfg.LocalFallback {
		return "", fmt.Errorf("trade_service: commit challenge %s: pending local commits", id)
	}

	s.local.add(tc)
	attrs := []any{
		slog.String("challenge_id", id),
		slog.Int64("version", tc.Challenge.Version),
		slog.Int("pending", s.local.size()),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.WarnContext(ctx, "trade_service: durable store unavailable, applied in memory only", attrs...)
	return domain.DurabilityLocalOnly, nil
}

// Resync replays local-only commits to the durable store in per-challenge
// order and returns how many became durable.
func (s *TradeService) Resync(ctx context.Context) int {
	flushed := 0
	for _, id := range s.local.ids() {
		unlock, err := s.locks.lock(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "trade_service: resync lock failed",
				slog.String("challenge_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		flushed += s.flushChallenge(ctx, id)
		unlock()
	}
	return flushed
}

// RunResync calls Resync every interval until ctx is cancelled.
func (s *TradeService) RunResync(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.dedup.Cleanup()
			if s.local.size() == 0 {
				continue
			}
			if n := s.Resync(ctx); n > 0 {
				s.logger.InfoContext(ctx, "trade_service: local commits made durable",
					slog.Int("count", n),
					slog.Int("pending", s.local.size()),
				)
			}
		}
	}
}

// flushChallenge replays the pending commits of one challenge. The caller
// holds the challenge lock. A version conflict counts as flushed only when
// the commit's entry (or event) is found in the durable store; otherwise the
// challenge's queue is dead-lettered.
func (s *TradeService) flushChallenge(ctx context.Context, id string) int {
	n := 0
	for {
		tc, ok := s.local.peek(id)
		if !ok {
			return n
		}
		err := s.committer.Commit(ctx, tc)
		if errors.Is(err, domain.ErrVersionConflict) {
			landed, lookupErr := s.landed(ctx, tc)
			switch {
			case lookupErr != nil:
				s.logger.WarnContext(ctx, "trade_service: resync lookup failed",
					slog.String("challenge_id", id),
					slog.String("error", lookupErr.Error()),
				)
				return n
			case landed:
				err = nil
			default:
				s.deadLetter(ctx, id, tc, err)
				return n
			}
		}
		if err != nil {
			return n
		}
		s.local.pop(id)
		n++
	}
}

// landed reports whether tc is already in the durable store, matched by
// ledger entry id, or by lifecycle event id for completion-only commits.
func (s *TradeService) landed(ctx context.Context, tc domain.TradeCommit) (bool, error) {
	id := tc.Challenge.ID
	switch {
	case tc.Entry != nil:
		entries, err := s.ledger.EntriesFor(ctx, id)
		if err != nil {
			return false, err
		}
		return slices.ContainsFunc(entries, func(e domain.LedgerEntry) bool { return e.ID == tc.Entry.ID }), nil
	case tc.Event != nil && s.events != nil:
		events, err := s.events.EventsFor(ctx, id)
		if err != nil {
			return false, fmt.Errorf("trade_service: events for %s: %w", id, err)
		}
		return slices.ContainsFunc(events, func(e domain.LifecycleEvent) bool { return e.ID == tc.Event.ID }), nil
	}
	return false, nil
}

// deadLetter parks every pending commit of the challenge. They were built on
// a state another writer has since replaced, so none can be replayed.
func (s *TradeService) deadLetter(ctx context.Context, id string, head domain.TradeCommit, cause error) {
	parked := s.local.deadLetter(id)

	stored, getErr := s.challenges.GetChallenge(ctx, id)
	attrs := []any{
		slog.String("challenge_id", id),
		slog.Int64("expected_version", head.ExpectedVersion),
		slog.Int("dead_lettered", parked),
		slog.String("error", cause.Error()),
	}
	if getErr == nil {
		attrs = append(attrs, slog.Int64("stored_version", stored.Version))
	}
	if head.Entry != nil {
		attrs = append(attrs, slog.String("entry_id", head.Entry.ID))
	}
	s.logger.ErrorContext(ctx, "trade_service: local commits conflict with durable state, dead-lettered", attrs...)

	detail := map[string]any{
		"challenge_id":     id,
		"expected_version": head.ExpectedVersion,
		"count":            parked,
	}
	if head.Entry != nil {
		detail["entry_id"] = head.Entry.ID
	}
	if err := s.audit.Log(ctx, "local_commit_dead_lettered", detail); err != nil {
		s.logger.WarnContext(ctx, "trade_service: audit log failed",
			slog.String("challenge_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// DeadLetters returns local-only commits that could not be made durable.
func (s *TradeService) DeadLetters() []domain.TradeCommit {
	return s.local.deadLetters()
}

// DeadLetterCount returns len(DeadLetters()).
func (s *TradeService) DeadLetterCount() int {
	return s.local.deadCount()
}

func (s *TradeService) cacheSet(ctx context.Context, c domain.Challenge) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, c); err != nil {
		s.logger.WarnContext(ctx, "trade_service: cache set failed",
			slog.String("challenge_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
}

// afterCommit fans out a committed change: cache, bus, audit, notifications.
// Failures here are logged and never undo the commit.
func (s *TradeService) afterCommit(ctx context.Context, tc domain.TradeCommit, durability domain.Durability) {
	ch := tc.Challenge
	s.cacheSet(ctx, ch)

	s.publish(ctx, domain.ChannelChallenges, "challenge_updated", ch)
	s.publish(ctx, domain.ChallengeChannel(ch.ID), "challenge_updated", ch)
	if tc.Entry != nil {
		s.publish(ctx, domain.ChannelTrades, "trade_executed", tc.Entry)
	}
	if tc.Event != nil {
		s.publish(ctx, domain.ChannelLifecycle, "challenge_transition", tc.Event)
		if payload, err := json.Marshal(tc.Event); err == nil {
			if err := s.bus.StreamAppend(ctx, domain.StreamLifecycle, payload); err != nil {
				s.logger.WarnContext(ctx, "trade_service: stream append failed",
					slog.String("challenge_id", ch.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	detail := map[string]any{
		"challenge_id": ch.ID,
		"user_id":      ch.OwnerID,
		"balance":      ch.CurrentBalance.String(),
		"status":       string(ch.Status),
		"version":      ch.Version,
		"durability":   string(durability),
	}
	event := "challenge_completed"
	if tc.Entry != nil {
		event = "trade_executed"
		detail["entry_id"] = tc.Entry.ID
		detail["pnl"] = tc.Entry.PnL.String()
	}
	if tc.Event != nil {
		detail["reason"] = string(tc.Event.Reason)
		detail["from"] = string(tc.Event.From)
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "trade_service: audit log failed",
			slog.String("challenge_id", ch.ID),
			slog.String("error", err.Error()),
		)
	}

	if tc.Event != nil && s.notifier != nil {
		ev := tc.Event
		title := fmt.Sprintf("Challenge %s", ev.To)
		msg := fmt.Sprintf("Challenge %s of user %s is %s (%s) at balance %s",
			ev.ChallengeID, ev.OwnerID, ev.To, ev.Reason, ev.BalanceAtTransition.StringFixed(2))
		if err := s.notifier.Notify(ctx, "challenge_"+string(ev.To), title, msg); err != nil {
			s.logger.WarnContext(ctx, "trade_service: notify failed",
				slog.String("challenge_id", ch.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

type busMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (s *TradeService) publish(ctx context.Context, channel, typ string, payload any) {
	data, err := json.Marshal(busMessage{Type: typ, Payload: payload})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, data); err != nil {
		s.logger.WarnContext(ctx, "trade_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
