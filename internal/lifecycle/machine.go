// Package lifecycle owns the challenge status machine: ACTIVE is the only
// non-terminal state, PASSED and FAILED are terminal and never left.
package lifecycle

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// Machine applies risk decisions to challenges. It holds no challenge state;
// every call receives the challenge explicitly and returns a new value.
type Machine struct {
	newID func() string
}

// New creates a Machine that labels events with random UUIDs.
func New() *Machine {
	return &Machine{newID: uuid.NewString}
}

// NewWithIDs creates a Machine with a custom event id generator.
func NewWithIDs(gen func() string) *Machine {
	return &Machine{newID: gen}
}

// Apply returns c with newBalance applied and, for a transition decision,
// the new status plus the emitted event. A terminal c, or a decision that
// targets ACTIVE, yields domain.ErrTerminalStateViolation and c unchanged.
func (m *Machine) Apply(c domain.Challenge, newBalance decimal.Decimal, d domain.Decision, at time.Time) (domain.Challenge, *domain.LifecycleEvent, error) {
	if c.Status.Terminal() {
		return c, nil, fmt.Errorf("lifecycle: apply %s to %s challenge %s: %w", d, c.Status, c.ID, domain.ErrTerminalStateViolation)
	}

	next := c
	next.CurrentBalance = newBalance
	next.Version = c.Version + 1
	next.UpdatedAt = at

	if d.Kind == domain.DecisionContinue {
		return next, nil, nil
	}
	if !d.To.Terminal() {
		return c, nil, fmt.Errorf("lifecycle: apply %s to challenge %s: %w", d, c.ID, domain.ErrTerminalStateViolation)
	}

	next.Status = d.To
	ev := m.event(c, d.To, d.Reason, domain.TriggerTrade, newBalance, at)
	return next, &ev, nil
}

// ForceComplete resolves a user-requested completion at the current balance:
// PASSED when profit reaches the target, unchanged ACTIVE while the total loss
// stays strictly below its bound, FAILED otherwise. A nil event means the
// challenge is still ACTIVE and was not modified.
func (m *Machine) ForceComplete(c domain.Challenge, at time.Time) (domain.Challenge, *domain.LifecycleEvent, error) {
	if c.Status.Terminal() {
		return c, nil, fmt.Errorf("lifecycle: force complete %s challenge %s: %w", c.Status, c.ID, domain.ErrTerminalStateViolation)
	}

	var (
		to     domain.ChallengeStatus
		reason domain.TransitionReason
	)
	switch {
	case c.Profit().GreaterThanOrEqual(c.ProfitTarget):
		to, reason = domain.ChallengeStatusPassed, domain.ReasonProfitTargetReached
	case c.InitialBalance.Sub(c.CurrentBalance).LessThan(c.MaxTotalLoss):
		return c, nil, nil
	default:
		to, reason = domain.ChallengeStatusFailed, domain.ReasonTotalLossBreached
	}

	next := c
	next.Status = to
	next.Version = c.Version + 1
	next.UpdatedAt = at
	ev := m.event(c, to, reason, domain.TriggerForceComplete, c.CurrentBalance, at)
	return next, &ev, nil
}

func (m *Machine) event(c domain.Challenge, to domain.ChallengeStatus, reason domain.TransitionReason, trigger domain.TransitionTrigger, balance decimal.Decimal, at time.Time) domain.LifecycleEvent {
	return domain.LifecycleEvent{
		ID:                  m.newID(),
		ChallengeID:         c.ID,
		OwnerID:             c.OwnerID,
		From:                c.Status,
		To:                  to,
		Reason:              reason,
		Trigger:             trigger,
		BalanceAtTransition: balance,
		Timestamp:           at,
	}
}

// History summarises a challenge that ev moved into a terminal status.
// Duration is counted in started days, never below zero.
func History(c domain.Challenge, ev domain.LifecycleEvent) domain.ChallengeHistory {
	days := 0
	if elapsed := ev.Timestamp.Sub(c.CreatedAt); elapsed > 0 {
		days = int(math.Ceil(elapsed.Hours() / 24))
	}
	final := c
	final.CurrentBalance = ev.BalanceAtTransition
	return domain.ChallengeHistory{
		ChallengeID:      c.ID,
		OwnerID:          c.OwnerID,
		InitialBalance:   c.InitialBalance,
		FinalBalance:     ev.BalanceAtTransition,
		Status:           ev.To,
		DurationDays:     days,
		ProfitAmount:     final.Profit(),
		ProfitPercentage: final.ProfitPercentage(),
		CompletedAt:      ev.Timestamp,
	}
}
