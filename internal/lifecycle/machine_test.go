package lifecycle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	created = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	at      = time.Date(2025, 5, 3, 10, 0, 0, 0, time.UTC)
)

func active(balance string) domain.Challenge {
	return domain.Challenge{
		ID:             "ch-1",
		OwnerID:        "user-1",
		InitialBalance: d("10000"),
		CurrentBalance: d(balance),
		MaxDailyLoss:   d("500"),
		MaxTotalLoss:   d("1000"),
		ProfitTarget:   d("1000"),
		Status:         domain.ChallengeStatusActive,
		Version:        4,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func fixedIDs() *Machine {
	return NewWithIDs(func() string { return "ev-1" })
}

func TestApplyContinueUpdatesBalanceOnly(t *testing.T) {
	t.Parallel()

	in := active("10000")
	out, ev, err := fixedIDs().Apply(in, d("10100"), domain.Continue(), at)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.True(t, out.CurrentBalance.Equal(d("10100")))
	assert.Equal(t, domain.ChallengeStatusActive, out.Status)
	assert.Equal(t, int64(5), out.Version)
	assert.Equal(t, at, out.UpdatedAt)
	// Input is a value and stays untouched.
	assert.True(t, in.CurrentBalance.Equal(d("10000")))
}

func TestApplyTransitionEmitsEvent(t *testing.T) {
	t.Parallel()

	in := active("10000")
	dec := domain.TransitionTo(domain.ChallengeStatusFailed, domain.ReasonTotalLossBreached)
	out, ev, err := fixedIDs().Apply(in, d("9000"), dec, at)
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, domain.ChallengeStatusFailed, out.Status)
	assert.True(t, out.CurrentBalance.Equal(d("9000")))
	assert.Equal(t, domain.LifecycleEvent{
		ID:                  "ev-1",
		ChallengeID:         "ch-1",
		OwnerID:             "user-1",
		From:                domain.ChallengeStatusActive,
		To:                  domain.ChallengeStatusFailed,
		Reason:              domain.ReasonTotalLossBreached,
		Trigger:             domain.TriggerTrade,
		BalanceAtTransition: d("9000"),
		Timestamp:           at,
	}, *ev)
}

func TestApplyRejectsTerminalChallenge(t *testing.T) {
	t.Parallel()

	decisions := []domain.Decision{
		domain.Continue(),
		domain.TransitionTo(domain.ChallengeStatusPassed, domain.ReasonProfitTargetReached),
		domain.TransitionTo(domain.ChallengeStatusFailed, domain.ReasonDailyLossBreached),
	}
	for _, st := range []domain.ChallengeStatus{domain.ChallengeStatusPassed, domain.ChallengeStatusFailed} {
		for _, dec := range decisions {
			in := active("9000")
			in.Status = st
			out, ev, err := fixedIDs().Apply(in, d("12000"), dec, at)
			assert.ErrorIs(t, err, domain.ErrTerminalStateViolation)
			assert.Nil(t, ev)
			assert.Equal(t, in, out)
		}
	}
}

func TestApplyRejectsTransitionToActive(t *testing.T) {
	t.Parallel()

	in := active("10000")
	out, ev, err := fixedIDs().Apply(in, d("10050"), domain.TransitionTo(domain.ChallengeStatusActive, ""), at)
	assert.ErrorIs(t, err, domain.ErrTerminalStateViolation)
	assert.Nil(t, ev)
	assert.Equal(t, in, out)
}

func TestForceComplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		balance    string
		wantStatus domain.ChallengeStatus
		wantReason domain.TransitionReason
		wantEvent  bool
	}{
		{"profit reached passes", "11000", domain.ChallengeStatusPassed, domain.ReasonProfitTargetReached, true},
		{"within bounds stays active", "9500", domain.ChallengeStatusActive, "", false},
		{"just inside loss bound stays active", "9000.01", domain.ChallengeStatusActive, "", false},
		{"at loss bound fails", "9000", domain.ChallengeStatusFailed, domain.ReasonTotalLossBreached, true},
		{"beyond loss bound fails", "8999.99", domain.ChallengeStatusFailed, domain.ReasonTotalLossBreached, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := active(tt.balance)
			out, ev, err := fixedIDs().ForceComplete(in, at)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, out.Status)
			if !tt.wantEvent {
				assert.Nil(t, ev)
				assert.Equal(t, in, out)
				return
			}
			require.NotNil(t, ev)
			assert.Equal(t, tt.wantReason, ev.Reason)
			assert.Equal(t, domain.TriggerForceComplete, ev.Trigger)
			assert.True(t, out.CurrentBalance.Equal(in.CurrentBalance))
			assert.Equal(t, in.Version+1, out.Version)
		})
	}
}

func TestForceCompleteRejectsTerminal(t *testing.T) {
	t.Parallel()

	in := active("11000")
	in.Status = domain.ChallengeStatusPassed
	out, ev, err := fixedIDs().ForceComplete(in, at)
	assert.ErrorIs(t, err, domain.ErrTerminalStateViolation)
	assert.Nil(t, ev)
	assert.Equal(t, in, out)
}

func TestHistory(t *testing.T) {
	t.Parallel()

	in := active("10000")
	ev := domain.LifecycleEvent{To: domain.ChallengeStatusPassed, BalanceAtTransition: d("11250"), Timestamp: at}
	h := History(in, ev)

	assert.Equal(t, "ch-1", h.ChallengeID)
	assert.Equal(t, "user-1", h.OwnerID)
	assert.Equal(t, domain.ChallengeStatusPassed, h.Status)
	assert.True(t, h.FinalBalance.Equal(d("11250")))
	assert.True(t, h.ProfitAmount.Equal(d("1250")))
	assert.True(t, h.ProfitPercentage.Equal(d("12.5")))
	// 2 days and 1 hour counts as 3 started days.
	assert.Equal(t, 3, h.DurationDays)
}
