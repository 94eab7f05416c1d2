package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func challenge() domain.Challenge {
	return domain.Challenge{
		ID:             "ch-1",
		InitialBalance: d("10000"),
		CurrentBalance: d("10000"),
		MaxDailyLoss:   d("500"),
		MaxTotalLoss:   d("1000"),
		ProfitTarget:   d("1000"),
		Status:         domain.ChallengeStatusActive,
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		balance string
		daily   string
		want    domain.Decision
	}{
		{"total loss exactly at limit", "9000", "0", domain.TransitionTo(domain.ChallengeStatusFailed, domain.ReasonTotalLossBreached)},
		{"total loss beyond limit", "8500", "-1500", domain.TransitionTo(domain.ChallengeStatusFailed, domain.ReasonTotalLossBreached)},
		{"daily loss exactly at limit", "9500", "-500", domain.TransitionTo(domain.ChallengeStatusFailed, domain.ReasonDailyLossBreached)},
		{"daily loss just inside", "9500.01", "-499.99", domain.Continue()},
		{"profit target reached", "11000", "1000", domain.TransitionTo(domain.ChallengeStatusPassed, domain.ReasonProfitTargetReached)},
		{"profit target exceeded", "11200", "600", domain.TransitionTo(domain.ChallengeStatusPassed, domain.ReasonProfitTargetReached)},
		{"small gain", "10100", "100", domain.Continue()},
		{"daily loss wins over profit", "11000", "-600", domain.TransitionTo(domain.ChallengeStatusFailed, domain.ReasonDailyLossBreached)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(challenge(), d(tt.balance), d(tt.daily))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateTotalLossHasPriorityOverProfit(t *testing.T) {
	t.Parallel()

	// A zero total-loss limit with a zero profit target makes both rules
	// match at the initial balance; the loss rule must win.
	c := challenge()
	c.MaxTotalLoss = decimal.Zero
	c.ProfitTarget = decimal.Zero

	got, err := Evaluate(c, c.InitialBalance, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, domain.TransitionTo(domain.ChallengeStatusFailed, domain.ReasonTotalLossBreached), got)
}

func TestEvaluateRejectsTerminalChallenge(t *testing.T) {
	t.Parallel()

	for _, st := range []domain.ChallengeStatus{domain.ChallengeStatusPassed, domain.ChallengeStatusFailed} {
		c := challenge()
		c.Status = st
		_, err := Evaluate(c, d("10000"), decimal.Zero)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	}
}

func TestAssess(t *testing.T) {
	t.Parallel()

	c := challenge()
	c.CurrentBalance = d("9700")
	s := Assess(c, d("-200"))

	assert.True(t, s.Profit.Equal(d("-300")))
	assert.True(t, s.Drawdown.Equal(d("300")))
	assert.True(t, s.DailyLossHeadroom.Equal(d("300")))
	assert.True(t, s.TotalLossHeadroom.Equal(d("700")))
	assert.True(t, s.ProfitToTarget.Equal(d("1300")))
	assert.False(t, s.DailyLossBreached)
	assert.False(t, s.TotalLossBreached)
	assert.False(t, s.ProfitTargetReached)

	c.CurrentBalance = d("11500")
	s = Assess(c, d("1500"))
	assert.True(t, s.ProfitToTarget.IsZero())
	assert.True(t, s.DailyLossHeadroom.Equal(d("500")))
	assert.True(t, s.ProfitTargetReached)
}
