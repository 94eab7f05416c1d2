package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChallengeStatus tracks the challenge lifecycle.
type ChallengeStatus string

const (
	ChallengeStatusActive ChallengeStatus = "active"
	ChallengeStatusPassed ChallengeStatus = "passed"
	ChallengeStatusFailed ChallengeStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s ChallengeStatus) Valid() bool {
	switch s {
	case ChallengeStatusActive, ChallengeStatusPassed, ChallengeStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further trades may mutate a challenge in status s.
func (s ChallengeStatus) Terminal() bool {
	return s == ChallengeStatusPassed || s == ChallengeStatusFailed
}

// Challenge is a virtual funded trading account with fixed limits.
//
// CurrentBalance and Status change only through the trade orchestrator and
// the lifecycle state machine. Version increases by one on every mutation and
// backs optimistic concurrency in durable stores.
type Challenge struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"user_id"`
	Plan           string          `json:"plan"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	MaxDailyLoss   decimal.Decimal `json:"max_daily_loss"`
	MaxTotalLoss   decimal.Decimal `json:"max_total_loss"`
	ProfitTarget   decimal.Decimal `json:"profit_target"`
	Status         ChallengeStatus `json:"status"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsActive reports whether the challenge still accepts trades.
func (c Challenge) IsActive() bool {
	return c.Status == ChallengeStatusActive
}

// Profit is the signed gain over the initial balance.
func (c Challenge) Profit() decimal.Decimal {
	return c.CurrentBalance.Sub(c.InitialBalance)
}

// Drawdown is the loss from the initial balance, zero when in profit.
func (c Challenge) Drawdown() decimal.Decimal {
	loss := c.InitialBalance.Sub(c.CurrentBalance)
	if loss.IsNegative() {
		return decimal.Zero
	}
	return loss
}

// ProfitPercentage returns profit as a percentage of the initial balance.
func (c Challenge) ProfitPercentage() decimal.Decimal {
	if c.InitialBalance.IsZero() {
		return decimal.Zero
	}
	return c.Profit().Div(c.InitialBalance).Mul(decimal.NewFromInt(100)).Round(2)
}

// Limits holds the percentages used to derive challenge limits from the
// initial balance. A value of 0.05 means five percent.
type Limits struct {
	DailyLossPct    decimal.Decimal
	TotalLossPct    decimal.Decimal
	ProfitTargetPct decimal.Decimal
}

// DefaultLimits returns the 5% daily, 10% total, 10% target rule.
func DefaultLimits() Limits {
	return Limits{
		DailyLossPct:    decimal.RequireFromString("0.05"),
		TotalLossPct:    decimal.RequireFromString("0.10"),
		ProfitTargetPct: decimal.RequireFromString("0.10"),
	}
}

// NewChallenge builds an ACTIVE challenge whose limits are derived from the
// initial balance. It returns ErrInvalidChallenge when the owner is empty, the
// balance is not positive or any percentage is negative.
func NewChallenge(id, ownerID, plan string, initial decimal.Decimal, limits Limits, now time.Time) (Challenge, error) {
	if id == "" || ownerID == "" {
		return Challenge{}, ErrInvalidChallenge
	}
	if !initial.IsPositive() {
		return Challenge{}, ErrInvalidChallenge
	}
	if limits.DailyLossPct.IsNegative() || limits.TotalLossPct.IsNegative() || limits.ProfitTargetPct.IsNegative() {
		return Challenge{}, ErrInvalidChallenge
	}
	return Challenge{
		ID:             id,
		OwnerID:        ownerID,
		Plan:           plan,
		InitialBalance: initial,
		CurrentBalance: initial,
		MaxDailyLoss:   initial.Mul(limits.DailyLossPct).Round(2),
		MaxTotalLoss:   initial.Mul(limits.TotalLossPct).Round(2),
		ProfitTarget:   initial.Mul(limits.ProfitTargetPct).Round(2),
		Status:         ChallengeStatusActive,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Plan is a purchasable challenge tier.
type Plan struct {
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Capital decimal.Decimal `json:"capital"`
}

// ChallengeHistory summarises a challenge that reached a terminal status.
type ChallengeHistory struct {
	ChallengeID      string          `json:"challenge_id"`
	OwnerID          string          `json:"user_id"`
	InitialBalance   decimal.Decimal `json:"initial_balance"`
	FinalBalance     decimal.Decimal `json:"final_balance"`
	Status           ChallengeStatus `json:"status"`
	DurationDays     int             `json:"duration_days"`
	ProfitAmount     decimal.Decimal `json:"profit_amount"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
	CompletedAt      time.Time       `json:"completed_at"`
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank             int             `json:"rank"`
	ChallengeID      string          `json:"challenge_id"`
	OwnerID          string          `json:"user_id"`
	Plan             string          `json:"plan"`
	Status           ChallengeStatus `json:"status"`
	ProfitAmount     decimal.Decimal `json:"profit_amount"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
	Funded           bool            `json:"funded"`
}

// RankChallenges turns challenges already sorted by rank into leaderboard rows.
func RankChallenges(sorted []Challenge) []LeaderboardEntry {
	out := make([]LeaderboardEntry, len(sorted))
	for i, c := range sorted {
		out[i] = LeaderboardEntry{
			Rank:             i + 1,
			ChallengeID:      c.ID,
			OwnerID:          c.OwnerID,
			Plan:             c.Plan,
			Status:           c.Status,
			ProfitAmount:     c.Profit(),
			ProfitPercentage: c.ProfitPercentage(),
			Funded:           c.Status == ChallengeStatusPassed,
		}
	}
	return out
}
