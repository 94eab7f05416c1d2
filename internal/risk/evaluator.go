// Package risk decides whether a balance update moves a challenge out of
// ACTIVE. Evaluation is pure: it reads its inputs and mutates nothing.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// Evaluate checks newBalance and the day's cumulative P&L against the
// challenge limits. Checks run in a fixed order and the first match wins:
//
//  1. total loss >= MaxTotalLoss       -> FAILED (total_loss_breached)
//  2. dailyPnL <= -MaxDailyLoss        -> FAILED (daily_loss_breached)
//  3. balance >= initial + target      -> PASSED (profit_target_reached)
//  4. otherwise                        -> Continue
//
// A loss breach therefore always wins over a simultaneous profit read.
// Evaluating a challenge that is not ACTIVE returns domain.ErrInvalidState.
func Evaluate(c domain.Challenge, newBalance, dailyPnL decimal.Decimal) (domain.Decision, error) {
	if !c.IsActive() {
		return domain.Decision{}, fmt.Errorf("risk: evaluate %s in status %s: %w", c.ID, c.Status, domain.ErrInvalidState)
	}

	totalLoss := c.InitialBalance.Sub(newBalance)
	if totalLoss.GreaterThanOrEqual(c.MaxTotalLoss) {
		return domain.TransitionTo(domain.ChallengeStatusFailed, domain.ReasonTotalLossBreached), nil
	}
	if dailyPnL.LessThanOrEqual(c.MaxDailyLoss.Neg()) {
		return domain.TransitionTo(domain.ChallengeStatusFailed, domain.ReasonDailyLossBreached), nil
	}
	if newBalance.GreaterThanOrEqual(c.InitialBalance.Add(c.ProfitTarget)) {
		return domain.TransitionTo(domain.ChallengeStatusPassed, domain.ReasonProfitTargetReached), nil
	}
	return domain.Continue(), nil
}

// Snapshot is a read model of how close a challenge is to its limits.
type Snapshot struct {
	Profit              decimal.Decimal `json:"profit"`
	ProfitPercentage    decimal.Decimal `json:"profit_percentage"`
	Drawdown            decimal.Decimal `json:"drawdown"`
	DailyPnL            decimal.Decimal `json:"daily_pnl"`
	DailyLossHeadroom   decimal.Decimal `json:"daily_loss_headroom"`
	TotalLossHeadroom   decimal.Decimal `json:"total_loss_headroom"`
	ProfitToTarget      decimal.Decimal `json:"profit_to_target"`
	DailyLossBreached   bool            `json:"daily_loss_breached"`
	TotalLossBreached   bool            `json:"total_loss_breached"`
	ProfitTargetReached bool            `json:"profit_target_reached"`
}

// Assess builds a Snapshot for c given today's cumulative P&L. Headroom
// values are clamped at zero.
func Assess(c domain.Challenge, dailyPnL decimal.Decimal) Snapshot {
	drawdown := c.Drawdown()
	dailyLoss := dailyPnL.Neg()
	if dailyLoss.IsNegative() {
		dailyLoss = decimal.Zero
	}
	return Snapshot{
		Profit:              c.Profit(),
		ProfitPercentage:    c.ProfitPercentage(),
		Drawdown:            drawdown,
		DailyPnL:            dailyPnL,
		DailyLossHeadroom:   clampZero(c.MaxDailyLoss.Sub(dailyLoss)),
		TotalLossHeadroom:   clampZero(c.MaxTotalLoss.Sub(drawdown)),
		ProfitToTarget:      clampZero(c.ProfitTarget.Sub(c.Profit())),
		DailyLossBreached:   dailyPnL.LessThanOrEqual(c.MaxDailyLoss.Neg()),
		TotalLossBreached:   drawdown.GreaterThanOrEqual(c.MaxTotalLoss),
		ProfitTargetReached: c.Profit().GreaterThanOrEqual(c.ProfitTarget),
	}
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
