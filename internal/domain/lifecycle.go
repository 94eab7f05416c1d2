package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransitionReason explains why a challenge left ACTIVE.
type TransitionReason string

const (
	ReasonTotalLossBreached   TransitionReason = "total_loss_breached"
	ReasonDailyLossBreached   TransitionReason = "daily_loss_breached"
	ReasonProfitTargetReached TransitionReason = "profit_target_reached"
)

// TransitionTrigger names the operation that caused a transition.
type TransitionTrigger string

const (
	TriggerTrade         TransitionTrigger = "trade"
	TriggerForceComplete TransitionTrigger = "force_complete"
)

// DecisionKind distinguishes a no-op decision from a status transition.
type DecisionKind int

const (
	DecisionContinue DecisionKind = iota
	DecisionTransition
)

// Decision is the verdict of the risk evaluator for one balance update.
type Decision struct {
	Kind   DecisionKind
	To     ChallengeStatus
	Reason TransitionReason
}

// Continue is the decision that leaves the status unchanged.
func Continue() Decision {
	return Decision{Kind: DecisionContinue}
}

// TransitionTo is the decision that moves a challenge to status for reason.
func TransitionTo(status ChallengeStatus, reason TransitionReason) Decision {
	return Decision{Kind: DecisionTransition, To: status, Reason: reason}
}

func (d Decision) String() string {
	if d.Kind == DecisionContinue {
		return "continue"
	}
	return fmt.Sprintf("transition(%s, %s)", d.To, d.Reason)
}

// LifecycleEvent records a status transition for history and audit.
type LifecycleEvent struct {
	ID                  string            `json:"id"`
	ChallengeID         string            `json:"challenge_id"`
	OwnerID             string            `json:"user_id"`
	From                ChallengeStatus   `json:"from"`
	To                  ChallengeStatus   `json:"to"`
	Reason              TransitionReason  `json:"reason"`
	Trigger             TransitionTrigger `json:"trigger"`
	BalanceAtTransition decimal.Decimal   `json:"balance_at_transition"`
	Timestamp           time.Time         `json:"timestamp"`
}
