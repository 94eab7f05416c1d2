package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether a trade buys or sells.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalises s into a Side. It accepts either case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", ErrInvalidTradeInput
}

// TradeRequest is a request to execute a simulated trade on a challenge.
// RequestID is an optional client key used to deduplicate retries.
type TradeRequest struct {
	Symbol    string
	Side      Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	RequestID string
}

// Validate rejects empty symbols, unknown sides and non-positive
// price or quantity.
func (r TradeRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return ErrInvalidTradeInput
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return ErrInvalidTradeInput
	}
	if !r.Price.IsPositive() || !r.Quantity.IsPositive() {
		return ErrInvalidTradeInput
	}
	return nil
}

// LedgerEntry is one immutable trade execution recorded against a challenge.
// Seq is the challenge version produced by applying the entry and orders
// entries within a challenge.
type LedgerEntry struct {
	ID          string          `json:"id"`
	ChallengeID string          `json:"challenge_id"`
	OwnerID     string          `json:"user_id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	PnL         decimal.Decimal `json:"pnl"`
	Seq         int64           `json:"seq"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Durability tells the caller whether a result reached the durable store.
type Durability string

const (
	DurabilityDurable   Durability = "durable"
	DurabilityLocalOnly Durability = "local_only"
)

// TradeResult is the outcome of one executed trade.
type TradeResult struct {
	Challenge  Challenge       `json:"challenge"`
	Entry      LedgerEntry     `json:"entry"`
	Event      *LifecycleEvent `json:"event,omitempty"`
	Durability Durability      `json:"durability"`
}

// CompletionResult is the outcome of a manual completion request.
type CompletionResult struct {
	Challenge  Challenge       `json:"challenge"`
	Event      *LifecycleEvent `json:"event,omitempty"`
	Durability Durability      `json:"durability"`
}
