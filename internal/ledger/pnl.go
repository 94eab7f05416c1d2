package ledger

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// PnLModel prices the realized profit or loss of a single execution.
type PnLModel interface {
	PnL(side domain.Side, price, quantity decimal.Decimal) decimal.Decimal
}

// PnLFunc adapts a plain function to PnLModel.
type PnLFunc func(side domain.Side, price, quantity decimal.Decimal) decimal.Decimal

// PnL calls f.
func (f PnLFunc) PnL(side domain.Side, price, quantity decimal.Decimal) decimal.Decimal {
	return f(side, price, quantity)
}

// FixedPnL credits Amount on every BUY and debits it on every SELL.
type FixedPnL struct {
	Amount decimal.Decimal
}

// PnL implements PnLModel.
func (m FixedPnL) PnL(side domain.Side, _, _ decimal.Decimal) decimal.Decimal {
	if side == domain.SideSell {
		return m.Amount.Neg()
	}
	return m.Amount
}

// BoundedRandomPnL draws a uniform P&L in [-Bound, +Bound] rounded to cents.
// SELL mirrors BUY. The generator is seeded so runs are reproducible.
type BoundedRandomPnL struct {
	bound decimal.Decimal

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBoundedRandomPnL creates a BoundedRandomPnL with the given bound and seed.
func NewBoundedRandomPnL(bound decimal.Decimal, seed int64) *BoundedRandomPnL {
	return &BoundedRandomPnL{
		bound: bound.Abs(),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// PnL implements PnLModel.
func (m *BoundedRandomPnL) PnL(side domain.Side, _, _ decimal.Decimal) decimal.Decimal {
	m.mu.Lock()
	f := m.rng.Float64()
	m.mu.Unlock()

	// f in [0,1) maps to [-bound, +bound).
	v := decimal.NewFromFloat(f*2 - 1).Mul(m.bound).Round(2)
	if side == domain.SideSell {
		return v.Neg()
	}
	return v
}

// ModelConfig selects and parameterises a P&L model.
type ModelConfig struct {
	Name        string
	FixedAmount float64
	RandomBound float64
	Seed        int64
}

// NewModel builds the P&L model named by cfg.Name ("fixed" or "random").
func NewModel(cfg ModelConfig) (PnLModel, error) {
	switch cfg.Name {
	case "", "fixed":
		return FixedPnL{Amount: decimal.NewFromFloat(cfg.FixedAmount)}, nil
	case "random":
		return NewBoundedRandomPnL(decimal.NewFromFloat(cfg.RandomBound), cfg.Seed), nil
	default:
		return nil, fmt.Errorf("ledger: unknown pnl model %q", cfg.Name)
	}
}
