package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

func TestFixedPnL(t *testing.T) {
	t.Parallel()

	m := FixedPnL{Amount: decimal.NewFromInt(10)}
	one := decimal.NewFromInt(1)
	assert.True(t, m.PnL(domain.SideBuy, one, one).Equal(decimal.NewFromInt(10)))
	assert.True(t, m.PnL(domain.SideSell, one, one).Equal(decimal.NewFromInt(-10)))
}

func TestBoundedRandomPnLStaysInBoundsAndIsReproducible(t *testing.T) {
	t.Parallel()

	bound := decimal.NewFromInt(50)
	a := NewBoundedRandomPnL(bound, 42)
	b := NewBoundedRandomPnL(bound, 42)
	one := decimal.NewFromInt(1)

	for i := 0; i < 500; i++ {
		side := domain.SideBuy
		if i%2 == 1 {
			side = domain.SideSell
		}
		va := a.PnL(side, one, one)
		vb := b.PnL(side, one, one)
		assert.True(t, va.Equal(vb), "same seed must give same sequence")
		assert.True(t, va.Abs().LessThanOrEqual(bound), "value %s out of bounds", va)
	}
}

func TestPnLFunc(t *testing.T) {
	t.Parallel()

	var m PnLModel = PnLFunc(func(_ domain.Side, price, qty decimal.Decimal) decimal.Decimal {
		return price.Mul(qty)
	})
	assert.True(t, m.PnL(domain.SideBuy, decimal.NewFromInt(3), decimal.NewFromInt(4)).Equal(decimal.NewFromInt(12)))
}

func TestNewModel(t *testing.T) {
	t.Parallel()

	m, err := NewModel(ModelConfig{Name: "fixed", FixedAmount: 10})
	require.NoError(t, err)
	assert.IsType(t, FixedPnL{}, m)

	m, err = NewModel(ModelConfig{Name: "random", RandomBound: 50, Seed: 1})
	require.NoError(t, err)
	assert.IsType(t, &BoundedRandomPnL{}, m)

	_, err = NewModel(ModelConfig{Name: "oracle"})
	assert.Error(t, err)
}
