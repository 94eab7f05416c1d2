package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/ledger"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/store/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testChallenge() domain.Challenge {
	return domain.Challenge{ID: "ch-1", OwnerID: "user-1", Version: 1, Status: domain.ChallengeStatusActive}
}

func TestNewEntryRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	l := ledger.New(memory.New(), ledger.FixedPnL{Amount: d("10")})
	tests := []struct {
		name string
		req  domain.TradeRequest
	}{
		{"empty symbol", domain.TradeRequest{Symbol: " ", Side: domain.SideBuy, Price: d("1"), Quantity: d("1")}},
		{"zero price", domain.TradeRequest{Symbol: "BTC", Side: domain.SideBuy, Price: d("0"), Quantity: d("1")}},
		{"negative price", domain.TradeRequest{Symbol: "BTC", Side: domain.SideBuy, Price: d("-3"), Quantity: d("1")}},
		{"zero quantity", domain.TradeRequest{Symbol: "BTC", Side: domain.SideSell, Price: d("1"), Quantity: d("0")}},
		{"unknown side", domain.TradeRequest{Symbol: "BTC", Side: "HOLD", Price: d("1"), Quantity: d("1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.NewEntry(testChallenge(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidTradeInput)
		})
	}
}

func TestCommittedEntriesAreQueryable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := base
	n := 0
	l := ledger.New(store, ledger.FixedPnL{Amount: d("10")},
		ledger.WithClock(func() time.Time { return clock }),
		ledger.WithIDGenerator(func() string { n++; return "e" + string(rune('0'+n)) }),
	)

	ch := testChallenge()
	require.NoError(t, store.CreateChallenge(ctx, ch))

	record := func(req domain.TradeRequest) domain.LedgerEntry {
		t.Helper()
		e, err := l.NewEntry(ch, req)
		require.NoError(t, err)
		e.Seq = ch.Version + 1
		next := ch
		next.Version = e.Seq
		require.NoError(t, store.Commit(ctx, domain.TradeCommit{Challenge: next, ExpectedVersion: ch.Version, Entry: &e}))
		ch = next
		return e
	}

	e1 := record(domain.TradeRequest{Symbol: "BTCUSD", Side: domain.SideBuy, Price: d("100"), Quantity: d("1")})
	assert.True(t, e1.PnL.Equal(d("10")))
	assert.Equal(t, "user-1", e1.OwnerID)

	clock = base.Add(2 * time.Hour)
	e2 := record(domain.TradeRequest{Symbol: "ETHUSD", Side: domain.SideSell, Price: d("50"), Quantity: d("2")})
	assert.True(t, e2.PnL.Equal(d("-10")))

	entries, err := l.EntriesFor(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, e1.ID, entries[0].ID)
	assert.Equal(t, e2.ID, entries[1].ID)

	// Restartable: a second query returns the same sequence.
	again, err := l.EntriesFor(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, entries, again)

	sum, err := l.SumPnLSince(ctx, ch.ID, base)
	require.NoError(t, err)
	assert.True(t, sum.IsZero())

	sum, err = l.SumPnLSince(ctx, ch.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, sum.Equal(d("-10")))

	sum, err = l.SumPnLSince(ctx, "other", base)
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}

func TestStartOfDay(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), ledger.StartOfDay(ts, nil))

	loc := time.FixedZone("UTC+2", 2*3600)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, loc), ledger.StartOfDay(ts, loc))
}

func TestSumEntriesSince(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []domain.LedgerEntry{
		{PnL: d("5"), Timestamp: base.Add(-time.Minute)},
		{PnL: d("7"), Timestamp: base},
		{PnL: d("-2.5"), Timestamp: base.Add(time.Minute)},
	}
	assert.True(t, ledger.SumEntriesSince(entries, base).Equal(d("4.5")))
	assert.True(t, ledger.SumEntriesSince(nil, base).IsZero())
}
