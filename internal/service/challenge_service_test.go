package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

func TestCreateChallengeFromPlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, TradeConfig{}, nil)

	ch, err := h.challenges.CreateChallenge(ctx, CreateChallengeRequest{OwnerID: " user-9 ", Plan: "pro"})
	require.NoError(t, err)

	assert.NotEmpty(t, ch.ID)
	assert.Equal(t, "user-9", ch.OwnerID)
	assert.Equal(t, "Pro", ch.Plan)
	assert.Equal(t, domain.ChallengeStatusActive, ch.Status)
	assert.True(t, ch.InitialBalance.Equal(d("5000")))
	assert.True(t, ch.CurrentBalance.Equal(d("5000")))
	assert.True(t, ch.MaxDailyLoss.Equal(d("250")))
	assert.True(t, ch.MaxTotalLoss.Equal(d("500")))
	assert.True(t, ch.ProfitTarget.Equal(d("500")))

	stored, err := h.store.GetChallenge(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, ch, stored)

	audit, err := h.store.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "challenge_created", audit[0].Event)
}

func TestCreateChallengeFromBalance(t *testing.T) {
	t.Parallel()

	h := newHarness(t, TradeConfig{}, nil)
	ch, err := h.challenges.CreateChallenge(context.Background(), CreateChallengeRequest{OwnerID: "u", InitialBalance: d("1234.56")})
	require.NoError(t, err)
	assert.Empty(t, ch.Plan)
	assert.True(t, ch.MaxDailyLoss.Equal(d("61.73")))
	assert.True(t, ch.MaxTotalLoss.Equal(d("123.46")))
}

func TestCreateChallengeRejectsBadInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, TradeConfig{}, nil)

	_, err := h.challenges.CreateChallenge(ctx, CreateChallengeRequest{OwnerID: "u", Plan: "Diamond"})
	assert.ErrorIs(t, err, domain.ErrUnknownPlan)

	_, err = h.challenges.CreateChallenge(ctx, CreateChallengeRequest{OwnerID: "u", InitialBalance: d("0")})
	assert.ErrorIs(t, err, domain.ErrInvalidChallenge)

	_, err = h.challenges.CreateChallenge(ctx, CreateChallengeRequest{OwnerID: "", Plan: "Pro"})
	assert.ErrorIs(t, err, domain.ErrInvalidChallenge)
}

func TestChallengeViewsAndListings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, TradeConfig{}, nil)
	ch := h.create(t)

	_, err := h.trades.ExecuteTrade(ctx, ch.ID, loss("200"))
	require.NoError(t, err)
	_, err = h.trades.ExecuteTrade(ctx, ch.ID, gain("50"))
	require.NoError(t, err)

	view, err := h.challenges.GetChallenge(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, view.Challenge.CurrentBalance.Equal(d("9850")))
	assert.True(t, view.Risk.DailyLossHeadroom.Equal(d("350")))
	assert.True(t, view.Risk.TotalLossHeadroom.Equal(d("850")))
	assert.Zero(t, view.Pending)

	entries, err := h.challenges.Entries(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].PnL.Equal(d("-200")))

	trades, err := h.challenges.UserTrades(ctx, "user-1", domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	list, err := h.challenges.ListChallenges(ctx, "user-1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ch.ID, list[0].ID)

	_, err = h.challenges.GetChallenge(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.challenges.Events(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLeaderboardThroughService(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, TradeConfig{}, nil)
	loser := h.create(t)
	winner := h.create(t)

	_, err := h.trades.ExecuteTrade(ctx, loser.ID, loss("100"))
	require.NoError(t, err)
	_, err = h.trades.ExecuteTrade(ctx, winner.ID, gain("1500"))
	require.NoError(t, err)

	rows, err := h.challenges.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, winner.ID, rows[0].ChallengeID)
	assert.True(t, rows[0].Funded)
	assert.True(t, rows[0].ProfitPercentage.Equal(d("15")))
	assert.Equal(t, loser.ID, rows[1].ChallengeID)
}

func TestPlanLookup(t *testing.T) {
	t.Parallel()

	h := newHarness(t, TradeConfig{}, nil)
	assert.Len(t, h.challenges.Plans(), 3)

	p, err := h.challenges.Plan("STARTER")
	require.NoError(t, err)
	assert.True(t, p.Capital.Equal(d("2000")))
}
