package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

func newChallenge(t *testing.T, id, owner string, created time.Time) domain.Challenge {
	t.Helper()
	c, err := domain.NewChallenge(id, owner, "", decimal.NewFromInt(10000), domain.DefaultLimits(), created)
	require.NoError(t, err)
	return c
}

func TestChallengeCRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateChallenge(ctx, newChallenge(t, "a", "u1", base)))
	require.NoError(t, s.CreateChallenge(ctx, newChallenge(t, "b", "u1", base.Add(time.Hour))))
	require.NoError(t, s.CreateChallenge(ctx, newChallenge(t, "c", "u2", base)))
	assert.ErrorIs(t, s.CreateChallenge(ctx, newChallenge(t, "a", "u1", base)), domain.ErrAlreadyExists)

	got, err := s.GetChallenge(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.OwnerID)

	_, err = s.GetChallenge(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := s.ListChallenges(ctx, "u1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "newest first")

	list, err = s.ListChallenges(ctx, "u1", domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)

	active, err := s.ListChallengesByStatus(ctx, domain.ChallengeStatusActive, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestCommitIsVersionChecked(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	c := newChallenge(t, "a", "u1", time.Now())
	require.NoError(t, s.CreateChallenge(ctx, c))

	next := c
	next.CurrentBalance = decimal.NewFromInt(10100)
	next.Version = 2
	entry := domain.LedgerEntry{ID: "e1", ChallengeID: "a", OwnerID: "u1", PnL: decimal.NewFromInt(100), Seq: 2, Timestamp: time.Now()}

	require.NoError(t, s.Commit(ctx, domain.TradeCommit{Challenge: next, ExpectedVersion: 1, Entry: &entry}))

	// Replaying against the old version conflicts and records nothing new.
	err := s.Commit(ctx, domain.TradeCommit{Challenge: next, ExpectedVersion: 1, Entry: &entry})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	entries, err := s.EntriesFor(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	got, err := s.GetChallenge(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(decimal.NewFromInt(10100)))

	missing := next
	missing.ID = "zzz"
	assert.ErrorIs(t, s.Commit(ctx, domain.TradeCommit{Challenge: missing, ExpectedVersion: 1}), domain.ErrNotFound)
}

func TestLeaderboardRanksByProfitPercentage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	base := time.Now()
	for i, bal := range []int64{10500, 12000, 9000} {
		c := newChallenge(t, string(rune('a'+i)), "u", base.Add(time.Duration(i)*time.Second))
		c.CurrentBalance = decimal.NewFromInt(bal)
		if bal == 12000 {
			c.Status = domain.ChallengeStatusPassed
		}
		require.NoError(t, s.CreateChallenge(ctx, c))
	}

	rows, err := s.Leaderboard(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].ChallengeID)
	assert.Equal(t, 1, rows[0].Rank)
	assert.True(t, rows[0].Funded)
	assert.True(t, rows[0].ProfitPercentage.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "a", rows[1].ChallengeID)
	assert.False(t, rows[1].Funded)
}

func TestAuditLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	require.NoError(t, s.Log(ctx, "first", map[string]any{"n": 1}))
	require.NoError(t, s.Log(ctx, "second", nil))

	rows, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "second", rows[0].Event)
	assert.Equal(t, int64(1), rows[1].ID)
}

func TestBusPatternSubscribeAndStreams(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBus()
	exact, err := b.Subscribe(ctx, "challenges")
	require.NoError(t, err)
	pattern, err := b.Subscribe(ctx, "challenge:*")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "challenges", []byte("x")))
	require.NoError(t, b.Publish(ctx, "challenge:42", []byte("y")))

	assert.Equal(t, []byte("x"), <-exact)
	assert.Equal(t, []byte("y"), <-pattern)

	require.NoError(t, b.StreamAppend(ctx, "s", []byte("1")))
	require.NoError(t, b.StreamAppend(ctx, "s", []byte("2")))
	msgs, err := b.StreamRead(ctx, "s", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	msgs, err = b.StreamRead(ctx, "s", msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("2"), msgs[0].Payload)

	cancel()
	_, open := <-exact
	for open {
		_, open = <-exact
	}
}
