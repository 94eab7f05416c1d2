package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	t.Parallel()

	k := NewKeyedMutex()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "a")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, k.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	t.Parallel()

	k := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := k.Lock(ctx, "a")
	require.NoError(t, err)
	unlockB, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, k.Len())

	unlockA()
	unlockA()
	unlockB()
	assert.Zero(t, k.Len())
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	t.Parallel()

	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, k.Len())

	unlock()
	assert.Zero(t, k.Len())
}

func TestDedupExpires(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	dd := NewDedup(time.Minute)
	dd.now = func() time.Time { return now }

	res := domain.TradeResult{Entry: domain.LedgerEntry{ID: "e1"}}
	dd.Remember("c", "r", res)
	dd.Remember("c", "", res)

	got, ok := dd.Lookup("c", "r")
	require.True(t, ok)
	assert.Equal(t, "e1", got.Entry.ID)
	_, ok = dd.Lookup("other", "r")
	assert.False(t, ok)
	_, ok = dd.Lookup("c", "")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = dd.Lookup("c", "r")
	assert.False(t, ok)
	dd.Cleanup()
	assert.Empty(t, dd.seen)
}
