package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeysAreNamespaced(t *testing.T) {
	t.Parallel()

	c := &Client{prefix: "tradesense:"}
	assert.Equal(t, "tradesense:challenges", c.Key("challenges"))
	assert.Equal(t, "tradesense:lock:challenge:42", NewLockManager(c).lockKey("challenge:42"))
	assert.Equal(t, "tradesense:cache:challenge:42", NewChallengeCache(c, 0).key("42"))

	bare := &Client{}
	assert.Equal(t, "stream:lifecycle", bare.Key("stream:lifecycle"))
}

func TestHasPattern(t *testing.T) {
	t.Parallel()

	assert.True(t, hasPattern("challenge:*"))
	assert.True(t, hasPattern("challenge:?"))
	assert.False(t, hasPattern("challenges"))
}

func TestPayloadBytes(t *testing.T) {
	t.Parallel()

	b, ok := payloadBytes("x")
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), b)

	b, ok = payloadBytes([]byte("y"))
	assert.True(t, ok)
	assert.Equal(t, []byte("y"), b)

	_, ok = payloadBytes(42)
	assert.False(t, ok)
}

func TestRateLimiterDefaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(&Client{}, 0, 0)
	assert.Equal(t, 1, rl.waitLimit)
	assert.Equal(t, int64(1000), rl.waitWindow.Milliseconds())
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
