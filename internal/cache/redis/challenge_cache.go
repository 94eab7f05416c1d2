package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

const defaultChallengeTTL = 5 * time.Minute

// ChallengeCache implements domain.ChallengeCache as JSON strings under
// "challenge:{id}". Writes never move a cached challenge to an older
// version, so a slow writer cannot overwrite a newer snapshot.
type ChallengeCache struct {
	c     *Client
	ttl   time.Duration
	setSc *redis.Script
}

// setIfNewerLua stores ARGV[1] unless the cached snapshot has a higher
// version than ARGV[2].
const setIfNewerLua = `
local cur = redis.call('GET', KEYS[1])
if cur then
    local ok, decoded = pcall(cjson.decode, cur)
    if ok and decoded['version'] and tonumber(decoded['version']) > tonumber(ARGV[2]) then
        return 0
    end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`

// NewChallengeCache creates a ChallengeCache. A non-positive ttl uses five
// minutes.
func NewChallengeCache(c *Client, ttl time.Duration) *ChallengeCache {
	if ttl <= 0 {
		ttl = defaultChallengeTTL
	}
	return &ChallengeCache{c: c, ttl: ttl, setSc: redis.NewScript(setIfNewerLua)}
}

func (cc *ChallengeCache) key(id string) string {
	return cc.c.Key("cache:challenge:" + id)
}

// Set caches the challenge snapshot.
func (cc *ChallengeCache) Set(ctx context.Context, ch domain.Challenge) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("redis: marshal challenge %s: %w", ch.ID, err)
	}
	if err := cc.setSc.Run(ctx, cc.c.rdb, []string{cc.key(ch.ID)}, data, ch.Version, cc.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis: set challenge %s: %w", ch.ID, err)
	}
	return nil
}

// Get returns the cached challenge or domain.ErrNotFound.
func (cc *ChallengeCache) Get(ctx context.Context, id string) (domain.Challenge, error) {
	data, err := cc.c.rdb.Get(ctx, cc.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Challenge{}, domain.ErrNotFound
		}
		return domain.Challenge{}, fmt.Errorf("redis: get challenge %s: %w", id, err)
	}
	var ch domain.Challenge
	if err := json.Unmarshal(data, &ch); err != nil {
		return domain.Challenge{}, fmt.Errorf("redis: unmarshal challenge %s: %w", id, err)
	}
	return ch, nil
}

// Invalidate drops the cached challenge.
func (cc *ChallengeCache) Invalidate(ctx context.Context, id string) error {
	if err := cc.c.rdb.Del(ctx, cc.key(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate challenge %s: %w", id, err)
	}
	return nil
}

var _ domain.ChallengeCache = (*ChallengeCache)(nil)
