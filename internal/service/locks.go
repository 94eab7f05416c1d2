package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// KeyedMutex is an arena of mutexes keyed by string. Entries are reference
// counted and removed once no goroutine holds or waits on them, so the arena
// only grows with the number of keys in flight. It is safe for concurrent use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is held by the caller or ctx is done. The returned
// func releases the key and must be called exactly once.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// challengeLocker serialises work per challenge: always in process, and
// across instances when a distributed LockManager is configured.
type challengeLocker struct {
	local *KeyedMutex
	dist  domain.LockManager
	ttl   time.Duration
	retry time.Duration
}

func newChallengeLocker(dist domain.LockManager, ttl, retry time.Duration) *challengeLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &challengeLocker{
		local: NewKeyedMutex(),
		dist:  dist,
		ttl:   ttl,
		retry: retry,
	}
}

func lockKey(challengeID string) string {
	return "challenge:" + challengeID
}

// lock acquires the challenge. Contention on the distributed lock is retried
// until ctx is done.
func (l *challengeLocker) lock(ctx context.Context, challengeID string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if l.dist == nil {
		return unlockLocal, nil
	}

	for {
		unlockDist, err := l.dist.Acquire(ctx, lockKey(challengeID), l.ttl)
		if err == nil {
			return func() {
				unlockDist()
				unlockLocal()
			}, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			unlockLocal()
			return nil, fmt.Errorf("distributed lock: %w", err)
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			unlockLocal()
			return nil, fmt.Errorf("distributed lock: %w", domain.ErrLockHeld)
		case <-timer.C:
		}
	}
}
