package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PinLimiter tracks failed PIN attempts per user. A user whose failures reach
// the budget is locked out until the window expires.
type PinLimiter interface {
	Allow(ctx context.Context, userID uuid.UUID) (bool, error)
	RecordFailure(ctx context.Context, userID uuid.UUID) error
	Reset(ctx context.Context, userID uuid.UUID) error
}

// ── Redis ─────────────────────────────────────────────────────────────────────

// RedisPinLimiter keeps one counter per user: INCR on failure, EXPIRE on the
// first failure of a window, DEL on success.
type RedisPinLimiter struct {
	rdb         *redis.Client
	maxFailures int
	window      time.Duration
}

func NewRedisPinLimiter(rdb *redis.Client, maxFailures int, window time.Duration) *RedisPinLimiter {
	return &RedisPinLimiter{rdb: rdb, maxFailures: maxFailures, window: window}
}

func pinKey(userID uuid.UUID) string { return fmt.Sprintf("pin:fail:%s", userID) }

func (l *RedisPinLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := l.rdb.Get(ctx, pinKey(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return n < l.maxFailures, nil
}

func (l *RedisPinLimiter) RecordFailure(ctx context.Context, userID uuid.UUID) error {
	key := pinKey(userID)
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if incr.Val() == 1 {
		return l.rdb.Expire(ctx, key, l.window).Err()
	}
	return nil
}

func (l *RedisPinLimiter) Reset(ctx context.Context, userID uuid.UUID) error {
	return l.rdb.Del(ctx, pinKey(userID)).Err()
}

// ── In-memory ─────────────────────────────────────────────────────────────────

type pinWindow struct {
	failures  int
	expiresAt time.Time
}

// MemoryPinLimiter is the process-local PinLimiter used in tests and when Redis
// is not configured.
type MemoryPinLimiter struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]*pinWindow
	maxFailures int
	window      time.Duration
	now         func() time.Time
}

func NewMemoryPinLimiter(maxFailures int, window time.Duration) *MemoryPinLimiter {
	return &MemoryPinLimiter{
		entries:     make(map[uuid.UUID]*pinWindow),
		maxFailures: maxFailures,
		window:      window,
		now:         time.Now,
	}
}

func (l *MemoryPinLimiter) current(userID uuid.UUID) *pinWindow {
	e, ok := l.entries[userID]
	if ok && !l.now().Before(e.expiresAt) {
		delete(l.entries, userID)
		return nil
	}
	return e
}

func (l *MemoryPinLimiter) Allow(_ context.Context, userID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.current(userID)
	return e == nil || e.failures < l.maxFailures, nil
}

func (l *MemoryPinLimiter) RecordFailure(_ context.Context, userID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.current(userID)
	if e == nil {
		e = &pinWindow{expiresAt: l.now().Add(l.window)}
		l.entries[userID] = e
	}
	e.failures++
	return nil
}

func (l *MemoryPinLimiter) Reset(_ context.Context, userID uuid.UUID) error {
	l.mu.Lock()
	delete(l.entries, userID)
	l.mu.Unlock()
	return nil
}
