package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	internal "github.com/frahmantamala/pos-billing/internal"
)

// JobLock serializes sweep runs across scheduler instances. The renewal
// sweep is idempotent per item, so the lock is about wasted work and
// gateway rate limits, not correctness.
type JobLock interface {
	// Acquire returns a release func, or ok=false when another instance
	// holds the lock.
	Acquire(ctx context.Context, name string) (release func(), ok bool)
}

// RedisJobLock backs JobLock with a redsync mutex.
type RedisJobLock struct {
	rs     *redsync.Redsync
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisJobLock(cfg internal.RedisConfig, ttl time.Duration, logger *slog.Logger) *RedisJobLock {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisJobLockWithClient(rdb, ttl, logger)
}

// NewRedisJobLockWithClient wires the lock to an existing client, used by
// tests with a miniredis-backed client.
func NewRedisJobLockWithClient(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisJobLock {
	pool := goredis.NewPool(rdb)
	return &RedisJobLock{
		rs:     redsync.New(pool),
		ttl:    ttl,
		logger: logger,
	}
}

func (l *RedisJobLock) Acquire(ctx context.Context, name string) (func(), bool) {
	// A single try: a busy lock means another instance is already running
	// this sweep, not a transient failure worth retrying into.
	mutex := l.rs.NewMutex("joblock:"+name,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		l.logger.Info("job lock busy, skipping run", "job", name, "error", err)
		return nil, false
	}

	release := func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			l.logger.Warn("failed to release job lock", "job", name, "error", err)
		}
	}
	return release, true
}

// NoopJobLock always grants the lock, used when no Redis address is
// configured. Only safe with a single scheduler node.
type NoopJobLock struct{}

func (NoopJobLock) Acquire(_ context.Context, _ string) (func(), bool) {
	return func() {}, true
}
