package state

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
)

// LockKey is the redis key guarding a sync cycle.
const LockKey = "lock:sheetsync:cycle"

// ReleaseFunc releases a held lock.
type ReleaseFunc = func(ctx context.Context) error

// Locker serializes sync cycles. Acquire returns errors.ErrLocked when the
// lock is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context) (ReleaseFunc, error)
}

// LocalLocker serializes cycles within one process.
type LocalLocker struct {
	mu sync.Mutex
}

// NewLocalLocker returns an unlocked LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

// Acquire implements Locker without blocking.
func (l *LocalLocker) Acquire(_ context.Context) (ReleaseFunc, error) {
	if !l.mu.TryLock() {
		return nil, errors.ErrLocked
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, nil
}

// RedisLocker serializes cycles across processes sharing a redis. A held
// lock is refreshed every third of its TTL until released, so it outlives
// long cycles but expires soon after a crashed holder.
type RedisLocker struct {
	client       *redislock.Client
	key          string
	ttl          time.Duration
	refreshEvery time.Duration
}

// NewRedisLocker returns a Locker on client. A zero ttl uses
// constants.LockTTL.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = constants.LockTTL
	}
	return &RedisLocker{client: redislock.New(client), key: LockKey, ttl: ttl, refreshEvery: ttl / 3}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context) (ReleaseFunc, error) {
	lock, err := l.client.Obtain(ctx, l.key, l.ttl, nil)
	if stderrors.Is(err, redislock.ErrNotObtained) {
		return nil, errors.ErrLocked
	}
	if err != nil {
		return nil, errors.WrapResource("obtain", "lock", l.key, err)
	}

	stop := keepAlive(context.WithoutCancel(ctx), l.refreshEvery, func(ctx context.Context) error {
		return lock.Refresh(ctx, l.ttl, nil)
	}, logging.FromContext(ctx))

	return func(ctx context.Context) error {
		stop()
		err := lock.Release(ctx)
		if stderrors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}

// keepAlive calls refresh every interval until the returned stop function
// is called. A lost lock ends the loop; stop waits for it to exit.
func keepAlive(ctx context.Context, every time.Duration, refresh func(context.Context) error, logger *zerolog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := refresh(ctx)
			if err == nil || ctx.Err() != nil {
				continue
			}
			if stderrors.Is(err, redislock.ErrNotObtained) {
				logger.Error().Str("key", LockKey).Msg("Sync lock lost before the cycle finished")
				return
			}
			logger.Warn().Err(err).Str("key", LockKey).Msg("Failed to refresh sync lock")
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
