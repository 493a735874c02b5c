package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrLockNotAcquired means another request is booking the same slot right now.
var ErrLockNotAcquired = errors.New("slot lock not acquired")

const (
	lockKeyPrefix  = "teleconsulta:lock:"
	defaultLockTTL = 5 * time.Second
)

// Locker serializes bookings of one practitioner slot across API replicas.
type Locker interface {
	WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error
}

// SlotLocker is a single-instance Redis lock: SET NX with a random owner
// token, released by a compare-and-delete script.
type SlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotLocker builds a locker whose keys expire after ttl. A
// non-positive ttl falls back to five seconds.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) *SlotLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &SlotLocker{client: client, ttl: ttl}
}

// LockKey is the Redis key guarding a slot key such as
// "<practitioner>:<RFC3339 start>".
func LockKey(slotKey string) string {
	return lockKeyPrefix + slotKey
}

// WithSlotLock runs fn while holding the slot key. fn gets a context bounded
// by the lock ttl so it cannot outlive its ownership.
func (l *SlotLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	key := LockKey(slotKey)
	owner := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !acquired {
		return ErrLockNotAcquired
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := l.release(releaseCtx, key, owner); err != nil {
			// The key still expires on its own after ttl.
			zerolog.Ctx(ctx).Warn().Err(err).Str("lock_key", key).Msg("slot lock release failed")
		}
	}()

	fnCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(fnCtx)
}

var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *SlotLocker) release(ctx context.Context, key, owner string) error {
	if err := releaseIfOwner.Run(ctx, l.client, []string{key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}
