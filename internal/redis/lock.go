package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("booking lock not acquired")

// NewClient dials Redis and verifies the connection before the server
// starts taking bookings. The only traffic on this client is short
// SetNX/DEL pairs, so pool sizing stays on the driver defaults.
func NewClient(ctx context.Context, addr, username, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Locker guards the critical section that books a doctor's time slot, so
// two concurrent requests cannot both pass the overlap check.
type Locker interface {
	WithBookingLock(ctx context.Context, doctorID int, start time.Time, fn func(ctx context.Context) error) error
}

type redisBookingLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBookingLocker creates a locker backed by a per doctor/slot
// Redis key, for deployments running more than one server instance.
func NewRedisBookingLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisBookingLocker{
		client: client,
		ttl:    ttl,
	}
}

func bookingKey(doctorID int, start time.Time) string {
	return fmt.Sprintf("lock:booking:%d:%d", doctorID, start.Unix())
}

func (l *redisBookingLocker) WithBookingLock(ctx context.Context, doctorID int, start time.Time, fn func(ctx context.Context) error) error {
	key := bookingKey(doctorID, start)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire booking lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisBookingLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}

// localLocker serializes bookings inside a single process. Used when no
// Redis address is configured, which is the common single-instance setup.
type localLocker struct {
	mu    sync.Mutex
	taken map[string]struct{}
}

func NewLocalLocker() Locker {
	return &localLocker{taken: make(map[string]struct{})}
}

func (l *localLocker) WithBookingLock(ctx context.Context, doctorID int, start time.Time, fn func(ctx context.Context) error) error {
	key := bookingKey(doctorID, start)

	l.mu.Lock()
	if _, held := l.taken[key]; held {
		l.mu.Unlock()
		return ErrLockNotAcquired
	}
	l.taken[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.taken, key)
		l.mu.Unlock()
	}()

	return fn(ctx)
}
