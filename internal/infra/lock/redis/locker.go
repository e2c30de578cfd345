// Package redis serialises booking writes per vehicle across processes.
package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"carrental/internal/domain/availability"
)

const keyPrefix = "carrental:lock:vehicle:"

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// Cmdable is the slice of the redis client the locker uses.
type Cmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd
}

// Locker holds a vehicle lock as a key with a TTL, so a crashed holder
// releases it on expiry.
type Locker struct {
	rdb   Cmdable
	TTL   time.Duration
	Wait  time.Duration
	Retry time.Duration
	log   *slog.Logger
}

func NewLocker(rdb Cmdable, ttl time.Duration, logger *slog.Logger) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{rdb: rdb, TTL: ttl, Wait: 3 * time.Second, Retry: 50 * time.Millisecond, log: logger}
}

func (l *Locker) Lock(ctx context.Context, vehicleID string) (func(), error) {
	key := keyPrefix + vehicleID
	token := uuid.NewString()
	waitCtx, cancel := context.WithTimeout(ctx, l.Wait)
	defer cancel()
	for {
		ok, err := l.rdb.SetNX(waitCtx, key, token, l.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if waitCtx.Err() != nil {
				return nil, availability.ErrLockBusy
			}
			return nil, err
		}
		if ok {
			return l.unlocker(key, token), nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, availability.ErrLockBusy
		case <-time.After(l.Retry):
		}
	}
}

func (l *Locker) unlocker(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		// the caller's ctx may already be done
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.rdb.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			l.log.Warn("vehicle lock release failed", "key", key, "error", err)
		}
	}
}

var _ availability.Locker = (*Locker)(nil)
