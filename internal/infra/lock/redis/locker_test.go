package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrental/internal/domain/availability"
)

type fakeRedis struct {
	mu     sync.Mutex
	keys   map[string]string
	setErr error
	evals  int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: map[string]string{}}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *goredis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return goredis.NewBoolResult(false, f.setErr)
	}
	if _, held := f.keys[key]; held {
		return goredis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return goredis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *goredis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals++
	if f.keys[keys[0]] == args[0] {
		delete(f.keys, keys[0])
		return goredis.NewCmdResult(int64(1), nil)
	}
	return goredis.NewCmdResult(int64(0), nil)
}

func TestLockAndRelease(t *testing.T) {
	rdb := newFakeRedis()
	l := NewLocker(rdb, time.Second, nil)

	unlock, err := l.Lock(context.Background(), "car-1")
	require.NoError(t, err)
	assert.Contains(t, rdb.keys, keyPrefix+"car-1")

	unlock()
	unlock()
	assert.Empty(t, rdb.keys)
	assert.Equal(t, 1, rdb.evals)

	again, err := l.Lock(context.Background(), "car-1")
	require.NoError(t, err)
	again()
}

func TestLockBusyAfterWait(t *testing.T) {
	rdb := newFakeRedis()
	l := NewLocker(rdb, time.Second, nil)
	l.Wait = 30 * time.Millisecond
	l.Retry = 5 * time.Millisecond

	unlock, err := l.Lock(context.Background(), "car-1")
	require.NoError(t, err)
	defer unlock()

	_, err = l.Lock(context.Background(), "car-1")
	assert.ErrorIs(t, err, availability.ErrLockBusy)

	other, err := l.Lock(context.Background(), "car-2")
	require.NoError(t, err)
	other()
}

func TestLockPropagatesRedisErrors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.setErr = errors.New("connection refused")
	l := NewLocker(rdb, time.Second, nil)

	_, err := l.Lock(context.Background(), "car-1")
	assert.EqualError(t, err, "connection refused")
}

func TestLockHonoursCallerContext(t *testing.T) {
	rdb := newFakeRedis()
	l := NewLocker(rdb, time.Second, nil)
	unlock, err := l.Lock(context.Background(), "car-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "car-1")
	assert.ErrorIs(t, err, context.Canceled)
}
