package availability

import (
	"context"
	"fmt"
	"sync"

	"carrental/internal/domain/shared/errkind"
)

// ErrLockBusy is returned by distributed lockers that give up waiting.
var ErrLockBusy = fmt.Errorf("%w: vehicle is being booked by another request", errkind.ErrUnavailable)

// Locker serialises booking writes for one vehicle. Unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, vehicleID string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker with one mutex per vehicle, released when idle.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Lock(ctx context.Context, vehicleID string) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	entry, ok := k.locks[vehicleID]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[vehicleID] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(vehicleID, entry, false)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { k.release(vehicleID, entry, true) })
	}, nil
}

func (k *KeyedMutex) release(vehicleID string, entry *keyedEntry, held bool) {
	if held {
		<-entry.ch
	}
	k.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, vehicleID)
	}
	k.mu.Unlock()
}

var _ Locker = (*KeyedMutex)(nil)
