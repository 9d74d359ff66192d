package store

import (
	"context"
	"errors"
	"sync"
)

// ErrLockHeld is returned by TryLockDocument when a concurrent merge
// already owns the document. Callers retry or block on LockDocument; they
// never proceed without the lock.
var ErrLockHeld = errors.New("document lock held")

// lockTable hands out per-document exclusive locks. Each document gets a
// one-slot semaphore so acquisition can block on a context; no lock spans
// more than one document, so unrelated documents merge concurrently.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]chan struct{})}
}

func (t *lockTable) slot(key string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		t.slots[key] = slot
	}
	return slot
}

// acquire blocks until the lock is free or ctx is done.
func (t *lockTable) acquire(ctx context.Context, key string) (func(), error) {
	slot := t.slot(key)
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// tryAcquire takes the lock if free, else returns ErrLockHeld.
func (t *lockTable) tryAcquire(key string) (func(), error) {
	slot := t.slot(key)
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	default:
		return nil, ErrLockHeld
	}
}
