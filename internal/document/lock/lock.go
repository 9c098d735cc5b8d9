// Package lock serializes writers per document id.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrTimeout is returned when a lock could not be acquired in time.
var ErrTimeout = errors.New("lock: timed out waiting for lock")

// Locker hands out exclusive locks keyed by document id. Locks on different
// keys never block each other.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned func
	// releases the lock and must be called exactly once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Local is an in-process Locker. Entries are reference counted and dropped
// once nobody holds or waits for them.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	e := l.acquire(key)
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(key, e)
		})
	}, nil
}

func (l *Local) acquire(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports the number of tracked keys.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
