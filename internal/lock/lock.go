// Package lock serializes operations on one record identity.
//
// Every engine operation takes the lock of the market it touches before it
// loads records, so two operations on the same market never interleave.
// Operations on different markets proceed in parallel.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLockHeld is returned by TryLock when another holder owns the key.
var ErrLockHeld = errors.New("lock held")

// Locker grants exclusive access to a key. Lock blocks until the key is
// free or ctx is done. The returned unlock func is safe to call twice.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Memory is an in-process Locker.
type Memory struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{} // buffered(1): holding the lock = one token inside
	refs int           // holders plus waiters
}

// NewMemory creates an in-process Locker.
func NewMemory() *Memory {
	return &Memory{slots: make(map[string]*slot)}
}

// Lock acquires key, waiting until it is free or ctx is done.
func (m *Memory) Lock(ctx context.Context, key string) (func(), error) {
	s := m.acquire(key)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, s)
		return nil, ctx.Err()
	}

	return m.unlocker(key, s), nil
}

// TryLock acquires key only if it is free right now.
func (m *Memory) TryLock(key string) (func(), error) {
	s := m.acquire(key)

	select {
	case s.ch <- struct{}{}:
		return m.unlocker(key, s), nil
	default:
		m.release(key, s)
		return nil, ErrLockHeld
	}
}

func (m *Memory) unlocker(key string, s *slot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			m.release(key, s)
		})
	}
}

func (m *Memory) acquire(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *Memory) release(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

// size reports how many keys are tracked.
func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

var _ Locker = (*Memory)(nil)
