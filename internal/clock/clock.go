// Package clock supplies the current time in Unix milliseconds.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time in Unix milliseconds.
type Clock interface {
	NowMs() int64
}

// System reads the wall clock.
type System struct{}

// NowMs implements Clock.
func (System) NowMs() int64 {
	return time.Now().UnixMilli()
}

// Manual is a settable clock for tests and replays. It never moves backwards.
type Manual struct {
	mu  sync.Mutex
	now int64
}

// NewManual starts a manual clock at now.
func NewManual(now int64) *Manual {
	return &Manual{now: now}
}

// NowMs implements Clock.
func (m *Manual) NowMs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d.Milliseconds()
}

// Set moves the clock to now if it is not earlier than the current time.
func (m *Manual) Set(now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now > m.now {
		m.now = now
	}
}
