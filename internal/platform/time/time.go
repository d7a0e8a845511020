// Package time contains the injectable clock and time related helpers
package time

import (
	"sync"
	"time"
)

// Clock is the only source of "now" for scheduling decisions
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC
type System struct{}

// Now returns the current UTC time
func (System) Now() time.Time { return time.Now().UTC() }

// Fake is a manually advanced clock for tests and replays
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a fake clock starting at start
func NewFake(start time.Time) *Fake { return &Fake{now: start.UTC()} }

// Now returns the fake time
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}

// Set jumps the clock to t
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}

// Ptr returns a pointer to t or nil if t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Max returns the later of a and b
func Max(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
