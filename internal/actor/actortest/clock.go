// Package actortest contains test helpers for actor-based packages.
package actortest

import (
	"sync"
	"time"

	"github.com/observerhq/observer/internal/actor"
)

// FakeClock is a deterministic Clock for tests. Timers scheduled with
// AfterFunc fire only when Advance or Set moves the clock past their
// deadline, on the advancing goroutine.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

var _ actor.Clock = (*FakeClock)(nil)

// NewFakeClock returns a FakeClock starting at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements actor.Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc implements actor.Clock.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) actor.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Set sets the current clock time, firing any timers now due.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
	c.fireDue()
}

// Advance moves time forward by d, firing any timers now due in deadline
// order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	c.fireDue()
}

// PendingTimers reports how many scheduled timers have not yet fired.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// fireDue pops and runs due timers one at a time so a callback that
// schedules a new, already-due timer is picked up in the same pass.
func (c *FakeClock) fireDue() {
	for {
		c.mu.Lock()
		idx := -1
		for i, t := range c.timers {
			if t.when.After(c.now) {
				continue
			}
			if idx == -1 || t.when.Before(c.timers[idx].when) {
				idx = i
			}
		}
		if idx == -1 {
			c.mu.Unlock()
			return
		}
		t := c.timers[idx]
		c.timers = append(c.timers[:idx], c.timers[idx+1:]...)
		c.mu.Unlock()
		t.fn()
	}
}

type fakeTimer struct {
	clock *FakeClock
	when  time.Time
	fn    func()
}

func (t *fakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, pending := range c.timers {
		if pending == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}
