package actor

import "time"

// Clock provides a testable time source and timer scheduler.
//
// Reducers remain deterministic and must not call a Clock directly; runtimes
// read the Clock and inject timestamps via inputs.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules f to run once d has elapsed on this clock's
	// timeline. f runs on an unspecified goroutine.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc callback. Stop reports whether it prevented
// the callback from running.
type Timer interface {
	Stop() bool
}

// RealClock is the production Clock backed by the time package.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
