// Package clock is the timer service shared by the classifier, the actuator
// and the channel client. In production it runs on clockwork.NewRealClock();
// tests drive it with a clockwork.FakeClock.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
	After(d time.Duration) <-chan time.Time
}

// Real returns the wall clock.
func Real() Clock {
	return clockwork.NewRealClock()
}

// Timer is a cancellable one-shot callback.
type Timer struct {
	timer clockwork.Timer
	done  chan struct{}
	once  sync.Once
}

// Schedule runs fn on its own goroutine once d has elapsed on c, unless the
// returned Timer is cancelled first.
func Schedule(c Clock, d time.Duration, fn func()) *Timer {
	t := &Timer{
		timer: c.NewTimer(d),
		done:  make(chan struct{}),
	}

	go func() {
		select {
		case <-t.timer.Chan():
			fn()
		case <-t.done:
		}
	}()

	return t
}

// Cancel stops the timer. It reports whether the call stopped the timer
// before it fired. Safe to call more than once and on a nil Timer.
func (t *Timer) Cancel() bool {
	if t == nil {
		return false
	}
	stopped := stopAndDrainTimer(t.timer)
	t.once.Do(func() { close(t.done) })
	return stopped
}

// stopAndDrainTimer stops a timer and drains its channel so a late firing
// cannot be observed by the waiting goroutine.
func stopAndDrainTimer(timer clockwork.Timer) bool {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
		return false
	}
	return true
}
