// Package debounce delays an action until input has been quiet for a fixed interval.
package debounce

import (
	"sync"
	"time"
)

// Timer is the handle returned by a Scheduler.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler is backed by time.AfterFunc.
var RealScheduler Scheduler = realScheduler{}

// Option customises a Debouncer.
type Option func(*Debouncer)

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(d *Debouncer) {
		if s != nil {
			d.scheduler = s
		}
	}
}

// Debouncer runs only the most recently triggered action, once delay has elapsed
// without another Trigger. Stopping a timer can race with its firing, so each trigger
// carries a generation and stale firings are dropped.
type Debouncer struct {
	delay     time.Duration
	scheduler Scheduler

	mu         sync.Mutex
	timer      Timer
	generation uint64
	closed     bool
}

// New returns a Debouncer with the given quiet interval.
func New(delay time.Duration, opts ...Option) *Debouncer {
	d := &Debouncer{delay: delay, scheduler: RealScheduler}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Delay reports the quiet interval.
func (d *Debouncer) Delay() time.Duration { return d.delay }

// Trigger schedules fn, replacing any pending action.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.generation++
	gen := d.generation
	d.timer = d.scheduler.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := gen == d.generation && !d.closed
		if current {
			d.timer = nil
		}
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Cancel drops any pending action.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Pending reports whether an action is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Close cancels pending work and ignores future triggers.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.closed = true
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.generation++
}
