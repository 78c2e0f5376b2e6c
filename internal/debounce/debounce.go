// Package debounce provides a trailing-edge debounced function.
//
// A Func collects calls and runs its target once, with the latest
// argument, after the configured delay has passed without another call.
// Each Func owns its timer, so independent sources (one per bound path,
// the field observer, history snapshots) never cancel each other.
package debounce

import (
	"sync"
	"time"

	"github.com/roach88/bindform/internal/clock"
)

// Func is a debounced wrapper around fn.
//
// Thread-safety: all methods are safe for concurrent use. fn runs on the
// clock's timer goroutine without any Func lock held.
type Func[T any] struct {
	clock clock.Clock
	delay time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   clock.Timer
	gen     uint64
	arg     T
	pending bool
	stopped bool
}

// New creates a debounced function. A nil clock uses clock.System().
// A non-positive delay still defers the run to the timer goroutine.
func New[T any](clk clock.Clock, delay time.Duration, fn func(T)) *Func[T] {
	if clk == nil {
		clk = clock.System()
	}
	if delay < 0 {
		delay = 0
	}
	return &Func[T]{clock: clk, delay: delay, fn: fn}
}

// Call (re)starts the quiescence window with arg. A previously pending
// run is dropped; only the latest argument is delivered.
func (f *Func[T]) Call(arg T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return
	}
	if f.timer != nil {
		f.timer.Stop()
	}
	f.gen++
	gen := f.gen
	f.arg = arg
	f.pending = true
	f.timer = f.clock.AfterFunc(f.delay, func() { f.fire(gen) })
}

func (f *Func[T]) fire(gen uint64) {
	f.mu.Lock()
	// A superseded or cancelled timer that lost the Stop race is a no-op.
	if f.stopped || !f.pending || gen != f.gen {
		f.mu.Unlock()
		return
	}
	arg := f.arg
	var zero T
	f.arg = zero
	f.pending = false
	f.timer = nil
	f.mu.Unlock()

	f.fn(arg)
}

// Cancel drops a pending run. Later calls schedule normally.
func (f *Func[T]) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelLocked()
}

func (f *Func[T]) cancelLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.gen++
	f.pending = false
	var zero T
	f.arg = zero
}

// Stop cancels any pending run and disables the function permanently.
// After Stop returns fn is never started again; a run that already
// started completes.
func (f *Func[T]) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelLocked()
	f.stopped = true
}

// Flush runs a pending call immediately on the caller's goroutine.
// Returns false when nothing was pending.
func (f *Func[T]) Flush() bool {
	f.mu.Lock()
	if f.stopped || !f.pending {
		f.mu.Unlock()
		return false
	}
	arg := f.arg
	f.cancelLocked()
	f.mu.Unlock()

	f.fn(arg)
	return true
}

// Pending reports whether a run is scheduled.
func (f *Func[T]) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}
