// Package clock abstracts wall time and timers so that debouncing,
// history guards and autosave can run on a fake clock in tests.
package clock

import "time"

// Clock supplies the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback. Stop reports whether it prevented the
// callback from running.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

// System returns the real clock backed by package time.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Ticker calls f every interval until the returned Timer is stopped.
// It is built from AfterFunc so fake clocks drive it too.
func Ticker(c Clock, interval time.Duration, f func()) Timer {
	t := &ticker{clock: c, interval: interval, fn: f}
	t.schedule()
	return t
}
