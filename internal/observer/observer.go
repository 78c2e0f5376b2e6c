// Package observer watches a form for structural changes and schedules a
// debounced rescan of its field set.
//
// Only child-list mutations that add or remove an element carrying a
// name attribute (on itself or in its subtree) are relevant. Attribute and
// character-data churn, including the attribute writes the sync engine
// makes while pushing values, never trigger a rescan.
package observer

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/bindform/internal/clock"
	"github.com/roach88/bindform/internal/debounce"
	"github.com/roach88/bindform/internal/form"
)

// DefaultDelay is the rescan debounce window.
const DefaultDelay = 200 * time.Millisecond

// Config for creating an Observer.
type Config struct {
	Form   form.Form
	Clock  clock.Clock
	Delay  time.Duration
	Rescan func()
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Clock == nil {
		c.Clock = clock.System()
	}
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Observer is connected to one form.
type Observer struct {
	formID     string
	logger     *slog.Logger
	rescan     *debounce.Func[struct{}]
	disconnect func()

	batches  atomic.Uint64
	relevant atomic.Uint64
	stopped  atomic.Bool
}

// New connects an observer to cfg.Form.
func New(cfg Config) *Observer {
	cfg.defaults()
	o := &Observer{
		formID: cfg.Form.ID(),
		logger: cfg.Logger,
	}
	rescan := cfg.Rescan
	o.rescan = debounce.New(cfg.Clock, cfg.Delay, func(struct{}) {
		o.logger.Debug("field set rescan", "form", o.formID)
		rescan()
	})
	o.disconnect = cfg.Form.Observe(o.handle)
	return o
}

func (o *Observer) handle(batch []form.Mutation) {
	if o.stopped.Load() {
		return
	}
	o.batches.Add(1)
	if !Relevant(batch) {
		return
	}
	o.relevant.Add(1)
	o.rescan.Call(struct{}{})
}

// Relevant reports whether batch adds or removes a named element.
func Relevant(batch []form.Mutation) bool {
	for _, m := range batch {
		if m.Kind != form.MutationChildList {
			continue
		}
		for _, n := range m.Added {
			if n.Named {
				return true
			}
		}
		for _, n := range m.Removed {
			if n.Named {
				return true
			}
		}
	}
	return false
}

// Pending reports whether a rescan is scheduled.
func (o *Observer) Pending() bool {
	return o.rescan.Pending()
}

// Flush runs a scheduled rescan now. Returns false when none was pending.
func (o *Observer) Flush() bool {
	return o.rescan.Flush()
}

// Stats returns the number of batches seen and how many were relevant.
func (o *Observer) Stats() (batches, relevant uint64) {
	return o.batches.Load(), o.relevant.Load()
}

// Stop disconnects from the form and drops any scheduled rescan. Safe to
// call more than once.
func (o *Observer) Stop() {
	if o.stopped.Swap(true) {
		return
	}
	o.disconnect()
	o.rescan.Stop()
}
