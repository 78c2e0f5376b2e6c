package engine

import (
	"sync"

	"github.com/roach88/bindform/internal/form"
)

// pushGuard tracks fields the engine is currently pushing into.
//
// A push into a select dispatches a change event so other listeners see
// the new selection. The engine's own listener consults the guard and
// drops that event; otherwise the push would be read back as a user edit
// and committed again:
//
//	SetField("country", "ch") → push select → change event
//	→ commit("country") → Set("country", "ch") (echo)
//
// The guard is separate from the session lock because events are
// dispatched after the lock is released.
//
// Thread-safe: Can be called concurrently.
type pushGuard struct {
	mu     sync.Mutex
	active map[form.Field]int
}

func newPushGuard() *pushGuard {
	return &pushGuard{active: make(map[form.Field]int)}
}

// Enter marks f as being pushed. Calls nest.
func (g *pushGuard) Enter(f form.Field) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active[f]++
}

// Exit undoes one Enter.
func (g *pushGuard) Exit(f form.Field) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[f] <= 1 {
		delete(g.active, f)
		return
	}
	g.active[f]--
}

// Active reports whether f is being pushed.
func (g *pushGuard) Active(f form.Field) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[f] > 0
}

// Size returns the number of fields being pushed.
//
// Used for testing and introspection.
func (g *pushGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}
