package engine

import "sync"

// effectQueue is a FIFO of deferred effects: hook calls and field events
// raised while the session lock is held.
//
// Effects are enqueued under the session lock and drained after it is
// released, so an effect may call back into the session. Only one
// goroutine drains at a time; effects enqueued by a running effect (or by
// another goroutine meanwhile) are picked up by the active drainer, which
// keeps dispatch in enqueue order and bounds recursion.
type effectQueue struct {
	mu       sync.Mutex
	effects  []func()
	draining bool
}

func newEffectQueue() *effectQueue {
	return &effectQueue{effects: make([]func(), 0, 8)}
}

// Enqueue adds an effect to the back of the queue.
// Thread-safe: may be called from any goroutine.
func (q *effectQueue) Enqueue(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.effects = append(q.effects, fn)
}

// Drain runs queued effects in order until the queue is empty. Returns
// immediately when another drain is in progress.
func (q *effectQueue) Drain() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			q.mu.Lock()
			q.draining = false
			q.mu.Unlock()
			panic(r)
		}
	}()

	for {
		fn, ok := q.next()
		if !ok {
			return
		}
		fn()
	}
}

// next pops the front effect, or ends the drain when the queue is empty.
func (q *effectQueue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.effects) == 0 {
		q.draining = false
		return nil, false
	}
	fn := q.effects[0]

	// Nil out the slot so the closure can be collected.
	q.effects[0] = nil
	if len(q.effects) == 1 {
		q.effects = q.effects[:0]
	} else {
		q.effects = q.effects[1:]
	}
	return fn, true
}

// Len returns the number of queued effects.
func (q *effectQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.effects)
}
