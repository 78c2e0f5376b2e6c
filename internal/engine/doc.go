// Package engine implements two-way binding between an object and the
// fields of a form.
//
// A Registry binds a form.Form to an ir.Object and returns a Session.
// The session keeps the two sides in sync:
//
// Object to fields (refresh):
// Every bound field is resolved by its name as a dotted path, validated,
// and pushed by kind (checked state, radio membership, selection, value).
// Fields already showing the target state are left untouched.
//
// Fields to object (commit):
// Field input and change events are debounced per path. When a path goes
// quiet the field is read, validated and written through objpath.Set.
// Only a write that changed the object fires hooks and schedules history.
//
// External writes:
// SetField and Import are the only way to change the object from
// outside. Both push the affected fields and schedule history.
//
// LOOP PREVENTION:
//
// Pushing into a field never produces a commit. Value writes raise no
// field events; the change event a select push dispatches is dropped by
// the push guard. Combined with the equality gate of objpath.Set and the
// debounced snapshot, one logical change yields one history entry.
//
// CONCURRENCY:
//
// Timers fire on their own goroutines, so each session serializes its
// work under one mutex. Hooks are queued while the mutex is held and run
// after it is released, in order, so they may call back into the session.
package engine
