// Package form defines the contract between the sync engine and a form
// document: fields with values, events, and structural mutations.
//
// The engine depends only on these interfaces. internal/dom provides an
// in-memory implementation over golang.org/x/net/html.
package form

import "context"

// Kind classifies a field by how its value is read and written.
type Kind string

const (
	KindText           Kind = "text"
	KindCheckbox       Kind = "checkbox"
	KindRadio          Kind = "radio"
	KindSelectOne      Kind = "select-one"
	KindSelectMultiple Kind = "select-multiple"
)

// EventType is a field event name.
type EventType string

const (
	EventInput  EventType = "input"
	EventChange EventType = "change"
)

// Event is delivered to field listeners.
type Event struct {
	Type  EventType
	Field Field
}

// Handler receives field events.
type Handler func(Event)

// Field is one named input element. Name is the bound path.
type Field interface {
	Name() string
	Kind() Kind

	// Value is the raw value attribute (text, radio option, first
	// selected option).
	Value() string
	SetValue(v string)

	// Values lists the explicitly selected options of a select; other
	// kinds return a one-element list with Value().
	Values() []string
	SetValues(vs []string)

	Checked() bool
	SetChecked(on bool)

	SetDisabled(on bool)
	HasClass(class string) bool
	ToggleClass(class string, on bool)

	// On subscribes to input and change events. The returned func
	// unsubscribes.
	On(h Handler) (off func())

	// Trigger dispatches an event to the field's listeners.
	Trigger(t EventType)
}

// MutationKind classifies a structural change.
type MutationKind string

const (
	MutationChildList     MutationKind = "childList"
	MutationAttributes    MutationKind = "attributes"
	MutationCharacterData MutationKind = "characterData"
)

// Node summarizes an element added or removed by a mutation.
type Node struct {
	Tag string
	// Named reports whether the element or one of its descendants
	// carries a name attribute.
	Named bool
}

// Mutation is one structural change record.
type Mutation struct {
	Kind      MutationKind
	Target    string // tag of the mutated element
	Attribute string // set for attribute mutations
	Added     []Node
	Removed   []Node
}

// Form is a form document.
type Form interface {
	// ID identifies the form; history is keyed by it.
	ID() string

	// Fields returns every named input element in document order.
	Fields() []Field

	// OnSubmit registers a submit handler. The returned func removes it.
	OnSubmit(h func(ctx context.Context)) (off func())

	// Observe registers a mutation callback receiving batches of records.
	// The returned func disconnects it.
	Observe(fn func([]Mutation)) (disconnect func())
}
