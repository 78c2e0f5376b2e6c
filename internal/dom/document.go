// Package dom is an in-memory form document backed by golang.org/x/net/html.
//
// Document implements form.Form and its elements implement form.Field.
// Field state (value, checked, selected, disabled, class) lives in the
// element attributes, so Render always reflects the bound state.
//
// Listener, submit and observer callbacks run on the caller's goroutine
// after the document lock is released; callbacks may call back into the
// document.
package dom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/roach88/bindform/internal/form"
)

// ErrNoForm is returned when the parsed markup contains no <form>.
var ErrNoForm = errors.New("dom: no <form> element")

type listener struct {
	h form.Handler
}

type submitHandler struct {
	fn func(context.Context)
}

type observer struct {
	fn func([]form.Mutation)
}

// Document is a parsed HTML document with one bound <form>.
type Document struct {
	mu        sync.Mutex
	root      *html.Node
	form      *html.Node
	elements  map[*html.Node]*Element
	listeners map[*html.Node][]*listener
	submits   []*submitHandler
	observers []*observer
	policy    *bluemonday.Policy
}

var _ form.Form = (*Document)(nil)

// Parse reads markup and binds the first <form> element.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	f := findFirst(root, func(n *html.Node) bool { return n.Type == html.ElementNode && n.DataAtom == atom.Form })
	if f == nil {
		return nil, ErrNoForm
	}
	return &Document{
		root:      root,
		form:      f,
		elements:  make(map[*html.Node]*Element),
		listeners: make(map[*html.Node][]*listener),
		policy:    fragmentPolicy(),
	}, nil
}

// ParseString is Parse over a string.
func ParseString(markup string) (*Document, error) {
	return Parse(strings.NewReader(markup))
}

// ID returns the form's id attribute, else its name, else "form".
func (d *Document) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id := attr(d.form, "id"); id != "" {
		return id
	}
	if name := attr(d.form, "name"); name != "" {
		return name
	}
	return "form"
}

// Fields returns every bindable named element inside the form, in
// document order. Buttons are never bindable.
func (d *Document) Fields() []form.Field {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []form.Field
	walk(d.form, func(n *html.Node) {
		if isBindable(n) {
			out = append(out, d.elementLocked(n))
		}
	})
	return out
}

// FieldsNamed returns the fields whose name is exactly name.
func (d *Document) FieldsNamed(name string) []*Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*Element
	walk(d.form, func(n *html.Node) {
		if isBindable(n) && attr(n, "name") == name {
			out = append(out, d.elementLocked(n))
		}
	})
	return out
}

// Field returns the first field named name, or nil.
func (d *Document) Field(name string) *Element {
	fields := d.FieldsNamed(name)
	if len(fields) == 0 {
		return nil
	}
	return fields[0]
}

// OnSubmit registers a submit handler.
func (d *Document) OnSubmit(fn func(context.Context)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &submitHandler{fn: fn}
	d.submits = append(d.submits, s)
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.submits = removePtr(d.submits, s)
	}
}

// Observe registers a mutation callback.
func (d *Document) Observe(fn func([]form.Mutation)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	o := &observer{fn: fn}
	d.observers = append(d.observers, o)
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.observers = removePtr(d.observers, o)
	}
}

// Submit dispatches the form's submit event to registered handlers.
func (d *Document) Submit(ctx context.Context) {
	d.mu.Lock()
	handlers := append([]*submitHandler(nil), d.submits...)
	d.mu.Unlock()

	for _, s := range handlers {
		s.fn(ctx)
	}
}

// ListenerCount returns the number of field listeners attached.
func (d *Document) ListenerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, ls := range d.listeners {
		n += len(ls)
	}
	return n
}

// ObserverCount returns the number of connected mutation observers.
func (d *Document) ObserverCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.observers)
}

// Render writes the whole document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// RenderForm returns the HTML of the form element alone.
func (d *Document) RenderForm() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.form); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// AppendHTML sanitizes fragment, parses it in the form's context and
// appends the resulting nodes to the form. Observers receive one
// child-list record.
func (d *Document) AppendHTML(fragment string) error {
	clean := d.policy.Sanitize(fragment)

	d.mu.Lock()
	nodes, err := html.ParseFragment(strings.NewReader(clean), d.form)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("parse fragment: %w", err)
	}
	added := make([]form.Node, 0, len(nodes))
	for _, n := range nodes {
		d.form.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, summarize(n))
		}
	}
	rec := form.Mutation{Kind: form.MutationChildList, Target: d.form.Data, Added: added}
	d.mu.Unlock()

	d.notify([]form.Mutation{rec})
	return nil
}

// Remove detaches every element named name from the form. Returns the
// number removed.
func (d *Document) Remove(name string) int {
	d.mu.Lock()
	var targets []*html.Node
	walk(d.form, func(n *html.Node) {
		if n.Type == html.ElementNode && attr(n, "name") == name {
			targets = append(targets, n)
		}
	})

	var recs []form.Mutation
	for _, n := range targets {
		parent := n.Parent
		if parent == nil {
			continue
		}
		parent.RemoveChild(n)
		recs = append(recs, form.Mutation{
			Kind:    form.MutationChildList,
			Target:  parent.Data,
			Removed: []form.Node{summarize(n)},
		})
	}
	d.mu.Unlock()

	if len(recs) > 0 {
		d.notify(recs)
	}
	return len(targets)
}

// AppendText appends a text node to the form, producing a child-list
// record without named nodes.
func (d *Document) AppendText(text string) {
	d.mu.Lock()
	d.form.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	d.mu.Unlock()

	d.notify([]form.Mutation{{Kind: form.MutationChildList, Target: d.form.Data}})
}

func (d *Document) notify(recs []form.Mutation) {
	d.mu.Lock()
	obs := append([]*observer(nil), d.observers...)
	d.mu.Unlock()

	for _, o := range obs {
		o.fn(recs)
	}
}

func (d *Document) elementLocked(n *html.Node) *Element {
	if e, ok := d.elements[n]; ok {
		return e
	}
	e := &Element{doc: d, node: n}
	d.elements[n] = e
	return e
}

// isBindable reports whether n is a named input, select or textarea.
func isBindable(n *html.Node) bool {
	if n.Type != html.ElementNode || attr(n, "name") == "" {
		return false
	}
	switch n.DataAtom {
	case atom.Select, atom.Textarea:
		return true
	case atom.Input:
		switch strings.ToLower(attr(n, "type")) {
		case "submit", "button", "reset", "image":
			return false
		}
		return true
	}
	return false
}

func summarize(n *html.Node) form.Node {
	named := false
	walk(n, func(c *html.Node) {
		if c.Type == html.ElementNode && attr(c, "name") != "" {
			named = true
		}
	})
	return form.Node{Tag: n.Data, Named: named}
}

func removePtr[T any](list []*T, target *T) []*T {
	out := list[:0]
	for _, x := range list {
		if x != target {
			out = append(out, x)
		}
	}
	return out
}
