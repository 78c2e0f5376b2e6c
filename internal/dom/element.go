package dom

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/roach88/bindform/internal/form"
)

// Element is a named form control. Wrappers are stable: the document
// returns the same *Element for the same node.
type Element struct {
	doc  *Document
	node *html.Node
}

var _ form.Field = (*Element)(nil)

// Name returns the name attribute.
func (e *Element) Name() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.node, "name")
}

// Kind classifies the element.
func (e *Element) Kind() form.Kind {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return kindOf(e.node)
}

func kindOf(n *html.Node) form.Kind {
	switch n.DataAtom {
	case atom.Select:
		if hasAttr(n, "multiple") {
			return form.KindSelectMultiple
		}
		return form.KindSelectOne
	case atom.Input:
		switch strings.ToLower(attr(n, "type")) {
		case "checkbox":
			return form.KindCheckbox
		case "radio":
			return form.KindRadio
		}
	}
	return form.KindText
}

// Value returns the element's current value.
func (e *Element) Value() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.valueLocked()
}

func (e *Element) valueLocked() string {
	switch e.node.DataAtom {
	case atom.Textarea:
		return textContent(e.node)
	case atom.Select:
		opts := options(e.node)
		for _, o := range opts {
			if hasAttr(o, "selected") {
				return optionValue(o)
			}
		}
		// A single select with nothing marked selected shows its first option.
		if !hasAttr(e.node, "multiple") && len(opts) > 0 {
			return optionValue(opts[0])
		}
		return ""
	case atom.Input:
		v, ok := attrOK(e.node, "value")
		if !ok && kindOf(e.node) == form.KindCheckbox {
			return "on"
		}
		return v
	}
	return ""
}

// SetValue writes the element's value. For a select, the option with a
// matching value becomes the only selected one; no match clears the
// selection.
func (e *Element) SetValue(v string) {
	e.doc.mu.Lock()
	changed := e.setValueLocked(v)
	e.doc.mu.Unlock()
	e.emitAttr(changed)
}

func (e *Element) setValueLocked(v string) []string {
	switch e.node.DataAtom {
	case atom.Textarea:
		if textContent(e.node) == v {
			return nil
		}
		for c := e.node.FirstChild; c != nil; {
			next := c.NextSibling
			e.node.RemoveChild(c)
			c = next
		}
		e.node.AppendChild(&html.Node{Type: html.TextNode, Data: v})
		return []string{"value"}
	case atom.Select:
		return e.selectLocked([]string{v}, false)
	default:
		if cur, ok := attrOK(e.node, "value"); ok && cur == v {
			return nil
		}
		setAttr(e.node, "value", v)
		return []string{"value"}
	}
}

// Values returns the explicitly selected option values of a select, or
// the single value of any other element. Unlike Value, a single select
// with nothing selected yields an empty list.
func (e *Element) Values() []string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	if e.node.DataAtom != atom.Select {
		return []string{e.valueLocked()}
	}
	multiple := hasAttr(e.node, "multiple")
	out := []string{}
	for _, o := range options(e.node) {
		if hasAttr(o, "selected") {
			out = append(out, optionValue(o))
			if !multiple {
				break
			}
		}
	}
	return out
}

// SetValues selects exactly the options whose value is in vs. For a
// single select only the first match is selected. Other elements take
// the first value.
func (e *Element) SetValues(vs []string) {
	e.doc.mu.Lock()
	var changed []string
	if e.node.DataAtom == atom.Select {
		changed = e.selectLocked(vs, hasAttr(e.node, "multiple"))
	} else {
		v := ""
		if len(vs) > 0 {
			v = vs[0]
		}
		changed = e.setValueLocked(v)
	}
	e.doc.mu.Unlock()
	e.emitAttr(changed)
}

func (e *Element) selectLocked(vs []string, multiple bool) []string {
	var changed []string
	picked := false
	for _, o := range options(e.node) {
		want := slices.Contains(vs, optionValue(o))
		if want && !multiple {
			want = !picked
			picked = picked || want
		}
		if want != hasAttr(o, "selected") {
			if want {
				setAttr(o, "selected", "")
			} else {
				removeAttr(o, "selected")
			}
			changed = append(changed, "selected")
		}
	}
	return changed
}

// Checked reports the checked attribute.
func (e *Element) Checked() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return hasAttr(e.node, "checked")
}

// SetChecked sets the checked state. Checking a radio unchecks the other
// radios of its group in the same form.
func (e *Element) SetChecked(on bool) {
	e.doc.mu.Lock()
	var changed []string
	if on != hasAttr(e.node, "checked") {
		if on {
			setAttr(e.node, "checked", "")
		} else {
			removeAttr(e.node, "checked")
		}
		changed = append(changed, "checked")
	}
	var others []*Element
	if on && kindOf(e.node) == form.KindRadio {
		name := attr(e.node, "name")
		walk(e.doc.form, func(n *html.Node) {
			if n != e.node && n.DataAtom == atom.Input && kindOf(n) == form.KindRadio &&
				attr(n, "name") == name && hasAttr(n, "checked") {
				removeAttr(n, "checked")
				others = append(others, e.doc.elementLocked(n))
			}
		})
	}
	e.doc.mu.Unlock()

	e.emitAttr(changed)
	for _, o := range others {
		o.emitAttr([]string{"checked"})
	}
}

// SetDisabled toggles the disabled attribute.
func (e *Element) SetDisabled(on bool) {
	e.doc.mu.Lock()
	var changed []string
	if on != hasAttr(e.node, "disabled") {
		if on {
			setAttr(e.node, "disabled", "")
		} else {
			removeAttr(e.node, "disabled")
		}
		changed = append(changed, "disabled")
	}
	e.doc.mu.Unlock()
	e.emitAttr(changed)
}

// Disabled reports the disabled attribute.
func (e *Element) Disabled() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return hasAttr(e.node, "disabled")
}

// HasClass reports whether class is in the class attribute.
func (e *Element) HasClass(class string) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return slices.Contains(strings.Fields(attr(e.node, "class")), class)
}

// ToggleClass adds or removes class.
func (e *Element) ToggleClass(class string, on bool) {
	e.doc.mu.Lock()
	classes := strings.Fields(attr(e.node, "class"))
	has := slices.Contains(classes, class)
	var changed []string
	switch {
	case on && !has:
		classes = append(classes, class)
		changed = []string{"class"}
	case !on && has:
		classes = slices.DeleteFunc(classes, func(c string) bool { return c == class })
		changed = []string{"class"}
	}
	if changed != nil {
		if len(classes) == 0 {
			removeAttr(e.node, "class")
		} else {
			setAttr(e.node, "class", strings.Join(classes, " "))
		}
	}
	e.doc.mu.Unlock()
	e.emitAttr(changed)
}

// On subscribes h to this element's events.
func (e *Element) On(h form.Handler) func() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	l := &listener{h: h}
	e.doc.listeners[e.node] = append(e.doc.listeners[e.node], l)
	return func() {
		e.doc.mu.Lock()
		defer e.doc.mu.Unlock()
		rest := removePtr(e.doc.listeners[e.node], l)
		if len(rest) == 0 {
			delete(e.doc.listeners, e.node)
			return
		}
		e.doc.listeners[e.node] = rest
	}
}

// Trigger dispatches an event to this element's listeners.
func (e *Element) Trigger(t form.EventType) {
	e.doc.mu.Lock()
	ls := append([]*listener(nil), e.doc.listeners[e.node]...)
	e.doc.mu.Unlock()

	ev := form.Event{Type: t, Field: e}
	for _, l := range ls {
		l.h(ev)
	}
}

func (e *Element) emitAttr(changed []string) {
	if len(changed) == 0 {
		return
	}
	recs := make([]form.Mutation, 0, len(changed))
	for _, a := range changed {
		recs = append(recs, form.Mutation{Kind: form.MutationAttributes, Target: e.node.Data, Attribute: a})
	}
	e.doc.notify(recs)
}
