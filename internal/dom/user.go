package dom

import (
	"fmt"

	"github.com/roach88/bindform/internal/form"
)

// The helpers below act like a user on the page: they change a field
// and dispatch the event a browser would.

// Type replaces the value of the first field named name and fires input.
func (d *Document) Type(name, text string) error {
	f := d.Field(name)
	if f == nil {
		return fmt.Errorf("dom: no field %q", name)
	}
	f.SetValue(text)
	f.Trigger(form.EventInput)
	return nil
}

// Check sets a checkbox named name and fires change. When several
// checkboxes share the name, value picks one ("" takes the first).
func (d *Document) Check(name, value string, on bool) error {
	for _, f := range d.FieldsNamed(name) {
		if f.Kind() != form.KindCheckbox {
			continue
		}
		if value != "" && f.Value() != value {
			continue
		}
		f.SetChecked(on)
		f.Trigger(form.EventChange)
		return nil
	}
	return fmt.Errorf("dom: no checkbox %q", name)
}

// Choose checks the radio of group name whose value is value and fires
// change.
func (d *Document) Choose(name, value string) error {
	for _, f := range d.FieldsNamed(name) {
		if f.Kind() == form.KindRadio && f.Value() == value {
			f.SetChecked(true)
			f.Trigger(form.EventChange)
			return nil
		}
	}
	return fmt.Errorf("dom: no radio %q with value %q", name, value)
}

// Select sets the selection of the select named name and fires change.
func (d *Document) Select(name string, values ...string) error {
	for _, f := range d.FieldsNamed(name) {
		k := f.Kind()
		if k != form.KindSelectOne && k != form.KindSelectMultiple {
			continue
		}
		f.SetValues(values)
		f.Trigger(form.EventChange)
		return nil
	}
	return fmt.Errorf("dom: no select %q", name)
}
