package objpath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/bindform/internal/ir"
)

// ErrInvalidArgument is returned for a nil root, an empty path, or a
// path with an empty segment ("a..b").
var ErrInvalidArgument = errors.New("invalid argument")

// Split splits a dotted path into segments and rejects empty segments.
func Split(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidArgument)
	}
	segs := strings.Split(path, ".")
	for i, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("%w: empty segment %d in path %q", ErrInvalidArgument, i, path)
		}
	}
	return segs, nil
}

// Get returns the value at path and whether it exists. A missing or
// non-object intermediate yields (nil, false). Get never panics.
func Get(root ir.Object, path string) (ir.Value, bool) {
	if root == nil || path == "" {
		return nil, false
	}

	cur := root
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		v, ok := cur[seg]
		if !ok {
			return nil, false
		}
		if i == len(segs)-1 {
			return v, true
		}
		next, isObj := v.(ir.Object)
		if !isObj {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// Set writes v at path, creating an empty Object for every missing or
// non-object intermediate. The final segment is written only when v
// differs from the current value (ir.Equal). Returns whether a write
// happened.
func Set(root ir.Object, path string, v ir.Value) (bool, error) {
	if root == nil {
		return false, fmt.Errorf("%w: nil root", ErrInvalidArgument)
	}
	segs, err := Split(path)
	if err != nil {
		return false, err
	}
	if v == nil {
		v = ir.Null{}
	}

	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(ir.Object)
		if !ok || next == nil {
			next = ir.Object{}
			cur[seg] = next
		}
		cur = next
	}

	last := segs[len(segs)-1]
	if old, ok := cur[last]; ok && ir.Equal(old, v) {
		return false, nil
	}
	cur[last] = ir.Clone(v)
	return true, nil
}

// Within reports whether path equals prefix or lies below it
// ("a.b" is within "a", "ab" is not).
func Within(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+".")
}
