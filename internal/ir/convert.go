package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind names a value's JSON type.
type Kind string

const (
	KindNull   Kind = "null"
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindArray  Kind = "array"
	KindObject Kind = "object"
)

// KindOf returns the kind of v. A nil Value reports KindNull.
func KindOf(v Value) Kind {
	switch v.(type) {
	case nil, Null:
		return KindNull
	case String:
		return KindString
	case Int:
		return KindInt
	case Float:
		return KindFloat
	case Bool:
		return KindBool
	case Array:
		return KindArray
	case Object:
		return KindObject
	default:
		return Kind(fmt.Sprintf("%T", v))
	}
}

// IsNull reports whether v is absent or an explicit null.
func IsNull(v Value) bool {
	switch v.(type) {
	case nil, Null:
		return true
	}
	return false
}

// Equal compares two values. Scalars compare strictly (Int(1) != String("1")),
// numbers by value (Int(2) == Float(2)), arrays and objects structurally.
// nil and Null{} are equal.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if x, ok := numeric(a); ok {
		y, ok := numeric(b)
		return ok && x == y
	}

	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, present := bv[k]
			if !present || !Equal(x, y) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone deep-copies composite values. Scalars are returned as is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Array:
		if val == nil {
			return Array(nil)
		}
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Object:
		return val.Clone()
	default:
		return v
	}
}

// Clone deep-copies the object.
func (obj Object) Clone() Object {
	if obj == nil {
		return nil
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = Clone(v)
	}
	return out
}

// Truthy follows form semantics for checkbox state: false, null, 0, NaN,
// "", and "false" are false; everything else is true.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return false
	case Bool:
		return bool(val)
	case Int:
		return val != 0
	case Float:
		return val != 0 && !math.IsNaN(float64(val))
	case String:
		return val != "" && val != "false"
	default:
		return true
	}
}

// Stringify renders v as a field value. Null renders as "".
// Arrays join their elements with commas, objects render as canonical JSON.
func Stringify(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		s, err := formatNumber(float64(val))
		if err != nil {
			return strconv.FormatFloat(float64(val), 'g', -1, 64)
		}
		return s
	case Bool:
		return strconv.FormatBool(bool(val))
	case Array:
		s := ""
		for i, elem := range val {
			if i > 0 {
				s += ","
			}
			s += Stringify(elem)
		}
		return s
	case Object:
		b, err := MarshalCanonical(val)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

// StringList returns the string forms of an array's elements. A scalar
// yields a one-element list and null yields nil.
func StringList(v Value) []string {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Array:
		out := make([]string, len(val))
		for i, elem := range val {
			out[i] = Stringify(elem)
		}
		return out
	default:
		return []string{Stringify(v)}
	}
}

// FromGo converts plain Go values (as produced by yaml.v3 or
// encoding/json with UseNumber) into a Value. Integral floats become
// Int; NaN, infinities and integers beyond int64 are rejected.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return fromUint(uint64(val))
	case uint64:
		return fromUint(val)
	case float32:
		return fromFloat(float64(val))
	case float64:
		return fromFloat(val)
	case json.Number:
		return parseNumber(val.String())
	case []string:
		return Strings(val...), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			x, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = x
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			x, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = x
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func fromUint(v uint64) (Value, error) {
	if v > math.MaxInt64 {
		return nil, fmt.Errorf("number out of int64 range: %d", v)
	}
	return Int(int64(v)), nil
}

func fromFloat(v float64) (Value, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("number is not finite: %v", v)
	}
	return Number(v), nil
}

// ObjectFromGo is FromGo for a map. A nil map yields an empty Object.
func ObjectFromGo(m map[string]any) (Object, error) {
	if m == nil {
		return Object{}, nil
	}
	v, err := FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(Object), nil
}

// ToGo converts a Value into plain Go values (string, int64, float64,
// bool, nil, []any, map[string]any). Used to hand values to CUE and to templates.
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}
