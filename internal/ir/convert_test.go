package ir

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...) which sorts before
	// U+FF61 in UTF-16 even though its UTF-8 bytes sort after.
	obj := Object{"\uFF61": Int(1), "\U0001F600": Int(2), "a": Int(3)}
	assert.Equal(t, []string{"a", "\U0001F600", "\uFF61"}, obj.SortedKeys())
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same string", String("a"), String("a"), true},
		{"int vs string", Int(1), String("1"), false},
		{"bool", Bool(true), Bool(true), true},
		{"nil and null", nil, Null{}, true},
		{"null vs empty string", Null{}, String(""), false},
		{"arrays structural", Strings("a", "b"), Strings("a", "b"), true},
		{"array order matters", Strings("a", "b"), Strings("b", "a"), false},
		{"array length", Strings("a"), Strings("a", "b"), false},
		{"objects structural", Object{"a": Object{"b": Int(1)}}, Object{"a": Object{"b": Int(1)}}, true},
		{"objects differ", Object{"a": Int(1)}, Object{"a": Int(2)}, false},
		{"object missing key", Object{"a": Int(1)}, Object{"b": Int(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a))
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Object{"a": Object{"b": Strings("x")}}
	cp := orig.Clone()

	cp["a"].(Object)["b"].(Array)[0] = String("y")
	cp["a"].(Object)["c"] = Int(1)

	assert.Equal(t, String("x"), orig["a"].(Object)["b"].(Array)[0])
	_, ok := orig["a"].(Object)["c"]
	assert.False(t, ok)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(Null{}))
	assert.False(t, Truthy(Bool(false)))
	assert.False(t, Truthy(Int(0)))
	assert.False(t, Truthy(String("")))
	assert.False(t, Truthy(String("false")))
	assert.True(t, Truthy(Bool(true)))
	assert.True(t, Truthy(Int(3)))
	assert.True(t, Truthy(String("on")))
	assert.True(t, Truthy(Array{}))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(Null{}))
	assert.Equal(t, "abc", Stringify(String("abc")))
	assert.Equal(t, "-7", Stringify(Int(-7)))
	assert.Equal(t, "true", Stringify(Bool(true)))
	assert.Equal(t, "a,b", Stringify(Strings("a", "b")))
	assert.Equal(t, `{"k":1}`, Stringify(Object{"k": Int(1)}))

	assert.Nil(t, StringList(Null{}))
	assert.Equal(t, []string{"x"}, StringList(String("x")))
	assert.Equal(t, []string{"1", "b"}, StringList(Array{Int(1), String("b")}))
}

func TestFromGo(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`{"n": 3, "s": "x", "b": true, "z": null, "l": ["a", 2], "o": {"k": "v"}}`))
	dec.UseNumber()
	var raw map[string]any
	require.NoError(t, dec.Decode(&raw))

	obj, err := ObjectFromGo(raw)
	require.NoError(t, err)

	want := Object{
		"n": Int(3),
		"s": String("x"),
		"b": Bool(true),
		"z": Null{},
		"l": Array{String("a"), Int(2)},
		"o": Object{"k": String("v")},
	}
	assert.True(t, Equal(want, obj))

	back := ToGo(obj).(map[string]any)
	assert.Equal(t, int64(3), back["n"])
	assert.Nil(t, back["z"])
	assert.Equal(t, []any{"a", int64(2)}, back["l"])
}

func TestFromGoNumbers(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"fraction", 1.5, Float(1.5)},
		{"negative fraction", float32(-0.25), Float(-0.25)},
		{"integral float", float64(2), Int(2)},
		{"negative zero", math.Copysign(0, -1), Int(0)},
		{"beyond int64", 1e20, Float(1e20)},
		{"max uint64 fitting", uint64(math.MaxInt64), Int(math.MaxInt64)},
		{"json number", json.Number("1e3"), Int(1000)},
		{"json fraction", json.Number("9.99"), Float(9.99)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromGo(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestFromGoRejectsUnrepresentable(t *testing.T) {
	for _, in := range []any{
		uint64(math.MaxInt64) + 1,
		uint(math.MaxUint64),
		math.NaN(),
		math.Inf(-1),
		struct{}{},
	} {
		_, err := FromGo(in)
		assert.Error(t, err, "%v", in)
	}
}

func TestObjectMarshalJSON(t *testing.T) {
	b, err := json.Marshal(Object{"b": Int(1), "a": String("<x>")})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"\u003cx\u003e","b":1}`, string(b))
}
