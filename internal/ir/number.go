package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Float is a number that Int cannot hold: a non-integral value, or an
// integral one outside the int64 range. Build numbers with Number so an
// integral float becomes an Int and every number has one representation.
type Float float64

func (Float) irValue() {}

// Number returns v as an Int when it is integral and fits in int64,
// and as a Float otherwise. -0 becomes Int(0).
func Number(v float64) Value {
	if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
		return Int(int64(v))
	}
	return Float(v)
}

// parseNumber decodes a JSON number literal. Integer literals that fit
// in int64 decode exactly; everything else goes through float64 and
// Number.
func parseNumber(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := json.Number(s).Float64()
	if err != nil {
		return nil, fmt.Errorf("number out of range: %s", s)
	}
	return Number(f), nil
}

// formatNumber renders f the way RFC 8785 (ECMAScript Number.toString)
// does: shortest round-trip digits, plain notation in [1e-6, 1e21),
// exponent notation without leading zeros outside it.
func formatNumber(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("number is not finite: %v", f)
	}
	if f == 0 {
		return "0", nil
	}
	sign := ""
	if f < 0 {
		f = -f
		sign = "-"
	}
	format := byte('e')
	if f >= 1e-6 && f < 1e21 {
		format = 'f'
	}
	s := strconv.FormatFloat(f, format, -1, 64)
	if i := strings.IndexByte(s, 'e'); i > 0 && s[i+2] == '0' {
		s = s[:i+2] + s[i+3:]
	}
	return sign + s, nil
}

// numeric returns the float value of an Int or Float.
func numeric(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	}
	return 0, false
}
