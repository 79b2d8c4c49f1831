package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface over the values that may appear in a data or
// init card. Only Real, Int, String, Vector, IntArray, Tuple and Object
// implement it.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Real is a scalar real.
type Real float64

func (Real) irValue() {}

// Int is a scalar integer.
type Int int64

func (Int) irValue() {}

// String is a string value. Cards never contain strings; String exists for
// hashing structured keys.
type String string

func (String) irValue() {}

// Vector is a Stan vector.
type Vector []float64

func (Vector) irValue() {}

// IntArray is a Stan int array (observed counts).
type IntArray []int64

func (IntArray) irValue() {}

// Tuple is a Stan two-element tuple. It serializes as {"1": a, "2": b}.
type Tuple [2]Value

func (Tuple) irValue() {}

// Object maps string keys to values. Use SortedKeys for deterministic
// iteration.
type Object map[string]Value

func (Object) irValue() {}

// Pair builds a Tuple from two scalars.
func Pair(a, b float64) Tuple {
	return Tuple{Real(a), Real(b)}
}

// VectorPair builds a Tuple of two vectors.
func VectorPair(a, b []float64) Tuple {
	return Tuple{Vector(a), Vector(b)}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 which produces a different order outside the
// BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// MarshalJSON implements json.Marshaler with sorted keys.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for hashing.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for Tuple.
func (t Tuple) MarshalJSON() ([]byte, error) {
	return Object{"1": t[0], "2": t[1]}.MarshalJSON()
}

// MarshalJSON implements json.Marshaler for Real, rejecting NaN and Inf.
func (r Real) MarshalJSON() ([]byte, error) {
	return formatFloat(float64(r))
}

// MarshalJSON implements json.Marshaler for Vector. A nil vector encodes as
// an empty array so zero-length data stays well-formed.
func (v Vector) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := formatFloat(f)
		if err != nil {
			return nil, fmt.Errorf("vector[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for IntArray.
func (a IntArray) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, n := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.FormatInt(n, 10))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalValue marshals a Value to JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Real:
		return val.MarshalJSON()
	case Int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case String:
		return json.Marshal(string(val))
	case Vector:
		return val.MarshalJSON()
	case IntArray:
		return val.MarshalJSON()
	case Tuple:
		return val.MarshalJSON()
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// formatFloat renders a finite float in the shortest form that round-trips.
// Negative zero is written as 0.
func formatFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v cannot be encoded", f)
	}
	if f == 0 {
		return []byte("0"), nil
	}
	return json.Marshal(f)
}

// Equal reports whether two values are structurally identical.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Real:
		y, ok := b.(Real)
		return ok && x == y
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Vector:
		y, ok := b.(Vector)
		return ok && slices.Equal(x, y)
	case IntArray:
		y, ok := b.(IntArray)
		return ok && slices.Equal(x, y)
	case Tuple:
		y, ok := b.(Tuple)
		return ok && Equal(x[0], y[0]) && Equal(x[1], y[1])
	case Object:
		y, ok := b.(Object)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	}
	return false
}
