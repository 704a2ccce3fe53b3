package ir

import (
	"cmp"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a sealed interface over the two field kinds a record can carry.
// Only String and Number implement it, so type switches over Value are
// exhaustive.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// String is the value of an s-field (e.g. dept, title, address).
type String string

func (String) irValue() {}

// Number is the value of an m-field (e.g. avg, year, seats, lat).
type Number float64

func (Number) irValue() {}

// Float returns the number as a float64.
func (n Number) Float() float64 {
	return float64(n)
}

// MarshalJSON renders integral numbers without a fractional part, so an
// average of 85 encodes as 85 rather than 85.0.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(n), 'f', -1, 64)), nil
}

// FromAny converts a decoded JSON or msgpack scalar into a Value.
//
// Strings become String; every numeric Go type (including json.Number)
// becomes Number. Anything else (bool, null, arrays, objects) has no place
// in a flat record and is rejected.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case float64:
		return Number(val), nil
	case float32:
		return Number(val), nil
	case int:
		return Number(val), nil
	case int8:
		return Number(val), nil
	case int16:
		return Number(val), nil
	case int32:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case uint:
		return Number(val), nil
	case uint8:
		return Number(val), nil
	case uint16:
		return Number(val), nil
	case uint32:
		return Number(val), nil
	case uint64:
		return Number(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return Number(f), nil
	case nil:
		return nil, fmt.Errorf("null is not a field value")
	default:
		return nil, fmt.Errorf("unsupported field value type: %T", v)
	}
}

// ToAny converts a Value back into a plain Go scalar (string or float64).
// Used at serialization boundaries that do not know about Value.
func ToAny(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Number:
		return float64(val)
	default:
		return nil
	}
}

// Compare orders two values. Numbers compare numerically, strings compare
// by byte order, and every Number sorts before every String.
//
// Locale-aware string ordering lives in the project package; this is the
// deterministic fallback used where no collator is involved.
func Compare(a, b Value) int {
	switch av := a.(type) {
	case Number:
		if bv, ok := b.(Number); ok {
			return cmp.Compare(av, bv)
		}
		return -1
	case String:
		if bv, ok := b.(String); ok {
			return cmp.Compare(av, bv)
		}
		return 1
	default:
		return 0
	}
}
