package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// EncodeTuple produces a canonical, collision-free encoding of a tuple of
// values, used as a composite GroupKey.
//
// The encoding is a JSON array: strings are quoted byte for byte, numbers
// use the shortest round-trip decimal form. Because every element is
// self-delimiting, no field value can forge a separator, so
// ["a,b"] and ["a", "b"] never collide, and neither do String("1") and
// Number(1).
func EncodeTuple(vals []Value) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalCanonical(v)
		if err != nil {
			return "", fmt.Errorf("tuple[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

// MarshalCanonical produces the canonical encoding of a single value.
func MarshalCanonical(v Value) ([]byte, error) {
	return marshalCanonical(v)
}

func marshalCanonical(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return marshalCanonicalString(string(val))
	case Number:
		return []byte(strconv.FormatFloat(float64(val), 'g', -1, 64)), nil
	case nil:
		return nil, fmt.Errorf("missing value")
	default:
		return nil, fmt.Errorf("unsupported type for canonical encoding: %T", v)
	}
}

// marshalCanonicalString quotes s without HTML escaping. No Unicode
// normalization is applied: two strings share a key only when their bytes
// are equal, the same equality IS matching uses.
func marshalCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
