package store

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/schema"
)

// marshalFields encodes a record's field bag as MessagePack.
// Map keys are sorted so equal records encode to equal bytes.
func marshalFields(fields map[string]ir.Value) ([]byte, error) {
	plain := make(map[string]any, len(fields))
	for k, v := range fields {
		plain[k] = ir.ToAny(v)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(plain); err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	return buf.Bytes(), nil
}

// unmarshalFields decodes a MessagePack field bag.
func unmarshalFields(data []byte) (map[string]ir.Value, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("unmarshal fields: empty data")
	}

	var plain map[string]any
	if err := msgpack.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}

	fields := make(map[string]ir.Value, len(plain))
	for k, raw := range plain {
		v, err := ir.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("unmarshal fields: field %q: %w", k, err)
		}
		fields[k] = v
	}
	return fields, nil
}

// checkRecord verifies that a record carries exactly the fields of its
// kind's schema, each with the right value kind.
func checkRecord(s schema.Schema, r ir.Record) error {
	if len(r.Fields) != len(s.MFields)+len(s.SFields) {
		return fmt.Errorf("%w: has %d fields, %s records have %d",
			ErrInvalidRecord, len(r.Fields), s.Kind, len(s.MFields)+len(s.SFields))
	}
	for _, f := range s.MFields {
		v, ok := r.Fields[f]
		if !ok {
			return fmt.Errorf("%w: missing field %q", ErrInvalidRecord, f)
		}
		if _, ok := v.(ir.Number); !ok {
			return fmt.Errorf("%w: field %q must be a number", ErrInvalidRecord, f)
		}
	}
	for _, f := range s.SFields {
		v, ok := r.Fields[f]
		if !ok {
			return fmt.Errorf("%w: missing field %q", ErrInvalidRecord, f)
		}
		if _, ok := v.(ir.String); !ok {
			return fmt.Errorf("%w: field %q must be a string", ErrInvalidRecord, f)
		}
	}
	return nil
}
