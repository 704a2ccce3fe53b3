package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/xeipuuv/gojsonschema"

	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/schema"
)

// roomsSchema describes a rooms file: an array of objects carrying every
// rooms field with its kind.
const roomsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["fullname", "shortname", "number", "name", "address",
                 "lat", "lon", "seats", "type", "furniture", "href"],
    "properties": {
      "fullname":  {"type": "string"},
      "shortname": {"type": "string"},
      "number":    {"type": "string"},
      "name":      {"type": "string"},
      "address":   {"type": "string"},
      "lat":       {"type": "number"},
      "lon":       {"type": "number"},
      "seats":     {"type": "integer", "minimum": 0},
      "type":      {"type": "string"},
      "furniture": {"type": "string"},
      "href":      {"type": "string"}
    }
  }
}`

// compiledRoomsSchema is built once; a failure is a programming error.
var compiledRoomsSchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(roomsSchema))
	if err != nil {
		panic(fmt.Sprintf("rooms schema: %v", err))
	}
	return s
}()

// World is the valid range for room coordinates.
var World = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// Rooms parses a rooms file.
//
// The whole document must satisfy the rooms JSON schema; a violation
// rejects the file. Rooms whose coordinates fall outside World are skipped.
func (in *Ingester) Rooms(ctx context.Context, datasetID string, r io.Reader) ([]ir.Record, Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Report{}, &Error{Kind: schema.KindRooms, Source: "rooms file", Reason: "read", Err: err}
	}

	result, err := compiledRoomsSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, Report{}, &Error{Kind: schema.KindRooms, Source: "rooms file", Reason: "not valid JSON", Err: err}
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return nil, Report{}, &Error{
			Kind:   schema.KindRooms,
			Source: "rooms file",
			Reason: "schema violation: " + strings.Join(errs, "; "),
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, Report{}, &Error{Kind: schema.KindRooms, Source: "rooms file", Reason: "decode", Err: err}
	}

	var (
		rep     Report
		records []ir.Record
	)
	for i, obj := range raw {
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		rec, err := roomRecord(datasetID, obj)
		if err != nil {
			in.logger.Debug("room skipped", "index", i, "error", err)
			rep.Skipped++
			continue
		}
		records = append(records, rec)
	}

	in.logger.Info("rooms parsed", "dataset", datasetID, "rooms", len(records), "skipped", rep.Skipped)
	return finish(schema.KindRooms, "rooms file", records, rep)
}

func roomRecord(datasetID string, obj map[string]any) (ir.Record, error) {
	sch, _ := schema.For(schema.KindRooms)
	fields := make(map[string]ir.Value, len(sch.MFields)+len(sch.SFields))
	for _, f := range sch.Fields() {
		v, err := ir.FromAny(obj[f])
		if err != nil {
			return ir.Record{}, fmt.Errorf("field %q: %w", f, err)
		}
		fields[f] = v
	}

	p := orb.Point{float64(fields["lon"].(ir.Number)), float64(fields["lat"].(ir.Number))}
	if !World.Contains(p) {
		return ir.Record{}, fmt.Errorf("coordinates %v outside world bounds", p)
	}
	return ir.Record{Dataset: datasetID, Fields: fields}, nil
}
