package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/insight/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSection creates a sections record with every schema field set.
func createTestSection(uuid, dept string, avg float64) ir.Record {
	return ir.Record{Fields: map[string]ir.Value{
		"uuid":       ir.String(uuid),
		"id":         ir.String("310"),
		"title":      ir.String("sftwr eng"),
		"instructor": ir.String("doe, jane"),
		"dept":       ir.String(dept),
		"year":       ir.Number(2015),
		"avg":        ir.Number(avg),
		"pass":       ir.Number(50),
		"fail":       ir.Number(2),
		"audit":      ir.Number(0),
	}}
}

// createTestSections creates n distinct sections records.
func createTestSections(n int) []ir.Record {
	out := make([]ir.Record, n)
	for i := range out {
		out[i] = createTestSection(fmt.Sprint(i), "cpsc", float64(60+i%40))
	}
	return out
}

// createTestRoom creates a rooms record with every schema field set.
func createTestRoom(name string, seats float64) ir.Record {
	return ir.Record{Fields: map[string]ir.Value{
		"fullname":  ir.String("Hugh Dempster Pavilion"),
		"shortname": ir.String("DMP"),
		"number":    ir.String("110"),
		"name":      ir.String(name),
		"address":   ir.String("6245 Agronomy Road V6T 1Z4"),
		"type":      ir.String("Tiered Large Group"),
		"furniture": ir.String("Classroom-Fixed Tablets"),
		"href":      ir.String("http://example.com/rooms/DMP-110"),
		"lat":       ir.Number(49.26125),
		"lon":       ir.Number(-123.24807),
		"seats":     ir.Number(seats),
	}}
}
