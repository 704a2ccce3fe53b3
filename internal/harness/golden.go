package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/insight/internal/ir"
)

// Snapshot captures every query outcome of a scenario for golden
// comparison. Query ids are left out; rows keep their column order.
type Snapshot struct {
	Scenario string          `json:"scenario"`
	Queries  []QuerySnapshot `json:"queries"`
}

// QuerySnapshot is the golden form of one Outcome.
type QuerySnapshot struct {
	Name  string   `json:"name"`
	Error string   `json:"error,omitempty"`
	Count int      `json:"count"`
	Rows  []ir.Row `json:"rows,omitempty"`
}

// NewSnapshot builds the snapshot of a scenario result.
func NewSnapshot(name string, result *Result) Snapshot {
	s := Snapshot{Scenario: name, Queries: make([]QuerySnapshot, len(result.Outcomes))}
	for i, o := range result.Outcomes {
		s.Queries[i] = QuerySnapshot{
			Name:  o.Name,
			Error: o.ErrorCode,
			Count: len(o.Rows),
			Rows:  o.Rows,
		}
	}
	return s
}

// Marshal renders the snapshot as indented JSON with a trailing newline.
func (s Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its outcomes against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the outcomes don't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(name, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
