package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/insight/internal/schema"
)

// Scenario defines a query conformance scenario: datasets to load and
// queries to run against them, each with its expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// MaxResults overrides the engine's result cap when positive.
	MaxResults int `yaml:"max_results,omitempty"`

	// Datasets are added to a fresh store before any query runs.
	Datasets []DatasetFixture `yaml:"datasets"`

	// Queries run in order against the loaded datasets.
	Queries []QueryCase `yaml:"queries"`
}

// DatasetFixture describes one dataset, given either as a file to ingest
// or as inline records.
type DatasetFixture struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`

	// File is a rooms JSON file or sections ZIP, relative to the scenario.
	File string `yaml:"file,omitempty"`

	// Defaults are merged under every inline record, so records only need
	// to spell out the fields a query looks at.
	Defaults map[string]any `yaml:"defaults,omitempty"`

	// Records are inline records keyed by bare field name.
	Records []map[string]any `yaml:"records,omitempty"`
}

// QueryCase is one query and its expected outcome.
type QueryCase struct {
	Name string `yaml:"name"`

	// Query is the wire query, written either as a YAML mapping or as a
	// JSON string.
	Query any `yaml:"query"`

	Expect Expect `yaml:"expect"`
}

// Expect describes the expected outcome of a query. Exactly one of Error,
// Rows or Count is required; Rows may be combined with Count.
type Expect struct {
	// Error is the expected error code, e.g. INVALID_QUERY.
	Error string `yaml:"error,omitempty"`

	// Rows are the expected result rows keyed by column name.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Count is the expected number of result rows.
	Count *int `yaml:"count,omitempty"`

	// Ordered requires Rows to match in order. Otherwise rows are
	// compared as a multiset.
	Ordered bool `yaml:"ordered,omitempty"`
}

// Error codes a scenario may expect.
var expectableErrors = []string{"INVALID_QUERY", "RESULT_TOO_LARGE", "DATASET_NOT_FOUND"}

// LoadScenario reads and parses a scenario YAML file.
// Fixture file paths are resolved relative to the scenario's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "querys:" vs "queries:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, ds := range scenario.Datasets {
		if ds.File != "" && !filepath.IsAbs(ds.File) {
			scenario.Datasets[i].File = filepath.Join(base, ds.File)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Datasets) == 0 {
		return fmt.Errorf("datasets list is required and must be non-empty")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	for i, ds := range s.Datasets {
		if err := validateDataset(ds); err != nil {
			return fmt.Errorf("datasets[%d]: %w", i, err)
		}
	}

	seen := make(map[string]bool, len(s.Queries))
	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if seen[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		seen[q.Name] = true
		if q.Query == nil {
			return fmt.Errorf("queries[%d]: query is required", i)
		}
		if err := validateExpect(q.Expect); err != nil {
			return fmt.Errorf("queries[%d].expect: %w", i, err)
		}
	}
	return nil
}

func validateDataset(ds DatasetFixture) error {
	if err := schema.ValidateDatasetID(ds.ID); err != nil {
		return err
	}
	if _, err := schema.ParseKind(ds.Kind); err != nil {
		return err
	}
	switch {
	case ds.File != "" && len(ds.Records) > 0:
		return fmt.Errorf("file and records are mutually exclusive")
	case ds.File != "":
		if _, err := os.Stat(ds.File); err != nil {
			return fmt.Errorf("fixture file: %w", err)
		}
	case len(ds.Records) == 0:
		return fmt.Errorf("one of file or records is required")
	}
	return nil
}

func validateExpect(e Expect) error {
	if e.Error != "" {
		if e.Rows != nil || e.Count != nil {
			return fmt.Errorf("error excludes rows and count")
		}
		for _, code := range expectableErrors {
			if e.Error == code {
				return nil
			}
		}
		return fmt.Errorf("unknown error code %q", e.Error)
	}
	if e.Rows == nil && e.Count == nil {
		return fmt.Errorf("one of error, rows or count is required")
	}
	if e.Count != nil && *e.Count < 0 {
		return fmt.Errorf("count must be non-negative")
	}
	return nil
}

// QueryBytes returns the wire form of the query.
func (q QueryCase) QueryBytes() ([]byte, error) {
	if s, ok := q.Query.(string); ok {
		return []byte(s), nil
	}
	data, err := json.Marshal(q.Query)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", q.Name, err)
	}
	return data, nil
}
