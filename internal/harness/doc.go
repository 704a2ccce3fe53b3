// Package harness runs query conformance scenarios end to end.
//
// A scenario loads datasets into a fresh in-memory store, runs queries
// through the engine and checks each outcome against its expectation.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	max_results: 5000           # optional cap override
//	datasets:
//	  - id: sections
//	    kind: sections
//	    defaults: { title: "intro", year: 2015 }
//	    records:
//	      - { uuid: "1", dept: "cpsc", avg: 90 }
//	  - id: rooms
//	    kind: rooms
//	    file: fixtures/rooms.json
//	queries:
//	  - name: high averages
//	    query:
//	      WHERE: { GT: { sections_avg: 85 } }
//	      OPTIONS: { COLUMNS: [sections_avg], ORDER: sections_avg }
//	    expect:
//	      ordered: true
//	      rows:
//	        - { sections_avg: 90 }
//	  - name: bad key
//	    query: '{"WHERE": {"GT": {"sections_bogus": 1}}, "OPTIONS": {"COLUMNS": ["sections_avg"]}}'
//	    expect:
//	      error: INVALID_QUERY
//
// Queries may be written as YAML mappings or as raw JSON strings; the
// latter is the only way to express wire documents YAML cannot, such as
// duplicate keys.
//
// # Expectations
//
//   - error: the engine fails with this code
//   - count: the result has exactly this many rows
//   - rows: the result equals these rows, as a multiset unless ordered
//
// # Golden Files
//
// RunWithGolden additionally snapshots every outcome to
// testdata/golden/<name>.golden. Query ids come from a fixed sequence, so
// snapshots are reproducible.
package harness
