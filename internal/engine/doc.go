// Package engine implements the query engine orchestrator.
//
// The engine accepts a query document, validates it against the schema of
// the one dataset it references, and runs it against that dataset's
// records:
//
//  1. Validate (queryir): grammar, field kinds, single dataset id. The
//     schema comes from one Store snapshot of the dataset, and the same
//     snapshot supplies the records for every later stage.
//  2. Load: the snapshot's immutable records
//  3. Filter (filter): set-based WHERE evaluation
//  4. Cap: more than MaxResults matches fails with RESULT_TOO_LARGE
//  5. Group and apply (aggregate), only with TRANSFORMATIONS
//  6. Project and sort (project)
//
// Every stage either completes or fails the whole query. Failures are
// reported as *QueryError with code INVALID_QUERY, RESULT_TOO_LARGE or
// DATASET_NOT_FOUND.
//
// Each execution is tagged with a query id (UUIDv7 by default) that appears
// in every log line and error for that query.
package engine
