// Package queryir provides the typed representation of a query and the
// validator that builds it from the JSON wire grammar.
//
// ARCHITECTURE:
//
//	[query JSON] → Parse → [Query IR] → Check(schema) → filter / aggregate / project
//
// Parse enforces everything that can be decided from the query alone:
//   - WHERE present; {} or exactly one filter keyword from AND, OR, NOT, IS, LT, GT, EQ
//   - AND/OR carry non-empty arrays, and every element must itself be valid
//   - IS patterns carry "*" only at the first and/or last position
//   - field references split into exactly <dataset>_<field>
//   - every reference (WHERE, COLUMNS, ORDER, GROUP, APPLY) names one dataset
//   - APPLY aliases are unique; with TRANSFORMATIONS, COLUMNS use only GROUP keys and aliases
//   - ORDER keys appear in COLUMNS
//
// Check then verifies field kinds against the dataset's schema.
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern. Only
// And, Or, Not, Is and Compare implement it, so backends can switch
// exhaustively:
//
//	switch p := pred.(type) {
//	case nil:
//	    // empty WHERE, matches everything
//	case And, Or, Not, Is, Compare:
//	    // ...
//	}
package queryir
