// Package ir provides the value and record types shared by every stage of
// the query pipeline.
//
// This package contains type definitions and encodings only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Value is sealed: a field is either a String (s-field) or a Number (m-field)
//   - Records are immutable once built; the pipeline never writes to Fields
//   - Row keeps column order so results encode in COLUMNS order
//   - Composite keys use EncodeTuple, never delimiter-joined strings
package ir
