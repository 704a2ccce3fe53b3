// Package schema describes which fields each record kind carries and how
// field references in queries are parsed.
//
// Sections carry m-fields year, avg, pass, fail, audit and s-fields uuid,
// id, title, instructor, dept. Rooms carry m-fields lat, lon, seats and
// s-fields fullname, shortname, number, name, address, type, furniture,
// href. The package is pure data plus parsing; it has no behavior beyond
// lookups.
package schema
