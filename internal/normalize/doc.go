// Package normalize flattens a validated snapshot tree into four relational
// tables (tracks, artists, albums, snapshot metadata) with referential
// closure: every album or artist id referenced by a track row resolves to a
// row produced from the same snapshot. Entities that lack a native id receive
// a stable synthetic id derived from their canonicalized fields, so the same
// logical entity maps to the same id across runs.
package normalize
