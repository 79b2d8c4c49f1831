// Package store keeps a SQLite history of conversions and validations.
//
// # Tables
//
//   - conversions: one row per emitted program, keyed by a random run id and
//     carrying the content-addressed conversion key, the program hash, the
//     summary and the warnings
//   - validations: one row per validator run against a conversion
//
// # Ordering
//
// Rows carry a seq INTEGER assigned at insert time. Listings order by seq,
// never by the recorded wall-clock time, so two histories written in the
// same order list identically.
//
// # Non-finite differences
//
// A validation whose evaluator produced NaN keeps a NULL program_delta or
// oracle_delta; reading it back yields NaN again. Infinities are stored as
// SQLite REAL infinities.
//
// The database runs in WAL mode with a five second busy timeout, so a
// `stanhf history` listing can run while a watch loop is recording.
package store
