// Package trace attaches provenance to everything the converter emits.
//
// Code fragments are Traced strings: rendering appends the origin as a
// trailing comment to every non-blank line. Card entries carry their origin
// per key; merging cards keeps a parallel provenance map that is written
// under "_metadata" next to the numeric payload.
//
// Provenance is purely additive. Stripping it changes no computed value.
package trace
