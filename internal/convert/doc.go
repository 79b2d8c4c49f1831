// Package convert assembles a Stan program, data card and init card from a
// workspace.
//
// A Converter builds the model IR once and owns the deduplication cache
// for that conversion. Blocks folds every entity over each program stage
// in declaration order; DataCard and InitCard merge the entities' cards
// and fail on any repeated key. An Emitter writes the three artifacts,
// skipping files that are newer than their inputs.
package convert
