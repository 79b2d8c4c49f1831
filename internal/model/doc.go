// Package model is the intermediate representation of a HistFactory
// workspace: channels, samples, modifiers, resolved parameters and
// constraints.
//
// Every entity contributes traced fragments to the stages of the generated
// program and traced entries to the data and init cards. Entities are
// built once per conversion by Build and are read-only afterwards.
//
// Naming: every identifier is derived by Join from channel, sample,
// modifier-kind and parameter names, so card keys are unique by
// construction.
package model
