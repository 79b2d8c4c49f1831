package ir

// Version constants for generated artifacts.
const (
	// GeneratorVersion is the stanhf code generator version. It is written
	// into every program header and into the history store.
	GeneratorVersion = "0.4.0"

	// CardVersion is the data/init card layout version.
	CardVersion = "1"
)
