package ir

import "fmt"

// Warning is a recorded, non-fatal diagnostic. Warnings never change control
// flow beyond a documented fallback; they are collected in emission order so
// that two conversions of the same input report identical warnings.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s", w.Code, w.Message)
}

// Warning codes (W1xx input, W2xx model, W3xx emission).
const (
	WarnNoConfig        = "W101" // no measurement configuration found
	WarnObservedCoerced = "W102" // non-integer observations truncated
	WarnPOIAbsent       = "W103" // configured POI has no modifier

	WarnModifierOverwrite = "W201" // repeated type/name modifier in one sample
	WarnParameterMismatch = "W202" // size/init/bound disagreement across instances
	WarnZeroVariance      = "W203" // combined stat error variance is zero in a bin

	WarnEmissionSkipped = "W301" // output newer than inputs, not rewritten
)

// Warnf builds a Warning.
func Warnf(code, format string, args ...any) Warning {
	return Warning{Code: code, Message: fmt.Sprintf(format, args...)}
}
