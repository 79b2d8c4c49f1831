package model

import (
	"errors"
	"fmt"
)

// Consistency error codes (E220-E229).
const (
	ErrCodeCrossChannel = "E220" // per-channel modifier name reused across channels
)

// ConsistencyError reports a fatal disagreement between modifier
// instances. Recoverable disagreements are warnings instead.
type ConsistencyError struct {
	Code      string
	Parameter string
	Message   string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Parameter, e.Message)
}

// IsConsistencyError reports whether err is or wraps a ConsistencyError.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
