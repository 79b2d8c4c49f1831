package workspace

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Schema error codes (E201-E209).
const (
	ErrCodeSchema    = "E201" // document does not match the workspace schema
	ErrCodeMissing   = "E202" // required entry absent
	ErrCodeShape     = "E203" // vector length disagrees with bin count
	ErrCodeBadValue  = "E204" // value outside its domain
	ErrCodePatch     = "E205" // patch selection or application failed
	ErrCodeNonScalar = "E206" // parameter of interest is not a scalar
	ErrCodeRead      = "E207" // document could not be read or decoded
)

// SchemaError reports a malformed or incomplete workspace, patch or
// configuration.
type SchemaError struct {
	Code    string
	Path    string // location inside the document, e.g. channels[0].samples[1]
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	loc := e.Path
	if e.Pos.IsValid() {
		loc = fmt.Sprintf("%s:%d:%d", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	if loc == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, loc, e.Message)
}

// IsSchemaError reports whether err is or wraps a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// schemaErrorf builds a SchemaError without a source position.
func schemaErrorf(code, path, format string, args ...any) *SchemaError {
	return &SchemaError{Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}

// formatCUEError converts the first CUE error into a positioned SchemaError.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Code: ErrCodeSchema, Message: err.Error()}
	}

	first := errs[0]
	se := &SchemaError{
		Code:    ErrCodeSchema,
		Message: first.Error(),
	}
	if path := first.Path(); len(path) > 0 {
		se.Path = strings.Join(path, ".")
	}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		se.Pos = positions[0]
	}
	if len(errs) > 1 {
		se.Message = fmt.Sprintf("%s (and %d more errors)", se.Message, len(errs)-1)
	}
	return se
}
