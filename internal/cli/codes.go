package cli

import (
	"errors"
	"io/fs"
	"regexp"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/harness"
	"github.com/roach88/stanhf/internal/toolchain"
	"github.com/roach88/stanhf/internal/validate"
)

// CLI error codes (E001-E099)
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeSettings    = "E002" // stanhf.yaml unreadable
	ErrCodeNoScenarios = "E003" // No scenario files found
	ErrCodeHistory     = "E004" // History database failure
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeWatch       = "E006" // File watcher failure
	ErrCodeWriteFailed = "E007" // File write error
)

// codePrefix matches the "[E123]" prefix every coded error message starts
// with.
var codePrefix = regexp.MustCompile(`^\[(E\d{3})\]`)

// errorCode returns the stable code carried by err. Aggregated errors
// report the code of their first member.
func errorCode(err error) string {
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 0 {
		return errorCode(merr.Errors[0])
	}
	if code := harness.ErrorCode(err); code != "" {
		return code
	}
	var oe convert.OrderError
	if errors.As(err, &oe) {
		return oe.Code
	}
	var be *toolchain.BuildError
	if errors.As(err, &be) {
		return be.Code
	}
	var ve *validate.ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	if m := codePrefix.FindStringSubmatch(err.Error()); m != nil {
		return m[1]
	}
	if errors.Is(err, fs.ErrNotExist) {
		return ErrCodeNotFound
	}
	return ErrCodeGeneric
}

// fail reports err and returns the exit error for it. A disagreement
// between program and evaluator is a failure; anything else, including a
// failed evaluation, is a command error.
func fail(formatter *OutputFormatter, err error) error {
	code := errorCode(err)
	_ = formatter.Error(code, err.Error(), nil)
	exit := ExitCommandError
	var ve *validate.ValidationError
	if errors.As(err, &ve) && ve.Code != validate.ErrCodeEval {
		exit = ExitFailure
	}
	return WrapExitError(exit, code, err)
}

// failCode is fail with an explicit code, for errors raised by the CLI
// itself.
func failCode(formatter *OutputFormatter, code string, err error) error {
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, code, err)
}
