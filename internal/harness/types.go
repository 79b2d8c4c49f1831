package harness

import (
	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/ir"
)

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Program is the conversion result, nil when conversion failed.
	Program *convert.Program `json:"-"`

	// Warnings are the conversion warnings, in order.
	Warnings []ir.Warning `json:"warnings,omitempty"`

	// ErrorCode is the code of the conversion error, if any.
	ErrorCode string `json:"error_code,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
