// Package oracle evaluates a workspace with an independent implementation,
// pyhf by default, through a JSON-over-stdio subprocess.
//
// Each call runs one process. The request is a JSON object with the
// operation, the workspace document, the measurement name and, for
// log densities, the parameter point. The response carries either the
// result or an error message.
package oracle

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/roach88/stanhf/internal/cmdutil"
	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/ir"
)

// DefaultPython is the interpreter used when Command.Python is empty.
const DefaultPython = "python3"

//go:embed shim.py
var shim string

// Command runs the evaluator for one workspace document.
type Command struct {
	// Python is the interpreter. The embedded shim is passed with -c.
	Python string
	// Script replaces the embedded shim when set.
	Script string
	// Document is the (patched) workspace JSON.
	Document []byte
	// Measurement selects the measurement; empty means the first.
	Measurement string
	Logf        func(format string, v ...interface{})
}

type request struct {
	Op          string          `json:"op"`
	Workspace   json.RawMessage `json:"workspace"`
	Measurement string          `json:"measurement,omitempty"`
	Pars        ir.Object       `json:"pars,omitempty"`
}

type response struct {
	Error      string                  `json:"error,omitempty"`
	Parameters []convert.ParameterSize `json:"parameters,omitempty"`
	LogPDF     *float64                `json:"logpdf,omitempty"`
}

// Parameters lists the evaluator's parameters in its own order, each with
// its element count.
func (c *Command) Parameters(ctx context.Context) ([]convert.ParameterSize, error) {
	resp, err := c.call(ctx, request{Op: "parameters"})
	if err != nil {
		return nil, err
	}
	return resp.Parameters, nil
}

// LogDensity evaluates the log density at p. Parameters absent from p take
// the evaluator's suggested initial values.
func (c *Command) LogDensity(ctx context.Context, p ir.Object) (float64, error) {
	resp, err := c.call(ctx, request{Op: "logpdf", Pars: p})
	if err != nil {
		return 0, err
	}
	if resp.LogPDF == nil {
		return 0, errors.New("oracle returned no logpdf")
	}
	return *resp.LogPDF, nil
}

func (c *Command) call(ctx context.Context, req request) (*response, error) {
	if len(c.Document) == 0 {
		return nil, errors.New("oracle has no workspace document")
	}
	req.Workspace = c.Document
	req.Measurement = c.Measurement
	in, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s request", req.Op)
	}

	python := c.Python
	if python == "" {
		python = DefaultPython
	}
	args := []string{"-c", shim}
	if c.Script != "" {
		args = []string{c.Script}
	}
	out, err := cmdutil.Run(ctx, python, args, &cmdutil.Opts{Stdin: bytes.NewReader(in), Logf: c.Logf})
	if err != nil {
		return nil, errors.Wrapf(err, "oracle %s", req.Op)
	}

	var resp response
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, errors.Wrapf(err, "decode oracle %s response", req.Op)
	}
	if resp.Error != "" {
		return nil, errors.Errorf("oracle %s: %s", req.Op, resp.Error)
	}
	return &resp, nil
}
