// Package cmdutil runs external programs the way stanhf needs them: output
// captured, failures wrapped with the command line and its diagnostics.
package cmdutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Opts is a list of extra things to pass into Run.
type Opts struct {
	// Dir is the working directory. Empty means the current one.
	Dir string
	// Stdin is connected to the command's standard input when set.
	Stdin io.Reader
	// Logf receives the command line and, on failure, its output.
	Logf func(format string, v ...interface{})
}

// ExitError is returned when a command runs but exits unsuccessfully.
type ExitError struct {
	Cmd    string
	Status int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Cmd, e.Status)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Run executes name with args and returns its standard output.
func Run(ctx context.Context, name string, args []string, opts *Opts) ([]byte, error) {
	if opts == nil {
		opts = &Opts{}
	}
	logf := func(format string, v ...interface{}) {
		if opts.Logf != nil {
			opts.Logf(format, v...)
		}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	cmd.Stdin = opts.Stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	line := strings.Join(cmd.Args, " ")
	logf("running: %s", line)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "error starting %s", name)
	}
	err := cmd.Wait()
	if err == nil {
		return stdout.Bytes(), nil
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return nil, errors.Wrapf(err, "%s failed in some bad way", name)
	}
	diag := stderr.String()
	if diag == "" {
		diag = stdout.String()
	}
	if diag != "" {
		logf("cmd error:\n%s", diag)
	}
	return nil, errors.WithStack(&ExitError{Cmd: line, Status: exitErr.ExitCode(), Stderr: diag})
}
