package cmdutil

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdout(t *testing.T) {
	var logged []string
	out, err := Run(context.Background(), "/bin/sh", []string{"-c", "echo hello; echo noise >&2"}, &Opts{
		Logf: func(format string, v ...interface{}) { logged = append(logged, format) },
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
	assert.Equal(t, []string{"running: %s"}, logged)
}

func TestRunStdinAndDir(t *testing.T) {
	dir := t.TempDir()
	out, err := Run(context.Background(), "/bin/sh", []string{"-c", "cat; pwd"}, &Opts{
		Dir:   dir,
		Stdin: strings.NewReader("in\n"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "in\n"))
	assert.Contains(t, string(out), dir)
}

func TestRunExitError(t *testing.T) {
	_, err := Run(context.Background(), "/bin/sh", []string{"-c", "echo broken >&2; exit 3"}, nil)
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Status)
	assert.Equal(t, "broken\n", exitErr.Stderr)
	assert.Contains(t, err.Error(), "exit status 3: broken")
}

func TestRunMissingBinary(t *testing.T) {
	_, err := Run(context.Background(), "/nonexistent/stanc", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error starting /nonexistent/stanc")
}
