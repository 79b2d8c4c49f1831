package oracle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/ir"
)

// fakePython answers by operation and keeps the last request beside itself.
const fakePython = `#!/bin/sh
cat > "$0.req"
if grep -q '"op":"parameters"' "$0.req"; then
  echo '{"parameters": [{"name": "mu", "size": 1}, {"name": "uncorr_bkguncrt", "size": 2}]}'
elif grep -q '"op":"logpdf"' "$0.req"; then
  echo '{"logpdf": -12.5}'
fi
`

func fake(t *testing.T, script string) *Command {
	t.Helper()
	python := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(python, []byte(script), 0o755))
	return &Command{Python: python, Document: []byte(`{"channels": []}`), Measurement: "meas"}
}

func lastRequest(t *testing.T, c *Command) string {
	t.Helper()
	req, err := os.ReadFile(c.Python + ".req")
	require.NoError(t, err)
	return string(req)
}

func TestParameters(t *testing.T) {
	c := fake(t, fakePython)
	pars, err := c.Parameters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []convert.ParameterSize{{Name: "mu", Size: 1}, {Name: "uncorr_bkguncrt", Size: 2}}, pars)

	req := lastRequest(t, c)
	assert.Contains(t, req, `"workspace":{"channels":[]}`)
	assert.Contains(t, req, `"measurement":"meas"`)
	assert.NotContains(t, req, `"pars"`)
}

func TestLogDensity(t *testing.T) {
	c := fake(t, fakePython)
	lp, err := c.LogDensity(context.Background(), ir.Object{"mu": ir.Real(1.5), "uncorr_bkguncrt": ir.Vector{1, 1}})
	require.NoError(t, err)
	assert.Equal(t, -12.5, lp)
	assert.Contains(t, lastRequest(t, c), `"pars":{"mu":1.5,"uncorr_bkguncrt":[1,1]}`)
}

func TestErrorResponse(t *testing.T) {
	c := fake(t, "#!/bin/sh\ncat > /dev/null\necho '{\"error\": \"no such measurement\"}'\n")
	_, err := c.Parameters(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such measurement")
}

func TestMissingLogPDF(t *testing.T) {
	c := fake(t, "#!/bin/sh\ncat > /dev/null\necho '{}'\n")
	_, err := c.LogDensity(context.Background(), ir.Object{})
	assert.ErrorContains(t, err, "no logpdf")
}

func TestProcessFailure(t *testing.T) {
	c := fake(t, "#!/bin/sh\necho 'ModuleNotFoundError: No module named pyhf' >&2\nexit 1\n")
	_, err := c.Parameters(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No module named pyhf")
}

func TestNoDocument(t *testing.T) {
	_, err := (&Command{}).Parameters(context.Background())
	assert.ErrorContains(t, err, "no workspace document")
}

func TestShimIsEmbedded(t *testing.T) {
	assert.True(t, strings.Contains(shim, "import pyhf"))
	assert.Contains(t, shim, "suggested_init")
}
