package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// memWorkspace copies testdata files into /ws on an in-memory filesystem.
func memWorkspace(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join("testdata", f))
		require.NoError(t, err)
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/ws", f), data, 0o644))
	}
	return fs
}

// diskWorkspace copies testdata files into a temporary directory.
func diskWorkspace(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join("testdata", f))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), data, 0o644))
	}
	return dir
}

// execute runs cmd with args and returns what it wrote.
func execute(cmd *cobra.Command, args ...string) (stdout, stderr string, err error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

const fakeStanc = `#!/bin/sh
echo '{"inputs": {}, "parameters": {"uncorr_bkguncrt": {"type": "vector", "dimensions": 1}, "free_mu": {"type": "real", "dimensions": 1}}}'
`

const fakeMake = `#!/bin/sh
cp "$(dirname "$0")/model.sh" "$1"
chmod +x "$1"
`

// fakeModel reports the same log density at every point.
const fakeModel = `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  case "$a" in
    file=*) if [ "$prev" = "output" ]; then out="${a#file=}"; fi ;;
  esac
  prev="$a"
done
printf '# log_prob method\nlp__,free_mu\n-3.25,1\n' > "$out"
`

// nanModel reports a log density of NaN.
const nanModel = `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  case "$a" in
    file=*) if [ "$prev" = "output" ]; then out="${a#file=}"; fi ;;
  esac
  prev="$a"
done
printf 'lp__,free_mu\nnan,1\n' > "$out"
`

// agreeingPython reports the workspace's parameters and a constant log
// density, so both deltas are zero.
const agreeingPython = `#!/bin/sh
req=$(cat)
case "$req" in
  *'"op":"parameters"'*) echo '{"parameters": [{"name": "mu", "size": 1}, {"name": "uncorr_bkguncrt", "size": 2}]}' ;;
  *) echo '{"logpdf": -12.5}' ;;
esac
`

// driftingPython answers the second log density differently from the
// first.
const driftingPython = `#!/bin/sh
req=$(cat)
case "$req" in
  *'"op":"parameters"'*) echo '{"parameters": [{"name": "mu", "size": 1}, {"name": "uncorr_bkguncrt", "size": 2}]}' ;;
  *) if [ -f "$0.seen" ]; then echo '{"logpdf": -10.0}'; else touch "$0.seen"; echo '{"logpdf": -12.5}'; fi ;;
esac
`

// fakeInstall is a fake CmdStan installation and evaluator.
type fakeInstall struct {
	CmdStan string
	Make    string
	Python  string
}

func fakeToolchain(t *testing.T, python string) fakeInstall {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	files := map[string]string{
		"makefile":                    "",
		filepath.Join("bin", "stanc"): fakeStanc,
		"make.sh":                     fakeMake,
		"model.sh":                    fakeModel,
		"python":                      python,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o755))
	}
	return fakeInstall{
		CmdStan: root,
		Make:    filepath.Join(root, "make.sh"),
		Python:  filepath.Join(root, "python"),
	}
}
