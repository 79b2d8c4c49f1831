package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/store"
)

func TestConvertWritesArtifacts(t *testing.T) {
	fs := memWorkspace(t, "simple.json")
	opts := &RootOptions{Format: "text", Fs: fs}

	stdout, stderr, err := execute(NewConvertCommand(opts), "/ws/simple.json")
	require.NoError(t, err)
	assert.Empty(t, stderr)

	assert.Contains(t, stdout, "✓ Converted /ws/simple: 1 channel(s), 2 sample(s), 2 modifier(s) (0 null)")
	assert.Contains(t, stdout, "parameter of interest: mu")
	assert.Contains(t, stdout, "2 sampled, 0 fixed, 0 null parameter(s)")
	for _, f := range []string{"/ws/simple.stan", "/ws/simple_data.json", "/ws/simple_init.json"} {
		exists, err := afero.Exists(fs, f)
		require.NoError(t, err)
		assert.True(t, exists, f)
		assert.Contains(t, stdout, "wrote "+f)
	}

	program, err := afero.ReadFile(fs, "/ws/simple.stan")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(program), "// histfactory json /ws/simple.json\n"))
	assert.Contains(t, string(program), "// from ")
}

func TestConvertJSON(t *testing.T) {
	fs := memWorkspace(t, "simple.json")
	opts := &RootOptions{Format: "json", Fs: fs}

	stdout, _, err := execute(NewConvertCommand(opts), "/ws/simple.json", "--plain", "-o", "/ws/out/model")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ConvertResult `json:"data"`
		RunID  string        `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.RunID)
	assert.Equal(t, "/ws/out/model", resp.Data.Root)
	assert.Equal(t, "/ws/out/model.stan", resp.Data.Program)
	assert.Equal(t, []string{"mu", "uncorr_bkguncrt"}, resp.Data.Summary.Parameters.Sampled)
	assert.Len(t, resp.Data.Written, 3)
	assert.Empty(t, resp.Data.Warnings)

	program, err := afero.ReadFile(fs, "/ws/out/model.stan")
	require.NoError(t, err)
	assert.NotContains(t, string(program), "// from ")
}

func TestConvertKeepsFreshOutputs(t *testing.T) {
	fs := memWorkspace(t, "simple.json")
	opts := &RootOptions{Format: "text", Fs: fs}

	_, _, err := execute(NewConvertCommand(opts), "/ws/simple.json")
	require.NoError(t, err)

	stdout, stderr, err := execute(NewConvertCommand(opts), "/ws/simple.json")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(stderr, "warning: ["+ir.WarnEmissionSkipped+"]"))
	assert.Contains(t, stdout, "kept /ws/simple.stan")
	assert.NotContains(t, stdout, "wrote ")

	stdout, stderr, err = execute(NewConvertCommand(opts), "/ws/simple.json", "--force")
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Equal(t, 3, strings.Count(stdout, "wrote "))
}

func TestConvertWithPatch(t *testing.T) {
	fs := memWorkspace(t, "simple.json", "patchset.json")
	opts := &RootOptions{Format: "text", Fs: fs}

	stdout, _, err := execute(NewConvertCommand(opts),
		"/ws/simple.json", "--patch", "/ws/patchset.json", "--patch-name", "mass_200")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Converted /ws/simple_mass_200")

	program, err := afero.ReadFile(fs, "/ws/simple_mass_200.stan")
	require.NoError(t, err)
	assert.Contains(t, string(program), "// patch name mass_200 (index 1)")
}

func TestConvertSchemaError(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ws/bad.json", []byte(`{"channels": "four"}`), 0o644))
	opts := &RootOptions{Format: "json", Fs: fs}

	stdout, _, err := execute(NewConvertCommand(opts), "/ws/bad.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E201", resp.Error.Code)

	exists, err := afero.Exists(fs, "/ws/bad.stan")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConvertMissingWorkspace(t *testing.T) {
	opts := &RootOptions{Format: "text", Fs: afero.NewMemMapFs()}

	stdout, _, err := execute(NewConvertCommand(opts), "/ws/missing.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error ["+ErrCodeNotFound+"]")
}

func TestConvertRecordsHistory(t *testing.T) {
	fs := memWorkspace(t, "simple.json")
	db := filepath.Join(t.TempDir(), "history.db")
	opts := &RootOptions{Format: "json", Fs: fs}

	stdout, _, err := execute(NewConvertCommand(opts), "/ws/simple.json", "--db", db)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotEmpty(t, resp.RunID)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	conversions, err := st.ListConversions(context.Background(), "/ws/simple")
	require.NoError(t, err)
	require.Len(t, conversions, 1)
	c := conversions[0]
	assert.Equal(t, resp.RunID, c.ID)
	assert.Equal(t, "/ws/simple.json", c.Workspace)
	assert.Equal(t, "Measurement", c.Measurement)
	assert.Equal(t, ir.GeneratorVersion, c.GeneratorVersion)
	assert.Len(t, c.Written, 3)

	key, err := ir.ConversionID(c.WorkspaceHash, "Measurement", "")
	require.NoError(t, err)
	assert.Equal(t, key, c.Key)
}

func TestConvertUsesSettingsDatabase(t *testing.T) {
	dir := diskWorkspace(t, "simple.json")
	settings := "db: history.db\n"
	require.NoError(t, afero.WriteFile(afero.NewOsFs(), filepath.Join(dir, SettingsFile), []byte(settings), 0o644))
	opts := &RootOptions{Format: "text"}

	_, _, err := execute(NewConvertCommand(opts), filepath.Join(dir, "simple.json"))
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	defer st.Close()
	conversions, err := st.ListConversions(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, conversions, 1)
}
