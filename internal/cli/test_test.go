package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

func TestTestCommandMissingArgs(t *testing.T) {
	_, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	stdout, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "No scenarios found")
}

func TestTestCommandRunsScenarios(t *testing.T) {
	stdout, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), scenariosDir)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "✓ simple\n")
	assert.Contains(t, stdout, "✓ stat_across_channels\n")
	assert.Contains(t, stdout, "6 passed, 0 failed, 6 total")
}

func TestTestCommandFilterJSON(t *testing.T) {
	stdout, _, err := execute(NewTestCommand(&RootOptions{Format: "json"}), scenariosDir, "--filter", "p*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
	assert.Equal(t, "patched", resp.Data.Scenarios[0].Name)
	assert.Equal(t, "poi_absent", resp.Data.Scenarios[1].Name)
}

func TestTestCommandReportsFailures(t *testing.T) {
	dir := t.TempDir()
	ws, err := filepath.Abs("testdata/simple.json")
	require.NoError(t, err)
	scenario := `name: wrong_poi
description: expects a warning that simple.json does not raise
workspace: ` + ws + `
expect:
  warnings: [W103]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_poi.yaml"), []byte(scenario), 0o644))

	stdout, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ wrong_poi")
	assert.Contains(t, stdout, "0 passed, 1 failed, 1 total")
}

func TestTestCommandGoldenUpdate(t *testing.T) {
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0o755))
	ws, err := filepath.Abs("testdata/simple.json")
	require.NoError(t, err)
	scenario := "name: simple\ndescription: simple cards\nworkspace: " + ws + "\ngolden: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "simple.yaml"), []byte(scenario), 0o644))

	stdout, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), scenarios)
	require.Error(t, err)
	assert.Contains(t, stdout, "does not match (run with --update to regenerate)")

	_, _, err = execute(NewTestCommand(&RootOptions{Format: "text"}), scenarios, "--update")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "golden", "simple_data.golden"))
	assert.FileExists(t, filepath.Join(dir, "golden", "simple_init.golden"))

	stdout, _, err = execute(NewTestCommand(&RootOptions{Format: "text"}), scenarios)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ simple")
}
