package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir is where golden files live, relative to a package directory.
const GoldenDir = "testdata/golden"

// RunWithGolden runs a scenario and compares its data and init cards with
// testdata/golden/{name}_data.golden and {name}_init.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if result.Program == nil {
		return result, nil
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's cards with the golden files.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	files, err := goldenFiles(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	for _, f := range files {
		g.Assert(t, f.name, f.content)
	}
	return nil
}

// CheckGolden compares result's cards with the golden files in dir, or
// rewrites them when update is set. It returns the files that differ or
// are missing.
func CheckGolden(dir, name string, result *Result, update bool) ([]string, error) {
	files, err := goldenFiles(name, result)
	if err != nil {
		return nil, err
	}
	var mismatched []string
	for _, f := range files {
		path := filepath.Join(dir, f.name+".golden")
		if update {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, f.content, 0o644); err != nil {
				return nil, fmt.Errorf("write golden file: %w", err)
			}
			continue
		}
		want, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			mismatched = append(mismatched, path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read golden file: %w", err)
		}
		if !bytes.Equal(want, f.content) {
			mismatched = append(mismatched, path)
		}
	}
	return mismatched, nil
}

type goldenFile struct {
	name    string
	content []byte
}

// goldenFiles renders the cards that are compared with golden files.
func goldenFiles(name string, result *Result) ([]goldenFile, error) {
	data, err := result.Program.Data.JSON(true)
	if err != nil {
		return nil, err
	}
	init, err := result.Program.Init.JSON(true)
	if err != nil {
		return nil, err
	}
	return []goldenFile{{name + "_data", data}, {name + "_init", init}}, nil
}
