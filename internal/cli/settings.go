package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// SettingsFile is looked up next to the workspace.
const SettingsFile = "stanhf.yaml"

// Settings holds project defaults from stanhf.yaml. Flags override them.
type Settings struct {
	// CmdStan is the CmdStan installation; $CMDSTAN when empty.
	CmdStan string `yaml:"cmdstan"`
	// Make builds programs inside CmdStan; "make" when empty.
	Make string `yaml:"make"`
	// Python runs the evaluator shim.
	Python string `yaml:"python"`
	// Database is the history database. No history is kept when empty.
	Database string `yaml:"db"`

	Validate ValidateSettings `yaml:"validate"`
}

// ValidateSettings are the differential validation defaults.
type ValidateSettings struct {
	Scale     float64 `yaml:"scale"`
	Tolerance float64 `yaml:"tolerance"`
	Seed      *uint64 `yaml:"seed"`
}

// LoadSettings reads stanhf.yaml from dir. Relative paths in the file are
// taken relative to dir. Returns nil (not an error) if the file does not
// exist.
func LoadSettings(fs afero.Fs, dir string) (*Settings, error) {
	path := filepath.Join(dir, SettingsFile)
	data, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	s.Database = resolve(dir, s.Database)
	s.CmdStan = resolve(dir, s.CmdStan)
	if strings.ContainsRune(s.Make, filepath.Separator) {
		s.Make = resolve(dir, s.Make)
	}
	return &s, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// settingsFor loads the settings next to a workspace file. Safe to use the
// result when the file is absent.
func settingsFor(fs afero.Fs, workspace string) (*Settings, error) {
	s, err := LoadSettings(fs, filepath.Dir(workspace))
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &Settings{}
	}
	return s, nil
}

// pick returns the flag value when the flag was set, else the setting when
// it is non-zero, else the flag's default.
func pick[T comparable](changed bool, flag, setting T) T {
	var zero T
	if changed || setting == zero {
		return flag
	}
	return setting
}
