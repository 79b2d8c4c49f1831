package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/workspace"
)

// Scenario is one conversion with its expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden files.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Workspace is the workspace file, relative to the scenario file.
	Workspace string `yaml:"workspace"`

	// Patch is an optional patchset file, relative to the scenario file.
	Patch string `yaml:"patch,omitempty"`

	// PatchName selects a patch by name; PatchIndex by index.
	PatchName  string `yaml:"patch_name,omitempty"`
	PatchIndex int    `yaml:"patch_index,omitempty"`

	// Measurement selects the measurement, the first when empty.
	Measurement string `yaml:"measurement,omitempty"`

	// Plain omits provenance comments from the program.
	Plain bool `yaml:"plain,omitempty"`

	// Golden compares the data and init cards with golden files.
	Golden bool `yaml:"golden,omitempty"`

	// Expect holds whole-result expectations.
	Expect Expect `yaml:"expect,omitempty"`

	// Assertions check details of the program and cards.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// dir is the directory of the scenario file.
	dir string
}

// Expect describes the conversion result as a whole. Unset fields are not
// checked.
type Expect struct {
	// Error is the code the conversion must fail with.
	Error string `yaml:"error,omitempty"`

	// Warnings are the expected warning codes, in order.
	Warnings []string `yaml:"warnings,omitempty"`

	// Parameters are the expected sampled, fixed and null names.
	Parameters *convert.ParNames `yaml:"parameters,omitempty"`

	// DataKeys and InitKeys are the expected card keys, in order.
	DataKeys []string `yaml:"data_keys,omitempty"`
	InitKeys []string `yaml:"init_keys,omitempty"`
}

// Assertion checks one detail of a successful conversion.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Text is the program fragment (program_contains, program_excludes,
	// program_count).
	Text string `yaml:"text,omitempty"`

	// Count is the expected number of occurrences (program_count).
	Count int `yaml:"count,omitempty"`

	// Lines are program lines expected in this order (program_order).
	Lines []string `yaml:"lines,omitempty"`

	// Key and Value name a card entry (data_value, init_value).
	Key   string      `yaml:"key,omitempty"`
	Value interface{} `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertProgramContains = "program_contains"
	AssertProgramExcludes = "program_excludes"
	AssertProgramCount    = "program_count"
	AssertProgramOrder    = "program_order"
	AssertDataValue       = "data_value"
	AssertInitValue       = "init_value"
)

// Source returns the conversion inputs with paths resolved.
func (s *Scenario) Source() convert.Source {
	src := convert.Source{
		Workspace:   s.resolve(s.Workspace),
		Measurement: s.Measurement,
		Selector:    workspace.PatchSelector{Index: s.PatchIndex, Name: s.PatchName},
	}
	if s.Patch != "" {
		src.Patch = s.resolve(s.Patch)
	}
	return src
}

func (s *Scenario) resolve(path string) string {
	if filepath.IsAbs(path) || s.dir == "" {
		return path
	}
	return filepath.Join(s.dir, path)
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.dir = filepath.Dir(path)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Workspace == "" {
		return fmt.Errorf("workspace is required")
	}

	if _, err := os.Stat(s.resolve(s.Workspace)); os.IsNotExist(err) {
		return fmt.Errorf("workspace file not found: %s", s.Workspace)
	}

	if s.Patch == "" && (s.PatchName != "" || s.PatchIndex != 0) {
		return fmt.Errorf("patch_name and patch_index need a patch")
	}

	if s.Expect.Error != "" && (len(s.Assertions) > 0 || s.Golden) {
		return fmt.Errorf("a scenario expecting an error cannot have assertions or golden files")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertProgramContains, AssertProgramExcludes:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	case AssertProgramCount:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for program_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for program_count", index)
		}
	case AssertProgramOrder:
		if len(a.Lines) < 2 {
			return fmt.Errorf("assertions[%d]: at least two lines are required for program_order", index)
		}
	case AssertDataValue, AssertInitValue:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for %s", index, a.Type)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
