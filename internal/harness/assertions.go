package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/trace"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion against p and returns the
// failure messages.
func EvaluateAssertions(p *convert.Program, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(p, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(p *convert.Program, a Assertion) error {
	switch a.Type {
	case AssertProgramContains:
		if !strings.Contains(p.Text, a.Text) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("program contains %q", a.Text), Actual: "not found"}
		}
	case AssertProgramExcludes:
		if strings.Contains(p.Text, a.Text) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("program without %q", a.Text), Actual: "found"}
		}
	case AssertProgramCount:
		if n := strings.Count(p.Text, a.Text); n != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d occurrences of %q", a.Count, a.Text),
				Actual:   fmt.Sprintf("%d occurrences", n),
			}
		}
	case AssertProgramOrder:
		return assertOrder(p.Text, a)
	case AssertDataValue:
		return assertValue(p.Data, a)
	case AssertInitValue:
		return assertValue(p.Init, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
	return nil
}

// assertOrder checks that each line occurs after the previous one. Lines
// need not be consecutive.
func assertOrder(text string, a Assertion) error {
	pos := -1
	for i, line := range a.Lines {
		j := strings.Index(text[pos+1:], line)
		if j < 0 {
			actual := "missing"
			if strings.Contains(text, line) {
				actual = fmt.Sprintf("%q appears before %q", line, a.Lines[i-1])
			}
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("lines in order: %q", a.Lines),
				Actual:   actual,
			}
		}
		pos += 1 + j
	}
	return nil
}

// assertValue compares a card value with a YAML value through their JSON
// forms, so tuples are written as {"1": .., "2": ..}.
func assertValue(card *trace.Card, a Assertion) error {
	got, ok := card.Get(a.Key)
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("card key %s", a.Key), Actual: "missing"}
	}
	gotJSON, err := ir.MarshalValue(got)
	if err != nil {
		return err
	}
	wantJSON, err := json.Marshal(normalizeYAML(a.Value))
	if err != nil {
		return fmt.Errorf("%s: encode expected value: %w", a.Key, err)
	}
	var gotAny, wantAny interface{}
	if err := json.Unmarshal(gotJSON, &gotAny); err != nil {
		return err
	}
	if err := json.Unmarshal(wantJSON, &wantAny); err != nil {
		return err
	}
	if !reflect.DeepEqual(gotAny, wantAny) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s = %s", a.Key, wantJSON),
			Actual:   string(gotJSON),
		}
	}
	return nil
}

// normalizeYAML turns YAML maps with non-string keys, such as the tuple
// index 1, into JSON-encodable maps.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[k] = normalizeYAML(e)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalizeYAML(e)
		}
		return out
	default:
		return v
	}
}
