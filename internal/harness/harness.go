package harness

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/afero"

	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/model"
	"github.com/roach88/stanhf/internal/trace"
	"github.com/roach88/stanhf/internal/workspace"
)

// Run converts the scenario's workspace and checks the outcome.
//
// A failing expectation is reported in the result; the returned error is
// reserved for problems with the scenario itself.
func Run(scenario *Scenario) (*Result, error) {
	return RunFs(afero.NewOsFs(), scenario)
}

// RunFs is Run reading inputs from fs.
func RunFs(fs afero.Fs, scenario *Scenario) (*Result, error) {
	result := NewResult()

	p, err := convertScenario(fs, scenario)
	if err != nil {
		code := ErrorCode(err)
		if code == "" {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		result.ErrorCode = code
		switch scenario.Expect.Error {
		case "":
			result.AddError(fmt.Sprintf("conversion failed: %v", err))
		case code:
		default:
			result.AddError(fmt.Sprintf("expected error %s, got %v", scenario.Expect.Error, err))
		}
		return result, nil
	}

	result.Program = p
	result.Warnings = p.Warnings
	if scenario.Expect.Error != "" {
		result.AddError(fmt.Sprintf("expected error %s, conversion succeeded", scenario.Expect.Error))
		return result, nil
	}

	for _, oe := range convert.CheckOrder(p) {
		result.AddError(oe.Error())
	}
	checkExpect(result, p, scenario.Expect)
	for _, msg := range EvaluateAssertions(p, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func convertScenario(fs afero.Fs, scenario *Scenario) (*convert.Program, error) {
	loaded, err := convert.Load(fs, scenario.Source())
	if err != nil {
		return nil, err
	}
	c, err := loaded.Convert(convert.Options{Plain: scenario.Plain})
	if err != nil {
		return nil, err
	}
	return c.Program()
}

func checkExpect(result *Result, p *convert.Program, want Expect) {
	if want.Warnings != nil {
		var got []string
		for _, w := range p.Warnings {
			got = append(got, w.Code)
		}
		if !slices.Equal(got, want.Warnings) {
			result.AddError(fmt.Sprintf("warnings: expected %v, got %v", want.Warnings, got))
		}
	}
	if want.Parameters != nil {
		got := p.Summary.Parameters
		for _, c := range []struct {
			kind      string
			got, want []string
		}{
			{"sampled", got.Sampled, want.Parameters.Sampled},
			{"fixed", got.Fixed, want.Parameters.Fixed},
			{"null", got.Null, want.Parameters.Null},
		} {
			if c.want != nil && !slices.Equal(c.got, c.want) {
				result.AddError(fmt.Sprintf("%s parameters: expected %v, got %v", c.kind, c.want, c.got))
			}
		}
	}
	if want.DataKeys != nil && !slices.Equal(p.Data.Keys(), want.DataKeys) {
		result.AddError(fmt.Sprintf("data keys: expected %v, got %v", want.DataKeys, p.Data.Keys()))
	}
	if want.InitKeys != nil && !slices.Equal(p.Init.Keys(), want.InitKeys) {
		result.AddError(fmt.Sprintf("init keys: expected %v, got %v", want.InitKeys, p.Init.Keys()))
	}
}

// ErrorCode extracts the stable code of a conversion error, or "" when err
// carries none.
func ErrorCode(err error) string {
	var se *workspace.SchemaError
	if errors.As(err, &se) {
		return se.Code
	}
	var ce *model.ConsistencyError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var de *trace.DuplicateKeyError
	if errors.As(err, &de) {
		return trace.ErrCodeDuplicateKey
	}
	return ""
}
