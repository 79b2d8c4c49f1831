package validate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/model"
)

// Validation error codes (E300-E399)
const (
	ErrCodeNames  = "E301" // sampled names differ between program and IR
	ErrCodeSizes  = "E302" // parameter names or sizes differ between evaluator and IR
	ErrCodeTarget = "E303" // log-density differences disagree
	ErrCodeEval   = "E304" // evaluating a log density failed
)

// DefaultTolerance bounds |Δprogram − Δoracle| relative to max(1, |Δoracle|).
const DefaultTolerance = 1e-6

// ValidationError reports a disagreement between the generated program
// and the evaluator. For target mismatches it carries both deltas and the
// points that produced them.
type ValidationError struct {
	Code    string
	Message string

	ProgramDelta float64
	OracleDelta  float64
	Points       [2]Point
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Program is the built generated program.
type Program interface {
	// ParameterNames lists the identifiers declared as parameters.
	ParameterNames(ctx context.Context) ([]string, error)
	// LogDensity evaluates the target, without Jacobian adjustment, at a
	// point keyed like the init card.
	LogDensity(ctx context.Context, p Point) (float64, error)
}

// Oracle is an independent evaluator of the same workspace.
type Oracle interface {
	// Parameters lists every parameter with its element count.
	Parameters(ctx context.Context) ([]convert.ParameterSize, error)
	// LogDensity evaluates the log density at a point keyed by parameter
	// name. Missing parameters take the evaluator's own defaults.
	LogDensity(ctx context.Context, p Point) (float64, error)
}

// Expected is what the IR predicts about the program.
type Expected struct {
	Init    Point
	Sampled []string
	Sizes   []convert.ParameterSize
	// Aliases maps program parameter names to evaluator names where they
	// differ. An aliased one-element vector is passed as a scalar.
	Aliases map[string]string
}

// ExpectedFrom derives the expectations from a converter and its program.
func ExpectedFrom(c *convert.Converter, p *convert.Program) Expected {
	aliases := make(map[string]string)
	if par, ok := c.Model().Parameter(c.Model().POI); ok {
		if poi, ok := par.(*model.POI); ok {
			aliases[poi.FreeName] = poi.Name()
		}
	}
	return Expected{
		Init:    p.Init.Values(),
		Sampled: c.SampledNames(),
		Sizes:   c.ParameterSizes(),
		Aliases: aliases,
	}
}

// Validator runs both checks.
type Validator struct {
	Program   Program
	Oracle    Oracle
	Expected  Expected
	Perturb   *Perturber
	Tolerance float64
	Logf      func(format string, v ...interface{})
}

// Report summarizes a successful validation.
type Report struct {
	Names        []string `json:"names"`
	ProgramDelta float64  `json:"program_delta"`
	OracleDelta  float64  `json:"oracle_delta"`
	Points       [2]Point `json:"points"`
}

func (v *Validator) logf(format string, args ...interface{}) {
	if v.Logf != nil {
		v.Logf(format, args...)
	}
}

// Run checks parameter names, then the target.
func (v *Validator) Run(ctx context.Context) (*Report, error) {
	names, err := v.ParameterNames(ctx)
	if err != nil {
		return nil, err
	}
	report, err := v.Target(ctx)
	if err != nil {
		return nil, err
	}
	report.Names = names
	return report, nil
}

// ParameterNames compares the program's sampled names with the IR's and
// the evaluator's parameter sizes with the IR's. It returns the sampled
// names, sorted.
func (v *Validator) ParameterNames(ctx context.Context) ([]string, error) {
	got, err := v.Program.ParameterNames(ctx)
	if err != nil {
		return nil, &ValidationError{Code: ErrCodeEval, Message: "program parameter names: " + err.Error()}
	}
	got = sorted(got)
	want := sorted(v.Expected.Sampled)
	if !slices.Equal(got, want) {
		return nil, &ValidationError{
			Code:    ErrCodeNames,
			Message: fmt.Sprintf("no agreement in parameter names: program = %v vs. IR = %v", got, want),
		}
	}

	sizes, err := v.Oracle.Parameters(ctx)
	if err != nil {
		return nil, &ValidationError{Code: ErrCodeEval, Message: "oracle parameters: " + err.Error()}
	}
	if diff := diffSizes(sizes, v.Expected.Sizes); diff != "" {
		return nil, &ValidationError{
			Code:    ErrCodeSizes,
			Message: "no agreement in parameter sizes: " + diff,
		}
	}
	v.logf("parameter names agree: %s", strings.Join(got, ", "))
	return got, nil
}

// Target draws two perturbed points from the init card and compares the
// change in log density.
func (v *Validator) Target(ctx context.Context) (*Report, error) {
	perturb := v.Perturb
	if perturb == nil {
		perturb = NewPerturber(DefaultScale, 1)
	}
	return v.Compare(ctx, [2]Point{perturb.Perturb(v.Expected.Init), perturb.Perturb(v.Expected.Init)})
}

// Compare evaluates both densities at the two points and checks that the
// changes between them agree within the tolerance.
func (v *Validator) Compare(ctx context.Context, points [2]Point) (*Report, error) {
	tol := v.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}

	var lp, lo [2]float64
	for i, p := range points {
		var err error
		if lp[i], err = v.Program.LogDensity(ctx, p); err != nil {
			return nil, &ValidationError{Code: ErrCodeEval, Message: "program log density: " + err.Error(), Points: points}
		}
		if lo[i], err = v.Oracle.LogDensity(ctx, v.oraclePoint(p)); err != nil {
			return nil, &ValidationError{Code: ErrCodeEval, Message: "oracle log density: " + err.Error(), Points: points}
		}
	}

	programDelta, oracleDelta := lp[1]-lp[0], lo[1]-lo[0]
	if !Agree(programDelta, oracleDelta, tol) {
		diff := math.Abs(programDelta - oracleDelta)
		return nil, &ValidationError{
			Code: ErrCodeTarget,
			Message: fmt.Sprintf("no agreement in target: program Δ = %v vs. oracle Δ = %v (difference %v) for pars = %v and %v",
				programDelta, oracleDelta, diff, formatPoint(points[0]), formatPoint(points[1])),
			ProgramDelta: programDelta,
			OracleDelta:  oracleDelta,
			Points:       points,
		}
	}
	v.logf("target agrees: program Δ = %v, oracle Δ = %v", programDelta, oracleDelta)
	return &Report{ProgramDelta: programDelta, OracleDelta: oracleDelta, Points: points}, nil
}

// Agree reports whether |programDelta − oracleDelta| ≤ tol·max(1, |oracleDelta|).
// A NaN or infinite difference on either side never agrees.
func Agree(programDelta, oracleDelta, tol float64) bool {
	if math.IsInf(programDelta, 0) || math.IsInf(oracleDelta, 0) {
		return false
	}
	diff := math.Abs(programDelta - oracleDelta)
	return diff <= tol*math.Max(1, math.Abs(oracleDelta))
}

// oraclePoint renames aliased parameters for the evaluator.
func (v *Validator) oraclePoint(p Point) Point {
	out := make(Point, len(p))
	for k, val := range p {
		name, ok := v.Expected.Aliases[k]
		if !ok {
			out[k] = val
			continue
		}
		if vec, isVec := val.(ir.Vector); isVec && len(vec) == 1 {
			val = ir.Real(vec[0])
		}
		out[name] = val
	}
	return out
}

func sorted(names []string) []string {
	out := slices.Clone(names)
	sort.Strings(out)
	return out
}

// diffSizes describes every name whose size differs, or "" if the two
// lists agree as sets.
func diffSizes(oracle, resolved []convert.ParameterSize) string {
	want := make(map[string]int, len(resolved))
	for _, p := range resolved {
		want[p.Name] = p.Size
	}
	got := make(map[string]int, len(oracle))
	for _, p := range oracle {
		got[p.Name] = p.Size
	}
	var problems []string
	for name, n := range got {
		m, ok := want[name]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%s only in oracle", name))
		case m != n:
			problems = append(problems, fmt.Sprintf("%s has size %d in oracle vs. %d in IR", name, n, m))
		}
	}
	for name := range want {
		if _, ok := got[name]; !ok {
			problems = append(problems, fmt.Sprintf("%s only in IR", name))
		}
	}
	sort.Strings(problems)
	return strings.Join(problems, "; ")
}

func formatPoint(p Point) string {
	data, err := ir.MarshalCanonical(p)
	if err != nil {
		return fmt.Sprint(map[string]ir.Value(p))
	}
	return string(data)
}
