package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stanhf/internal/oracle"
	"github.com/roach88/stanhf/internal/store"
	"github.com/roach88/stanhf/internal/toolchain"
	"github.com/roach88/stanhf/internal/validate"
)

// validateFlags configure a differential validation.
type validateFlags struct {
	Seed      uint64
	Scale     float64
	Tolerance float64
	CmdStan   string
	Python    string
	Script    string
}

func (v *validateFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&v.Seed, "seed", 0, "seed for the perturbed points")
	cmd.Flags().Float64Var(&v.Scale, "scale", validate.DefaultScale, "perturbation width relative to each value")
	cmd.Flags().Float64Var(&v.Tolerance, "tolerance", validate.DefaultTolerance, "allowed relative disagreement of the log-density differences")
	cmd.Flags().StringVar(&v.CmdStan, "cmdstan", "", "CmdStan installation (default: $"+toolchain.EnvCmdStan+")")
	cmd.Flags().StringVar(&v.Python, "python", "", "Python interpreter with pyhf (default: "+oracle.DefaultPython+")")
	cmd.Flags().StringVar(&v.Script, "oracle-script", "", "evaluator script replacing the embedded pyhf shim")
}

// resolve applies settings to every flag that was not given.
func (v *validateFlags) resolve(cmd *cobra.Command, s *Settings) validateFlags {
	changed := cmd.Flags().Changed
	out := validateFlags{
		Seed:      v.Seed,
		Scale:     pick(changed("scale"), v.Scale, s.Validate.Scale),
		Tolerance: pick(changed("tolerance"), v.Tolerance, s.Validate.Tolerance),
		CmdStan:   pick(changed("cmdstan"), v.CmdStan, s.CmdStan),
		Python:    pick(changed("python"), v.Python, s.Python),
		Script:    v.Script,
	}
	if !changed("seed") && s.Validate.Seed != nil {
		out.Seed = *s.Validate.Seed
	}
	return out
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	sourceFlags
	validateFlags
	Output   string
	Database string
}

// ValidateResult is the outcome of a differential validation.
type ValidateResult struct {
	Root         string            `json:"root"`
	Passed       bool              `json:"passed"`
	Code         string            `json:"code,omitempty"`
	Message      string            `json:"message,omitempty"`
	Names        []string          `json:"names,omitempty"`
	ProgramDelta validate.Delta    `json:"program_delta"`
	OracleDelta  validate.Delta    `json:"oracle_delta"`
	Points       [2]validate.Point `json:"points"`
	Seed         uint64            `json:"seed"`
	Scale        float64           `json:"scale"`
	Tolerance    float64           `json:"tolerance"`
	// History is set when the outcome could not be recorded.
	History      string            `json:"history_error,omitempty"`

	runID string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <workspace.json>",
		Short: "Check a built program against pyhf",
		Long: `Check that the built program and pyhf agree on the workspace.

The sampled parameter names must match the conversion, pyhf's parameters
must match in name and size, and the change in log density between two
perturbed points must agree within the tolerance. The program must already
be converted and built.

Exit codes: 0 agreement, 1 disagreement, 2 command error.

Example:
  stanhf validate simple.json --seed 7
  stanhf validate bkg.json --patch patchset.json --patch-name mass_200 --db stanhf.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	opts.sourceFlags.bind(cmd)
	opts.validateFlags.bind(cmd)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output root (default: the workspace name)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the validation in this SQLite database")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	settings, err := settingsFor(opts.fs(), path)
	if err != nil {
		return failCode(formatter, ErrCodeSettings, err)
	}
	flags := opts.validateFlags.resolve(cmd, settings)
	db := pick(cmd.Flags().Changed("db"), opts.Database, settings.Database)

	c, err := convertSource(opts.fs(), opts.source(path), false)
	if err != nil {
		return fail(formatter, err)
	}
	root := opts.Output
	if root == "" {
		root = c.Root()
	}
	cs, err := toolchain.Locate(flags.CmdStan)
	if err != nil {
		return fail(formatter, err)
	}
	cs.Logf = formatter.VerboseLog
	model, err := cs.Model(root)
	if err != nil {
		return fail(formatter, err)
	}

	result, err := validateConversion(cmd.Context(), formatter, flags, db, path, root, c, model)
	return outputValidate(formatter, result, err)
}

// validateConversion runs the validator for c, emitted into root, against
// model and records the outcome when db is set. A disagreement is returned as the error
// together with a result describing it.
func validateConversion(ctx context.Context, formatter *OutputFormatter, flags validateFlags, db, path, root string, c *conversion, model *toolchain.Model) (*ValidateResult, error) {
	v := &validate.Validator{
		Program: model,
		Oracle: &oracle.Command{
			Python:      flags.Python,
			Script:      flags.Script,
			Document:    c.Loaded.Document.Bytes(),
			Measurement: c.Loaded.Workspace.Config.Measurement,
			Logf:        formatter.VerboseLog,
		},
		Expected:  validate.ExpectedFrom(c.Converter, c.Program),
		Perturb:   validate.NewPerturber(flags.Scale, flags.Seed),
		Tolerance: flags.Tolerance,
		Logf:      formatter.VerboseLog,
	}
	result := &ValidateResult{Root: root, Seed: flags.Seed, Scale: flags.Scale, Tolerance: flags.Tolerance}

	report, runErr := v.Run(ctx)
	var ve *validate.ValidationError
	switch {
	case runErr == nil:
		result.Passed = true
		result.Names = report.Names
		result.ProgramDelta, result.OracleDelta = validate.Delta(report.ProgramDelta), validate.Delta(report.OracleDelta)
		result.Points = report.Points
	case errors.As(runErr, &ve):
		result.Code, result.Message = ve.Code, ve.Message
		result.ProgramDelta, result.OracleDelta = validate.Delta(ve.ProgramDelta), validate.Delta(ve.OracleDelta)
		result.Points = ve.Points
	default:
		return nil, runErr
	}

	if db != "" {
		rec, err := withStore(db, func(st *store.Store) (*store.Validation, error) {
			return recordValidation(ctx, st, path, c, root, result)
		})
		if err != nil {
			// The outcome still stands when it cannot be recorded.
			result.History = err.Error()
			return result, runErr
		}
		result.runID = rec.ID
		formatter.VerboseLog("Recorded validation %s in %s", rec.ID, db)
	}
	return result, runErr
}

func recordValidation(ctx context.Context, st *store.Store, path string, c *conversion, root string, result *ValidateResult) (*store.Validation, error) {
	conv, err := conversionFor(ctx, st, path, c, root)
	if err != nil {
		return nil, err
	}
	points, err := json.Marshal(result.Points)
	if err != nil {
		return nil, fmt.Errorf("marshal points: %w", err)
	}
	rec := &store.Validation{
		ConversionID: conv.ID,
		Passed:       result.Passed,
		Code:         result.Code,
		Message:      result.Message,
		ProgramDelta: result.ProgramDelta,
		OracleDelta:  result.OracleDelta,
		Points:       points,
		Seed:         result.Seed,
		Scale:        result.Scale,
		Tolerance:    result.Tolerance,
	}
	if err := st.WriteValidation(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// outputValidate reports a validation outcome. err is the error returned
// alongside result, if any.
func outputValidate(formatter *OutputFormatter, result *ValidateResult, err error) error {
	if result == nil {
		return fail(formatter, err)
	}
	warnUnrecorded(formatter, result)
	if !result.Passed {
		if werr := formatter.Error(result.Code, result.Message, result); werr != nil {
			return WrapExitError(ExitCommandError, "report validation", werr)
		}
		exit := ExitFailure
		if result.Code == validate.ErrCodeEval {
			exit = ExitCommandError
		}
		return WrapExitError(exit, result.Code, err)
	}
	if formatter.Format == "json" {
		return formatter.SuccessRun(result, result.runID)
	}
	fmt.Fprintf(formatter.Writer, "✓ Validated %s: %d sampled name(s) agree\n", result.Root, len(result.Names))
	fmt.Fprintf(formatter.Writer, "  Δprogram=%.12g Δoracle=%.12g (seed %d, scale %g, tolerance %g)\n",
		result.ProgramDelta, result.OracleDelta, result.Seed, result.Scale, result.Tolerance)
	return nil
}

// warnUnrecorded tells a text reader that the history write failed; JSON
// readers find it in history_error.
func warnUnrecorded(formatter *OutputFormatter, result *ValidateResult) {
	if result.History != "" && formatter.Format != "json" {
		fmt.Fprintf(formatter.GetErrWriter(), "warning: validation not recorded: %s\n", result.History)
	}
}
