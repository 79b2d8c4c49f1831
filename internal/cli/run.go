package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	ConvertOptions
	validateFlags
}

// RunResult is the outcome of convert, build and validate.
type RunResult struct {
	Convert  *ConvertResult  `json:"convert"`
	Build    BuildResult     `json:"build"`
	Validate *ValidateResult `json:"validate"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{ConvertOptions: ConvertOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "run <workspace.json>",
		Short: "Convert, build and validate in one step",
		Long: `Convert a workspace, build the program with CmdStan and validate it
against pyhf. On success a command line for sampling the model is printed.

Example:
  stanhf run simple.json --cmdstan ~/cmdstan
  stanhf run bkg.json --patch patchset.json --patch-index 0 --db stanhf.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, args[0], cmd)
		},
	}

	opts.sourceFlags.bind(cmd)
	opts.validateFlags.bind(cmd)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output root (default: the workspace name)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite outputs even when they are up to date")
	cmd.Flags().BoolVar(&opts.Plain, "plain", false, "omit provenance comments")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the conversion and validation in this SQLite database")

	return cmd
}

func runRun(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	settings, err := settingsFor(opts.fs(), path)
	if err != nil {
		return failCode(formatter, ErrCodeSettings, err)
	}
	flags := opts.validateFlags.resolve(cmd, settings)
	db := pick(cmd.Flags().Changed("db"), opts.Database, settings.Database)

	converted, c, err := convertOnce(ctx, &opts.ConvertOptions, formatter, path, db)
	if err != nil {
		return fail(formatter, err)
	}
	formatter.Warnings(converted.Warnings)

	model, err := buildRoot(cmd, formatter, flags.CmdStan, settings.Make, converted.Root)
	if err != nil {
		return fail(formatter, err)
	}

	validated, err := validateConversion(ctx, formatter, flags, db, path, converted.Root, c, model)
	if err != nil || !validated.Passed {
		return outputValidate(formatter, validated, err)
	}

	warnUnrecorded(formatter, validated)

	result := RunResult{
		Convert:  converted,
		Build:    BuildResult{Executable: model.Exe, Program: model.Source, Sample: model.SampleCommand()},
		Validate: validated,
	}
	if formatter.Format == "json" {
		return formatter.SuccessRun(result, validated.runID)
	}
	fmt.Fprintf(formatter.Writer, "✓ Converted %s\n", converted.Root)
	fmt.Fprintf(formatter.Writer, "✓ Built %s\n", model.Exe)
	fmt.Fprintf(formatter.Writer, "✓ Validated: Δprogram=%.12g Δoracle=%.12g\n", validated.ProgramDelta, validated.OracleDelta)
	fmt.Fprintf(formatter.Writer, "\nSample with:\n  %s\n", result.Build.Sample)
	return nil
}
