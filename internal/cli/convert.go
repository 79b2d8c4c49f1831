package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/store"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	sourceFlags
	Output   string // output root; derived from the workspace when empty
	Force    bool
	Plain    bool
	Database string
	Watch    bool
}

// ConvertResult describes one conversion.
type ConvertResult struct {
	Root     string          `json:"root"`
	Program  string          `json:"program"`
	Data     string          `json:"data"`
	Init     string          `json:"init"`
	Hash     string          `json:"program_hash"`
	Written  []string        `json:"written"`
	Skipped  []string        `json:"skipped"`
	Summary  convert.Summary `json:"summary"`
	Warnings []ir.Warning    `json:"warnings"`

	runID string
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <workspace.json>",
		Short: "Convert a workspace into a Stan program",
		Long: `Convert a HistFactory workspace into a Stan program, a data card and an
init card. Outputs are named after the workspace (and the applied patch)
unless --output is given. Existing outputs newer than every input are left
alone unless --force is given.

Example:
  stanhf convert simple.json
  stanhf convert bkg.json --patch patchset.json --patch-name mass_200
  stanhf convert simple.json --watch --db stanhf.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, args[0], cmd)
		},
	}

	opts.sourceFlags.bind(cmd)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output root (default: the workspace name)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite outputs even when they are up to date")
	cmd.Flags().BoolVar(&opts.Plain, "plain", false, "omit provenance comments")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the conversion in this SQLite database")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "convert again whenever an input changes")

	return cmd
}

func runConvert(opts *ConvertOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	settings, err := settingsFor(opts.fs(), path)
	if err != nil {
		return failCode(formatter, ErrCodeSettings, err)
	}
	db := pick(cmd.Flags().Changed("db"), opts.Database, settings.Database)

	if !opts.Watch {
		result, _, err := convertOnce(cmd.Context(), opts, formatter, path, db)
		if err != nil {
			return fail(formatter, err)
		}
		return outputConvert(formatter, result)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src := opts.source(path)
	inputs := []string{src.Workspace}
	if src.Patch != "" {
		inputs = append(inputs, src.Patch)
	}
	w, err := newInputWatcher(inputs)
	if err != nil {
		return failCode(formatter, ErrCodeWatch, err)
	}
	defer w.Close()

	once := func() {
		result, _, err := convertOnce(ctx, opts, formatter, path, db)
		if err != nil {
			// A broken input is reported and watching continues.
			_ = fail(formatter, err)
			return
		}
		_ = outputConvert(formatter, result)
	}
	once()
	formatter.VerboseLog("Watching %v", inputs)
	if err := w.Run(ctx, once); err != nil {
		return failCode(formatter, ErrCodeWatch, err)
	}
	return nil
}

// convertOnce converts, emits and, when db is set, records one conversion.
func convertOnce(ctx context.Context, opts *ConvertOptions, formatter *OutputFormatter, path, db string) (*ConvertResult, *conversion, error) {
	formatter.VerboseLog("Converting %s", path)
	c, err := convertSource(opts.fs(), opts.source(path), opts.Plain)
	if err != nil {
		return nil, nil, err
	}
	root := opts.Output
	if root == "" {
		root = c.Root()
	}

	emitter := &convert.Emitter{Fs: opts.fs(), Force: opts.Force}
	emitted, err := emitter.Emit(root, c.Loaded.Files, c.Program)
	if err != nil {
		return nil, nil, err
	}

	program, data, init := convert.Paths(root)
	result := &ConvertResult{
		Root:     root,
		Program:  program,
		Data:     data,
		Init:     init,
		Hash:     c.Program.Hash,
		Written:  emitted.Written,
		Skipped:  emitted.Skipped,
		Summary:  c.Program.Summary,
		Warnings: slices.Concat(c.Program.Warnings, emitted.Warnings),
	}
	for _, f := range emitted.Written {
		formatter.VerboseLog("Wrote %s", f)
	}

	if db != "" {
		rec, err := withStore(db, func(st *store.Store) (*store.Conversion, error) {
			return recordConversion(ctx, st, path, c, root, emitted.Written, result.Warnings)
		})
		if err != nil {
			return nil, nil, err
		}
		result.runID = rec.ID
		formatter.VerboseLog("Recorded conversion %s in %s", rec.ID, db)
	}
	return result, c, nil
}

// withStore opens the history database for the duration of fn.
func withStore[T any](path string, fn func(*store.Store) (T, error)) (T, error) {
	var zero T
	st, err := store.Open(path)
	if err != nil {
		return zero, fmt.Errorf("[%s] %w", ErrCodeHistory, err)
	}
	defer st.Close()
	out, err := fn(st)
	if err != nil {
		return zero, fmt.Errorf("[%s] %w", ErrCodeHistory, err)
	}
	return out, nil
}

func outputConvert(formatter *OutputFormatter, result *ConvertResult) error {
	formatter.Warnings(result.Warnings)
	if formatter.Format == "json" {
		return formatter.SuccessRun(result, result.runID)
	}

	s := result.Summary
	fmt.Fprintf(formatter.Writer, "✓ Converted %s: %d channel(s), %d sample(s), %d modifier(s) (%d null)\n",
		result.Root, s.Channels, s.Samples, s.Modifiers, s.NullModifiers)
	if s.POI != "" {
		fmt.Fprintf(formatter.Writer, "  parameter of interest: %s\n", s.POI)
	}
	fmt.Fprintf(formatter.Writer, "  %d sampled, %d fixed, %d null parameter(s); %d shared data block(s)\n",
		len(s.Parameters.Sampled), len(s.Parameters.Fixed), len(s.Parameters.Null), s.SharedBlocks)
	for _, f := range result.Written {
		fmt.Fprintf(formatter.Writer, "  wrote %s\n", f)
	}
	for _, f := range result.Skipped {
		fmt.Fprintf(formatter.Writer, "  kept %s\n", f)
	}
	return nil
}
