package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
}

// HistoryEntry is one conversion with its validations.
type HistoryEntry struct {
	Conversion  store.Conversion   `json:"conversion"`
	Validations []store.Validation `json:"validations"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [root]",
		Short: "List recorded conversions and validations",
		Long: `List the conversions recorded in a history database, oldest first,
each followed by its validation runs. A root restricts the listing to one
output root.

Example:
  stanhf history --db stanhf.db
  stanhf history --db stanhf.db ./simple`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ""
			if len(args) == 1 {
				root = args[0]
			}
			return runHistory(opts, root, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, root string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	st, err := store.Open(opts.Database)
	if err != nil {
		return failCode(formatter, ErrCodeHistory, err)
	}
	defer st.Close()

	conversions, err := st.ListConversions(ctx, root)
	if err != nil {
		return failCode(formatter, ErrCodeHistory, err)
	}
	entries := make([]HistoryEntry, 0, len(conversions))
	for _, c := range conversions {
		validations, err := st.ListValidations(ctx, c.ID)
		if err != nil {
			return failCode(formatter, ErrCodeHistory, err)
		}
		entries = append(entries, HistoryEntry{Conversion: c, Validations: validations})
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "No conversions recorded")
		return nil
	}
	for _, e := range entries {
		c := e.Conversion
		fmt.Fprintf(formatter.Writer, "%d %s %s (%s", c.Seq, c.CreatedAt.Format("2006-01-02 15:04:05"), c.Root, c.Workspace)
		if c.Patch != "" {
			fmt.Fprintf(formatter.Writer, ", patch %s", c.Patch)
		}
		fmt.Fprintf(formatter.Writer, ") program %s, %d warning(s)\n", short(c.ProgramHash), len(c.Warnings))
		for _, v := range e.Validations {
			if v.Passed {
				fmt.Fprintf(formatter.Writer, "  ✓ validated seed=%d Δprogram=%g Δoracle=%g\n", v.Seed, v.ProgramDelta, v.OracleDelta)
			} else {
				fmt.Fprintf(formatter.Writer, "  ✗ [%s] %s\n", v.Code, v.Message)
			}
		}
	}
	return nil
}

// short abbreviates a content hash for display.
func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// recordConversion records c, emitted into root, in st.
func recordConversion(ctx context.Context, st *store.Store, src string, c *conversion, root string, written []string, warnings []ir.Warning) (*store.Conversion, error) {
	doc := c.Loaded.Document
	measurement := c.Loaded.Workspace.Config.Measurement
	key, err := ir.ConversionID(doc.Hash(), measurement, c.PatchName())
	if err != nil {
		return nil, err
	}
	rec := &store.Conversion{
		Key:           key,
		Workspace:     src,
		WorkspaceHash: doc.Hash(),
		Measurement:   measurement,
		Patch:         c.PatchName(),
		Root:          root,
		ProgramHash:   c.Program.Hash,
		Summary:       c.Program.Summary,
		Warnings:      warnings,
		Written:       written,
	}
	if err := st.WriteConversion(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// conversionFor returns the latest recorded conversion of c into root with
// the same program, recording one when there is none.
func conversionFor(ctx context.Context, st *store.Store, src string, c *conversion, root string) (*store.Conversion, error) {
	recorded, err := st.ListConversions(ctx, root)
	if err != nil {
		return nil, err
	}
	for i := len(recorded) - 1; i >= 0; i-- {
		if recorded[i].ProgramHash == c.Program.Hash {
			return &recorded[i], nil
		}
	}
	return recordConversion(ctx, st, src, c, root, []string{}, c.Program.Warnings)
}
