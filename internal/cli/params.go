package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stanhf/internal/convert"
)

// ParamsOptions holds flags for the params command.
type ParamsOptions struct {
	*RootOptions
	sourceFlags
	Sizes bool
}

// ParamsResult lists a workspace's parameters.
type ParamsResult struct {
	convert.ParNames
	Sizes []convert.ParameterSize `json:"sizes,omitempty"`
}

// NewParamsCommand creates the params command.
func NewParamsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParamsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "params <workspace.json>",
		Short: "List sampled, fixed and null parameters",
		Long: `List the parameters of a workspace as the generated program treats them:
sampled (the parameter of interest included), fixed (supplied as data) and
null (every modifier has no effect, so the parameter is not declared).

Example:
  stanhf params simple.json
  stanhf params bkg.json --patch patchset.json --patch-index 2 --sizes`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParams(opts, args[0], cmd)
		},
	}

	opts.sourceFlags.bind(cmd)
	cmd.Flags().BoolVar(&opts.Sizes, "sizes", false, "also list every parameter with its element count")

	return cmd
}

func runParams(opts *ParamsOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	c, err := convertSource(opts.fs(), opts.source(path), true)
	if err != nil {
		return fail(formatter, err)
	}
	result := ParamsResult{ParNames: c.Converter.ParNames()}
	if opts.Sizes {
		result.Sizes = c.Converter.ParameterSizes()
	}

	formatter.Warnings(c.Program.Warnings)
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	for _, group := range []struct {
		label string
		names []string
	}{
		{"sampled", result.Sampled},
		{"fixed", result.Fixed},
		{"null", result.Null},
	} {
		fmt.Fprintf(formatter.Writer, "%s: %s\n", group.label, strings.Join(group.names, " "))
	}
	if opts.Sizes {
		fmt.Fprintln(formatter.Writer, "sizes:")
		for _, s := range result.Sizes {
			fmt.Fprintf(formatter.Writer, "  %s %d\n", s.Name, s.Size)
		}
	}
	return nil
}
