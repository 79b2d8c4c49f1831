package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stanhf/internal/toolchain"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	CmdStan string
}

// BuildResult names a built executable.
type BuildResult struct {
	Executable string `json:"executable"`
	Program    string `json:"program"`
	Sample     string `json:"sample_command"`
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build <root>",
		Short: "Build <root>.stan with CmdStan",
		Long: `Build the generated program <root>.stan into the executable <root>.
CmdStan is located with --cmdstan, the cmdstan setting in stanhf.yaml, or the
CMDSTAN environment variable. Compiler diagnostics are reported unchanged.

Example:
  stanhf build simple --cmdstan ~/cmdstan`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CmdStan, "cmdstan", "", "CmdStan installation (default: $"+toolchain.EnvCmdStan+")")

	return cmd
}

func runBuild(opts *BuildOptions, root string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	settings, err := settingsFor(opts.fs(), root)
	if err != nil {
		return failCode(formatter, ErrCodeSettings, err)
	}
	model, err := buildRoot(cmd, formatter, pick(cmd.Flags().Changed("cmdstan"), opts.CmdStan, settings.CmdStan), settings.Make, root)
	if err != nil {
		return fail(formatter, err)
	}

	result := BuildResult{Executable: model.Exe, Program: model.Source, Sample: model.SampleCommand()}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Built %s\n", result.Executable)
	fmt.Fprintf(formatter.Writer, "  %s\n", result.Sample)
	return nil
}

// buildRoot locates CmdStan and builds root with mk, "make" when empty.
func buildRoot(cmd *cobra.Command, formatter *OutputFormatter, cmdstan, mk, root string) (*toolchain.Model, error) {
	cs, err := toolchain.Locate(cmdstan)
	if err != nil {
		return nil, err
	}
	cs.Make = mk
	cs.Logf = formatter.VerboseLog
	formatter.VerboseLog("Building %s with %s", root, cs.Root)
	return cs.Build(cmd.Context(), root)
}
