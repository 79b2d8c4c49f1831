// Command stanhf converts HistFactory workspaces into Stan programs.
package main

import (
	"os"

	"github.com/roach88/stanhf/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
