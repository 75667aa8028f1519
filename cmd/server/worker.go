package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/isdmx/execbox/sandbox"
)

var workerCmd = &cobra.Command{
	Use:    sandbox.WorkerCommand,
	Short:  "Run one sandboxed execution read from stdin",
	Hidden: true,
	Args:   cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		os.Exit(sandbox.RunWorker(os.Stdin, os.Stdout, os.Stderr))
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
