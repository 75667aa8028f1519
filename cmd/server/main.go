// Command execbox runs the sandboxed JavaScript execution service.
//
// "execbox serve" starts the HTTP API (and the MCP tool server when enabled).
// The hidden "execbox sandbox-worker" subcommand is the child process the
// process and container backends launch for every execution.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "execbox",
	Short: "execbox - sandboxed JavaScript execution service",
	Long: `execbox executes untrusted JavaScript snippets in an isolated, time-bounded
sandbox and returns their console output over HTTP.

Configuration is read from config.yaml (or --config) and EXECBOX_* environment
variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file (default: ./config.yaml or ./config/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
