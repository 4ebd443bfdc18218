// Package cmd is the registry's CLI surface: a cobra root command
// plus a serve subcommand that wires C1-C11 into a running process.
//
// Grounded on _examples/bnema-gordon's cmd package: a root.go holding
// rootCmd and Execute, with each subcommand registering itself in its
// own file's init. Replaces the teacher's flag-parsed cmd/ocisrv
// entrypoint.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "registryd",
	Short: "OCI Distribution v2 registry over a content-addressed remote store",
	Long: `registryd serves the OCI Distribution v2 HTTP API against a local
staging store that asynchronously promotes pushed content to a
remote, content-addressed pinning backend.`,
}

// Execute runs the CLI, dispatching to whichever subcommand was
// invoked.
func Execute() error {
	return rootCmd.Execute()
}
