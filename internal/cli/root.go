// Package cli implements the certswap command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "certswap",
	Short: "Hot-reloadable TLS credential server for gRPC",
	Long: `Hot-reloadable TLS credential server for gRPC.

certswap serves gRPC behind TLS credentials that are swapped at runtime:
when the configured ssl bundle's material changes on disk (or in the SPIFFE
Workload API), every new handshake uses the updated certificates while
in-flight connections are unaffected.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(versionCmd)
}
