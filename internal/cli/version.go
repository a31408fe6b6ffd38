package cli

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set via -ldflags at release builds; dev builds fall back to
// module build info.
var version = ""

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the certswap version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("certswap", resolveVersion())
	},
}

func resolveVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(unknown)"
}
