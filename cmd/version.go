package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build variables - these will be set during build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
	OS        = runtime.GOOS
	Arch      = runtime.GOARCH
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("short", "s", false, "print just the version number")
}

func runVersion(cmd *cobra.Command, args []string) {
	short, _ := cmd.Flags().GetBool("short")

	if short {
		fmt.Fprintf(cmd.OutOrStdout(), "v%s\n", Version)
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ClipForge v%s\n", Version)
	fmt.Fprintf(cmd.OutOrStdout(), "  commit:     %s\n", GitCommit)
	fmt.Fprintf(cmd.OutOrStdout(), "  built:      %s\n", BuildTime)
	fmt.Fprintf(cmd.OutOrStdout(), "  go version: %s\n", GoVersion)
	fmt.Fprintf(cmd.OutOrStdout(), "  platform:   %s/%s\n", OS, Arch)
}
