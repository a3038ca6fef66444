package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/pkg/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "clipforge",
	Short: "ClipForge render pipeline",
	Long: `ClipForge - a plan-to-render pipeline for short-form vertical video

ClipForge watches a directory for JSON editing plans, validates them
against their source assets, compiles each plan into a deterministic
ffmpeg filter graph, renders the result, and publishes the output
atomically. A small read-only API exposes job status.

Features:
  • Plan validation with full violation reporting
  • Cut timeline resolution with instruction remapping
  • Deterministic filter graph compilation (captions, effects, BGM, ducking)
  • Bounded render concurrency with transient-failure retries
  • Per-asset supersede: a newer plan cancels older in-flight renders`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates a new root command (exported for testing)
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	cobra.OnInitialize(loadConfig)

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// loadConfig loads the configuration when a command needs it
func loadConfig() {
	cmd, _, _ := rootCmd.Find(os.Args[1:])
	if cmd != nil && (cmd.Name() == "version" || cmd.Name() == "help") {
		return
	}

	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}
