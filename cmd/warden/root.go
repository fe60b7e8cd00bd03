package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - moderating proxy for streaming AI APIs",
	Long: `Warden relays server-sent event streams from an upstream AI provider
while moderating them in flight.

Each streamed event is scored against a per-profile classifier; violating
events are redacted before they reach the client. Sampled traffic is stored
and periodically retrained into fresh classifiers that are hot-swapped
without interrupting live streams.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (built-in defaults when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
