package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zapdash",
		Short: "Back-end for a DAST scan dashboard",
		Long: `zapdash launches baseline scans on a remote ZAP service, tracks them while a
dashboard is open, stores finished reports and serves them formatted for display.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to a config file (default: search the XDG config dir)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewFormatCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
