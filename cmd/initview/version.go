package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version is the current version of initview (overridden by ldflags at build time)
	Version = "0.3.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "initview version %s (%s)\n", Version, Build)
		},
	}
}
