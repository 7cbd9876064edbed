package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpietro40/jira-initiative-viewer/internal/jira"
)

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity and credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			if err := a.client.Ping(ctx); err != nil {
				if jira.IsAuthError(err) {
					return fmt.Errorf("authentication failed for %s: check jira.token and jira.username", a.cfg.Jira.URL)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s\n", a.cfg.Jira.URL)
			return nil
		},
	}
}
