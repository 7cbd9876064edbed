package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpietro40/jira-initiative-viewer/internal/hierarchy"
	"github.com/mpietro40/jira-initiative-viewer/internal/types"
)

type forwardOutput struct {
	Query         string                  `json:"query" yaml:"query"`
	ReleaseMarker string                  `json:"release_marker" yaml:"release_marker"`
	Areas         []string                `json:"areas" yaml:"areas"`
	Initiatives   []*types.InitiativeNode `json:"initiatives" yaml:"initiatives"`
}

func newForwardCmd(a *app) *cobra.Command {
	var query, release string

	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Show the hierarchy of Features and Sub-Features in a release",
		Long: `Walks each Initiative matched by --query down to its Features and
Sub-Features carrying the --release fix version, and lists every Epic under
those Sub-Features grouped by project.

A level with no marked children ends its branch; the query is never retried
without the fix version.

Examples:
  initview forward --query 'issuetype = "Business Initiative" AND project = PORT' --release R24.1
  initview forward -Q 'key = PORT-12' -r R24.1 -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			b := hierarchy.NewBuilder(a.client, a.resolver, a.logger)
			b.InitiativeMax = a.cfg.Trace.InitiativeMax

			roots, err := b.Build(ctx, query, release)
			if err != nil {
				return fmt.Errorf("forward: %w", err)
			}

			out := forwardOutput{
				Query:         query,
				ReleaseMarker: release,
				Areas:         hierarchy.Areas(roots),
				Initiatives:   roots,
			}
			w := cmd.OutOrStdout()
			if done, err := encode(w, a.output, out); done {
				return err
			}
			if len(roots) == 0 {
				fmt.Fprintln(w, "No initiatives matched the query.")
				return nil
			}
			renderTree(w, roots, release)
			fmt.Fprintf(w, "\nAreas: %s\n", strings.Join(out.Areas, ", "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "Q", "", "JQL selecting the Initiatives (required)")
	cmd.Flags().StringVarP(&release, "release", "r", "", "Release fix version to filter by (required)")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("release")
	return cmd
}
