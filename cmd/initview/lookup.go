package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpietro40/jira-initiative-viewer/internal/jira"
	"github.com/mpietro40/jira-initiative-viewer/internal/types"
)

func newLookupCmd(a *app) *cobra.Command {
	var jql string
	var details bool

	cmd := &cobra.Command{
		Use:   "lookup [KEY|URL]...",
		Short: "Fetch issues by key, browse URL, or JQL",
		Long: `Fetches issues by key or browse URL, or everything matched by --jql up to
fetch.max_results. With --details each issue is re-read individually so the
risk field is resolved.

Examples:
  initview lookup PORT-12 https://jira.example.com/browse/PAY-7
  initview lookup --jql 'project = PAY AND fixVersion = R24.1' -o yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jql == "" && len(args) == 0 {
				return errors.New("give issue keys or --jql")
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			var issues []types.IssueRef
			var err error
			if jql != "" {
				issues, err = a.client.FetchIssues(ctx, jql, a.cfg.Fetch.MaxResults)
			} else {
				keys := make([]string, 0, len(args))
				for _, arg := range args {
					if k := jira.ExtractKey(arg); k != "" {
						arg = k
					}
					keys = append(keys, arg)
				}
				issues, err = a.client.FetchByKeys(ctx, keys)
			}
			if err != nil {
				if len(issues) == 0 {
					return fmt.Errorf("lookup: %w", err)
				}
				a.logger.Warn("lookup incomplete", "fetched", len(issues), "err", err)
			}

			if details {
				keys := make([]string, len(issues))
				for i, is := range issues {
					keys[i] = is.Key
				}
				issues = a.resolver.ResolveAll(ctx, keys)
			}

			w := cmd.OutOrStdout()
			if done, err := encode(w, a.output, issues); done {
				return err
			}
			for _, is := range issues {
				fmt.Fprintf(w, "%s  %s  %s\n", issueLine(is), is.Type, strings.Join(is.FixMarkers, ","))
				fmt.Fprintf(w, "    %s\n", jira.BrowseURL(a.cfg.Jira.URL, is.Key))
			}
			if len(issues) == 0 {
				fmt.Fprintln(w, "No issues found.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jql, "jql", "", "JQL query instead of keys")
	cmd.Flags().BoolVar(&details, "details", false, "Resolve each issue individually, including risk")
	return cmd
}
