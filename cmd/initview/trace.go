package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mpietro40/jira-initiative-viewer/internal/hierarchy"
	"github.com/mpietro40/jira-initiative-viewer/internal/types"
	"github.com/mpietro40/jira-initiative-viewer/internal/ui"
)

func newTraceCmd(a *app) *cobra.Command {
	var query, release string
	var limit int

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Find Features and Sub-Features with sprint work but no release marker",
		Long: `Starts from Stories, Tasks, and Subtasks in open sprints under the
Initiatives matched by --query, climbs Epic → Sub-Feature → Feature, and
reports which ancestors still lack the --release fix version.

An Epic whose parent is missing or is not a Sub-Feature is reported as a
failed trace and skipped; the rest of the run continues.

Examples:
  initview trace --query 'issuetype = "Business Initiative"' --release R24.1
  initview trace -Q 'project = PORT' -r R24.1 --limit 10 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			an := hierarchy.NewAnalyzer(a.client, a.resolver, a.logger)
			an.InitiativeMax = a.cfg.Trace.InitiativeMax
			an.CompletedStatuses = a.cfg.Trace.CompletedStatuses

			res, err := an.Analyze(ctx, query, release, limit)
			return a.reportTrace(cmd.OutOrStdout(), res, err)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "Q", "", "JQL selecting the Initiatives (required)")
	cmd.Flags().StringVarP(&release, "release", "r", "", "Release fix version to check for (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Analyze at most this many Initiatives (0 for no limit)")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("release")
	return cmd
}

// reportTrace prints whatever the analyzer produced. Once the seed query has
// returned Initiatives, a later failure (usually the deadline) still prints
// the sets gathered so far.
func (a *app) reportTrace(w io.Writer, res *types.TraceResult, err error) error {
	if err != nil && (res == nil || res.OriginalCount == 0) {
		return fmt.Errorf("trace: %w", err)
	}
	if err != nil {
		a.logger.Warn("trace incomplete, printing partial result", "err", err)
	}
	if done, encErr := encode(w, a.output, res); done {
		return encErr
	}
	if err != nil {
		fmt.Fprintf(w, "%s\n", ui.RenderFail("Incomplete: "+err.Error()))
	}
	renderTrace(w, res)
	return nil
}

func renderTrace(w io.Writer, res *types.TraceResult) {
	s := res.Summary
	if res.Limited {
		fmt.Fprintf(w, "Limited to %d of %d initiatives.\n", len(res.Initiatives), res.OriginalCount)
	}
	fmt.Fprintf(w, "Active leaves: %d across %d epics\n", s.ActiveLeaves, s.EpicsWithActiveWork)
	fmt.Fprintf(w, "Traces: %d succeeded, %d failed\n", s.TracesSucceeded, s.TracesFailed)

	section := func(title string, refs []types.IssueRef) {
		fmt.Fprintf(w, "\n%s (%d)\n", ui.RenderSection(title), len(refs))
		for _, ref := range refs {
			fmt.Fprintf(w, "  %s\n", issueLine(ref))
		}
	}
	section("Features needing "+res.ReleaseMarker, sortedRefs(res.FeaturesNeedingMarker))
	section("Sub-Features needing "+res.ReleaseMarker, sortedRefs(res.SubFeaturesNeedingMarker))
	section("Features already marked", sortedRefs(res.FeaturesAlreadyMarked))
	section("Sub-Features already marked", sortedRefs(res.SubFeaturesAlreadyMarked))

	if len(res.Failures) > 0 {
		fmt.Fprintf(w, "\n%s (%d)\n", ui.RenderSection("Failed traces"), len(res.Failures))
		for _, f := range res.Failures {
			fmt.Fprintf(w, "  %s via %s [%s]: %s\n", ui.RenderKey(f.EpicKey), f.Key, f.Stage, ui.RenderFail(f.Reason))
		}
	}

	fmt.Fprintf(w, "\n%s\n", ui.RenderSeparator())
	renderTree(w, res.Initiatives, res.ReleaseMarker)
}
