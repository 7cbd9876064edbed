package hierarchy

import (
	"testing"

	"github.com/mpietro40/jira-initiative-viewer/internal/detail"
	"github.com/mpietro40/jira-initiative-viewer/internal/jira"
	"github.com/mpietro40/jira-initiative-viewer/internal/jira/jiratest"
)

const (
	seedQuery = `issuetype = "Business Initiative" AND project = PORT`
	release   = "R24.1"
)

// tracker wires a mock server to a real client and resolver.
type tracker struct {
	srv      *jiratest.Server
	client   *jira.Client
	resolver *detail.Resolver
}

func newTracker(t *testing.T) *tracker {
	t.Helper()
	srv := jiratest.NewServer()
	t.Cleanup(srv.Close)
	client := jira.NewClient(srv.URL, "", "test-token").WithPolicy(jira.FetchPolicy{MaxRetries: 1})
	return &tracker{srv: srv, client: client, resolver: detail.NewResolver(client, nil)}
}

func (tr *tracker) issue(key, typ, status, parent, parentType string, markers ...string) {
	tr.srv.AddIssue(jiratest.Issue{
		Key:         key,
		Type:        typ,
		Summary:     "Summary of " + key,
		Status:      status,
		FixVersions: markers,
		Parent:      parent,
		ParentType:  parentType,
	})
}

func (tr *tracker) children(parent, typ string, keys ...string) {
	tr.srv.SetSearch(jira.ChildrenOfType(parent, typ), keys...)
}

func (tr *tracker) markedChildren(parent, typ string, keys ...string) {
	tr.srv.SetSearch(jira.WithFixVersion(jira.ChildrenOfType(parent, typ), release), keys...)
}

// forwardScenario: three Initiatives, each with one marked Feature, one
// marked Sub-Feature, and two Epics in the PAY and CORE areas.
func forwardScenario(t *testing.T) *tracker {
	tr := newTracker(t)
	var seeds []string
	for _, n := range []string{"1", "2", "3"} {
		initKey, featKey, sfKey := "PORT-"+n, "FEAT-"+n, "SUB-"+n
		seeds = append(seeds, initKey)

		tr.issue(initKey, "Business Initiative", "In Progress", "", "")
		tr.issue(featKey, "Feature", "In Progress", initKey, "Business Initiative", release)
		tr.issue(sfKey, "Sub-Feature", "Open", featKey, "Feature", release)
		tr.issue("PAY-"+n, "Epic", "Open", sfKey, "Sub-Feature")
		tr.issue("CORE-"+n, "Epic", "Open", sfKey, "Sub-Feature")

		tr.markedChildren(initKey, "Feature", featKey)
		tr.markedChildren(featKey, "Sub-Feature", sfKey)
		tr.children(sfKey, "Epic", "PAY-"+n, "CORE-"+n)
	}
	tr.srv.SetSearch(seedQuery, seeds...)
	return tr
}

// traceScenario covers each backward-trace path:
//
//	PORT-1 → FEAT-1 → SUB-1 → PAY-1 (STORY-1, STORY-2), CORE-1 (STORY-2 again)
//	       → FEAT-9 (Done)
//	PORT-2 → FEAT-2 [marked] → SUB-2 [marked] → PAY-2 (TASK-1)
//	PORT-3 → FEAT-3 → SUB-3 → CORE-3 (STORY-3, no parent link)
//	                        → PAY-3 (STORY-4, parent is a Feature)
func traceScenario(t *testing.T) *tracker {
	tr := newTracker(t)

	tr.issue("PORT-1", "Business Initiative", "In Progress", "", "")
	tr.issue("PORT-2", "Business Initiative", "In Progress", "", "")
	tr.issue("PORT-3", "Business Initiative", "In Progress", "", "")
	tr.srv.SetSearch(seedQuery, "PORT-1", "PORT-2", "PORT-3")

	tr.issue("FEAT-1", "Feature", "In Progress", "PORT-1", "Business Initiative")
	tr.issue("FEAT-9", "Feature", "Done", "PORT-1", "Business Initiative")
	tr.issue("SUB-1", "Sub-Feature", "Open", "FEAT-1", "Feature")
	tr.issue("PAY-1", "Epic", "Open", "SUB-1", "Sub-Feature")
	tr.issue("CORE-1", "Epic", "Open", "SUB-1", "Sub-Feature")
	tr.issue("STORY-1", "Story", "In Progress", "", "")
	tr.issue("STORY-2", "Story", "In Progress", "", "")
	tr.children("PORT-1", "Feature", "FEAT-1", "FEAT-9")
	tr.children("FEAT-1", "Sub-Feature", "SUB-1")
	tr.children("SUB-1", "Epic", "PAY-1", "CORE-1")
	tr.srv.SetSearch(jira.ActiveLeavesOf("PAY-1"), "STORY-1", "STORY-2")
	tr.srv.SetSearch(jira.ActiveLeavesOf("CORE-1"), "STORY-2")

	tr.issue("FEAT-2", "Feature", "In Progress", "PORT-2", "Business Initiative", release)
	tr.issue("SUB-2", "Sub-Feature", "Open", "FEAT-2", "Feature", " "+release+" ", "R23.4")
	tr.issue("PAY-2", "Epic", "Open", "SUB-2", "Sub-Feature")
	tr.issue("TASK-1", "Task", "In Progress", "", "")
	tr.children("PORT-2", "Feature", "FEAT-2")
	tr.children("FEAT-2", "Sub-Feature", "SUB-2")
	tr.children("SUB-2", "Epic", "PAY-2")
	tr.srv.SetSearch(jira.ActiveLeavesOf("PAY-2"), "TASK-1")

	tr.issue("FEAT-3", "Feature", "In Progress", "PORT-3", "Business Initiative")
	tr.issue("SUB-3", "Sub-Feature", "Open", "FEAT-3", "Feature")
	tr.issue("CORE-3", "Epic", "Open", "", "")
	tr.issue("PAY-3", "Epic", "Open", "FEAT-3", "Feature")
	tr.issue("STORY-3", "Story", "In Progress", "", "")
	tr.issue("STORY-4", "Story", "In Progress", "", "")
	tr.children("PORT-3", "Feature", "FEAT-3")
	tr.children("FEAT-3", "Sub-Feature", "SUB-3")
	tr.children("SUB-3", "Epic", "CORE-3", "PAY-3")
	tr.srv.SetSearch(jira.ActiveLeavesOf("CORE-3"), "STORY-3")
	tr.srv.SetSearch(jira.ActiveLeavesOf("PAY-3"), "STORY-4")
	tr.srv.SetSearch(jira.ParentIssuesOf("CORE-3"), "SUB-3")

	return tr
}
