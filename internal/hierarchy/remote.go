// Package hierarchy builds Initiative → Feature → Sub-Feature → Epic trees.
//
// Builder walks top-down, keeping only Features and Sub-Features that carry
// a release marker. Analyzer walks bottom-up from work scheduled in open
// sprints and reports which ancestors still lack the marker.
//
// Both are single-threaded: every request is issued and awaited before the
// next one starts. Per-parent failures are logged and contribute no children;
// only a failed seed query is returned as an error.
package hierarchy

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mpietro40/jira-initiative-viewer/internal/jira"
	"github.com/mpietro40/jira-initiative-viewer/internal/types"
)

const scopeName = "github.com/mpietro40/jira-initiative-viewer/hierarchy"

// Result caps per query.
const (
	DefaultInitiativeMax = 100
	MaxChildren          = 200 // Features per Initiative, Sub-Features per Feature
	MaxEpics             = 500
	MaxLeavesPerEpic     = 100
)

// Searcher runs paginated JQL searches. See jira.Client.FetchIssues for the
// partial-result contract.
type Searcher interface {
	FetchIssues(ctx context.Context, jql string, maxResults int) ([]types.IssueRef, error)
}

// DetailResolver resolves a key into a display record and never fails.
type DetailResolver interface {
	Resolve(ctx context.Context, key string) types.IssueRef
}

// ParentFinder looks up the immediate parent of an issue, first through the
// structural link and then through a parent query.
type ParentFinder interface {
	GetParent(ctx context.Context, key string) (*jira.ParentLink, error)
	FindParent(ctx context.Context, key string) (*jira.ParentLink, error)
}

// Remote is everything the backward trace needs from the tracker.
type Remote interface {
	Searcher
	ParentFinder
}

// childrenOf returns the children of parentKey with the given type, restricted
// to marker when it is non-empty. Errors are logged and whatever was fetched
// is returned.
func childrenOf(ctx context.Context, s Searcher, logger *slog.Logger, parentKey string, it types.IssueType, marker string, limit int) []types.IssueRef {
	jql := jira.ChildrenOfType(parentKey, string(it))
	if marker != "" {
		jql = jira.WithFixVersion(jql, marker)
	}
	issues, err := s.FetchIssues(ctx, jql, limit)
	if err != nil {
		logger.Error("child query failed", "key", parentKey, "type", it, "jql", jql, "fetched", len(issues), "err", err)
	}
	return issues
}

// Areas returns the distinct owning areas of every Epic in roots, sorted.
func Areas(roots []*types.InitiativeNode) []string {
	seen := map[string]bool{}
	for _, in := range roots {
		for _, f := range in.Features {
			for _, sf := range f.SubFeatures {
				for _, a := range sf.Areas {
					seen[a] = true
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
