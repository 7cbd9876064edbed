// Package detail resolves single issues into display records.
//
// A Resolver never fails: when an issue cannot be fetched it returns a
// placeholder record carrying the key, so one missing detail never aborts a
// larger traversal.
package detail

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mpietro40/jira-initiative-viewer/internal/jira"
	"github.com/mpietro40/jira-initiative-viewer/internal/types"
)

// IssueGetter fetches one issue with its field-name dictionary.
type IssueGetter interface {
	GetIssue(ctx context.Context, key string) (*jira.Issue, error)
}

// Resolver turns issue keys into normalized IssueRefs.
type Resolver struct {
	client IssueGetter
	logger *slog.Logger

	// Instances whose field dictionary has several risk-like fields resolve
	// to whichever comes first; warn once per resolver rather than per issue.
	ambiguityOnce sync.Once
}

// NewResolver creates a Resolver. A nil logger discards output.
func NewResolver(client IssueGetter, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{client: client, logger: logger}
}

// Resolve fetches key and normalizes it. On any failure it returns
// types.PlaceholderIssue(key).
func (r *Resolver) Resolve(ctx context.Context, key string) types.IssueRef {
	issue, err := r.client.GetIssue(ctx, key)
	if err != nil {
		r.logger.Warn("failed to fetch issue details", "key", key, "err", err)
		return types.PlaceholderIssue(key)
	}
	if issue == nil {
		r.logger.Warn("empty issue response", "key", key)
		return types.PlaceholderIssue(key)
	}

	id, ambiguous, ok := jira.FindRiskField(issue.Names)
	switch {
	case !ok:
		r.logger.Debug("no risk field found", "key", key)
	case ambiguous:
		r.ambiguityOnce.Do(func() {
			r.logger.Warn("several risk fields match, using the first in dictionary order",
				"key", key, "field", id)
		})
	}

	ref := jira.Normalize(issue, issue.Names)
	if ref.Key == "" {
		ref.Key = key
	}
	r.logger.Debug("resolved issue", "key", key, "type", ref.Type, "risk", int(ref.RiskLevel))
	return ref
}

// ResolveAll resolves keys in order. The result has one entry per key.
func (r *Resolver) ResolveAll(ctx context.Context, keys []string) []types.IssueRef {
	out := make([]types.IssueRef, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.Resolve(ctx, k))
	}
	return out
}
