package hierarchy

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mpietro40/jira-initiative-viewer/internal/jira"
	"github.com/mpietro40/jira-initiative-viewer/internal/telemetry"
	"github.com/mpietro40/jira-initiative-viewer/internal/types"
)

// Analyzer runs the backward trace.
type Analyzer struct {
	remote  Remote
	details DetailResolver
	logger  *slog.Logger

	// InitiativeMax is the minimum seed query size. A larger limit passed to
	// Analyze raises it.
	InitiativeMax int
	// CompletedStatuses hides finished Features and Sub-Features from the
	// display tree. Nil means types.DefaultCompletedStatuses.
	CompletedStatuses []string
}

// NewAnalyzer creates an Analyzer. A nil logger discards output.
func NewAnalyzer(remote Remote, details DetailResolver, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{remote: remote, details: details, logger: logger, InitiativeMax: DefaultInitiativeMax}
}

// traceRun holds the state of one Analyze call. Searches, details, and parent
// lookups are memoized so the display stage reuses what discovery fetched.
type traceRun struct {
	*Analyzer
	marker   string
	result   *types.TraceResult
	searches map[string][]types.IssueRef
	resolved map[string]types.IssueRef
	parents  map[string]parentLookup
}

type parentLookup struct {
	link *jira.ParentLink
	err  error
}

// Analyze traces active sprint work under the Initiatives matched by query
// back to their Sub-Features and Features, and partitions those by whether
// they already carry marker. limit > 0 truncates the seed list.
//
// The error is non-nil only when the seed query failed without returning
// anything, or when ctx ended; in the latter case the partial result is
// returned too.
func (a *Analyzer) Analyze(ctx context.Context, query, marker string, limit int) (result *types.TraceResult, err error) {
	ctx, span := telemetry.StartStage(ctx, scopeName, "trace.analyze",
		attribute.String("initview.release_marker", marker),
		attribute.Int("initview.limit", limit))
	defer func() { telemetry.EndStage(span, err) }()

	run := &traceRun{
		Analyzer: a,
		marker:   marker,
		result:   types.NewTraceResult(marker),
		searches: map[string][]types.IssueRef{},
		resolved: map[string]types.IssueRef{},
		parents:  map[string]parentLookup{},
	}

	seeds, err := run.seed(ctx, query, limit)
	if err != nil {
		return run.result, err
	}

	stages := []struct {
		name string
		fn   func(context.Context, []types.IssueRef)
	}{
		{"trace.discover_leaves", run.discoverLeaves},
		{"trace.resolve_ancestors", func(ctx context.Context, _ []types.IssueRef) { run.resolveAncestors(ctx) }},
		{"trace.display_tree", run.buildDisplayTree},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return run.result, err
		}
		sctx, sspan := telemetry.StartStage(ctx, scopeName, st.name)
		st.fn(sctx, seeds)
		telemetry.EndStage(sspan, nil)
	}

	s := run.result.Summary
	a.logger.Info("backward trace complete",
		"release", marker,
		"active_leaves", s.ActiveLeaves,
		"epics_with_active_work", s.EpicsWithActiveWork,
		"traces_succeeded", s.TracesSucceeded,
		"traces_failed", s.TracesFailed,
		"sub_features_needing_marker", len(run.result.SubFeaturesNeedingMarker),
		"features_needing_marker", len(run.result.FeaturesNeedingMarker))
	return run.result, ctx.Err()
}

// seed fetches and truncates the Initiative list.
func (r *traceRun) seed(ctx context.Context, query string, limit int) ([]types.IssueRef, error) {
	seeds, err := r.remote.FetchIssues(ctx, query, max(limit, r.InitiativeMax))
	if err != nil {
		if len(seeds) == 0 {
			return nil, fmt.Errorf("fetch initiatives: %w", err)
		}
		r.logger.Warn("initiative query incomplete, continuing with partial results",
			"jql", query, "fetched", len(seeds), "err", err)
	}
	r.result.OriginalCount = len(seeds)
	if limit > 0 && len(seeds) > limit {
		r.result.Limited = true
		seeds = seeds[:limit]
		r.logger.Info("initiatives truncated", "limit", limit, "found", r.result.OriginalCount)
	}
	r.logger.Info("processing initiatives", "count", len(seeds))
	return seeds, nil
}

// discoverLeaves walks every Epic under the seeds and collects the work items
// in open sprints. A leaf reachable from several Epics belongs to the first.
func (r *traceRun) discoverLeaves(ctx context.Context, seeds []types.IssueRef) {
	seen := map[string]bool{}
	for _, in := range seeds {
		for _, f := range r.children(ctx, in.Key, types.TypeFeature, MaxChildren) {
			for _, sf := range r.children(ctx, f.Key, types.TypeSubFeature, MaxChildren) {
				for _, epic := range r.children(ctx, sf.Key, types.TypeEpic, MaxEpics) {
					if ctx.Err() != nil {
						return
					}
					r.leavesOf(ctx, epic.Key, seen)
				}
			}
		}
	}
	r.result.Summary.ActiveLeaves = len(r.result.ActiveLeaves)
	r.result.Summary.EpicsWithActiveWork = len(r.result.EpicsWithActiveWork)
	r.logger.Info("active leaves found",
		"leaves", len(r.result.ActiveLeaves), "epics", len(r.result.EpicsWithActiveWork))
}

func (r *traceRun) leavesOf(ctx context.Context, epicKey string, seen map[string]bool) {
	jql := jira.ActiveLeavesOf(epicKey)
	leaves, err := r.remote.FetchIssues(ctx, jql, MaxLeavesPerEpic)
	if err != nil {
		r.logger.Error("active sprint query failed", "key", epicKey, "jql", jql, "err", err)
	}
	for _, leaf := range leaves {
		switch t := leaf.Type; {
		case t.IsLeaf():
		case t == types.TypeOther:
			// Bugs and custom work types are sprint work too.
			r.logger.Debug("counting unlisted type as leaf", "key", leaf.Key, "epic", epicKey)
		default:
			r.logger.Debug("skipping hierarchy item in sprint", "key", leaf.Key, "type", t, "epic", epicKey)
			continue
		}
		if seen[leaf.Key] {
			continue
		}
		seen[leaf.Key] = true
		r.result.ActiveLeaves = append(r.result.ActiveLeaves, types.ActiveLeaf{
			Key:     leaf.Key,
			Summary: leaf.Summary,
			EpicKey: epicKey,
		})
		r.result.EpicsWithActiveWork[epicKey] = true
		r.logger.Debug("active leaf", "key", leaf.Key, "epic", epicKey)
	}
}

// resolveAncestors climbs from each Epic with active work to its Sub-Feature
// and Feature, then partitions both by marker.
func (r *traceRun) resolveAncestors(ctx context.Context) {
	// Walk Epics in leaf discovery order so failures and logs are stable.
	var epics []string
	done := map[string]bool{}
	for _, leaf := range r.result.ActiveLeaves {
		if !done[leaf.EpicKey] {
			done[leaf.EpicKey] = true
			epics = append(epics, leaf.EpicKey)
		}
	}

	for _, epicKey := range epics {
		if ctx.Err() != nil {
			return
		}
		sfLink, ok := r.ancestor(ctx, epicKey, epicKey, types.TypeSubFeature, types.StageEpicParent)
		if !ok {
			r.result.Summary.TracesFailed++
			continue
		}
		r.result.Summary.TracesSucceeded++

		// An ancestor without details has an unknown marker and stays out of
		// both sets. The climb goes on since it only needs the key.
		if sf, ok := r.ancestorDetails(ctx, epicKey, sfLink.Key); ok {
			r.partition(sf, r.result.SubFeaturesAlreadyMarked, r.result.SubFeaturesNeedingMarker)
		}

		// A Sub-Feature whose Feature cannot be resolved still counts.
		featLink, ok := r.ancestor(ctx, epicKey, sfLink.Key, types.TypeFeature, types.StageSubFeatureParent)
		if !ok {
			continue
		}
		if feat, ok := r.ancestorDetails(ctx, epicKey, featLink.Key); ok {
			r.partition(feat, r.result.FeaturesAlreadyMarked, r.result.FeaturesNeedingMarker)
		}
		r.logger.Debug("traced epic", "epic", epicKey, "sub_feature", sfLink.Key, "feature", featLink.Key)
	}
	r.logger.Info("trace summary",
		"succeeded", r.result.Summary.TracesSucceeded, "failed", r.result.Summary.TracesFailed)
}

// ancestor resolves the parent of key and checks it has type want. Failures
// are recorded against epicKey.
func (r *traceRun) ancestor(ctx context.Context, epicKey, key string, want types.IssueType, stage types.TraceStage) (*jira.ParentLink, bool) {
	link, err := r.parentOf(ctx, key)
	fail := func(reason string) (*jira.ParentLink, bool) {
		r.result.Failures = append(r.result.Failures, types.TraceFailure{
			EpicKey: epicKey, Key: key, Stage: stage, Reason: reason,
		})
		r.logger.Warn("trace failed", "epic", epicKey, "key", key, "stage", stage, "reason", reason)
		return nil, false
	}
	switch {
	case err != nil:
		return fail(err.Error())
	case link == nil:
		return fail("no parent found")
	case types.ParseIssueType(link.Type) != want:
		return fail(fmt.Sprintf("parent %s is %q, not %s", link.Key, link.Type, want))
	}
	return link, true
}

// ancestorDetails resolves an ancestor, recording a failure against epicKey when only
// a placeholder comes back.
func (r *traceRun) ancestorDetails(ctx context.Context, epicKey, key string) (types.IssueRef, bool) {
	ref := r.resolve(ctx, key)
	if !ref.Placeholder {
		return ref, true
	}
	r.result.Failures = append(r.result.Failures, types.TraceFailure{
		EpicKey: epicKey, Key: key, Stage: types.StageDetails, Reason: "issue details unavailable",
	})
	r.logger.Warn("trace failed", "epic", epicKey, "key", key, "stage", types.StageDetails)
	return ref, false
}

// parentOf tries the structural parent link first and falls back to a
// parent query when the link is absent. A failed fetch of the issue itself
// does not fall back.
func (r *traceRun) parentOf(ctx context.Context, key string) (*jira.ParentLink, error) {
	if p, ok := r.parents[key]; ok {
		return p.link, p.err
	}
	link, err := r.remote.GetParent(ctx, key)
	if err == nil && link == nil {
		r.logger.Warn("no parent link, trying parent query", "key", key)
		link, err = r.remote.FindParent(ctx, key)
	}
	r.parents[key] = parentLookup{link: link, err: err}
	return link, err
}

// partition files ref by marker. The marked set wins: a key seen there is
// never left in needing.
func (r *traceRun) partition(ref types.IssueRef, marked, needing map[string]types.IssueRef) {
	if ref.HasFixMarker(r.marker) {
		marked[ref.Key] = ref
		delete(needing, ref.Key)
		r.logger.Debug("already has release marker", "key", ref.Key, "release", r.marker)
		return
	}
	if has(marked, ref.Key) {
		return
	}
	needing[ref.Key] = ref
	r.logger.Info("needs release marker", "key", ref.Key, "release", r.marker)
}

// buildDisplayTree rebuilds the unfiltered hierarchy with active-work flags.
// Completed Features and Sub-Features are left out.
func (r *traceRun) buildDisplayTree(ctx context.Context, seeds []types.IssueRef) {
	res := r.result
	for _, in := range seeds {
		if ctx.Err() != nil {
			return
		}
		node := types.NewInitiativeNode(r.resolve(ctx, in.Key))
		for _, f := range r.children(ctx, in.Key, types.TypeFeature, MaxChildren) {
			fref := r.resolve(ctx, f.Key)
			if fref.IsCompleted(r.CompletedStatuses) {
				r.logger.Debug("skipping completed feature", "key", f.Key, "status", fref.Status)
				continue
			}
			fnode := types.NewFeatureNode(fref)
			fnode.NeedsMarker = has(res.FeaturesNeedingMarker, f.Key)
			fnode.HasActiveWork = fnode.NeedsMarker || has(res.FeaturesAlreadyMarked, f.Key)
			if !node.AddFeature(fnode) {
				continue
			}

			for _, sf := range r.children(ctx, f.Key, types.TypeSubFeature, MaxChildren) {
				sfref := r.resolve(ctx, sf.Key)
				if sfref.IsCompleted(r.CompletedStatuses) {
					r.logger.Debug("skipping completed sub-feature", "key", sf.Key, "status", sfref.Status)
					continue
				}
				sfnode := types.NewSubFeatureNode(sfref)
				sfnode.NeedsMarker = has(res.SubFeaturesNeedingMarker, sf.Key)
				sfnode.HasActiveWork = sfnode.NeedsMarker || has(res.SubFeaturesAlreadyMarked, sf.Key)
				if !fnode.AddSubFeature(sfnode) {
					continue
				}
				for _, e := range r.children(ctx, sf.Key, types.TypeEpic, MaxEpics) {
					sfnode.AddEpic(&types.EpicNode{
						Issue:         r.resolve(ctx, e.Key),
						HasActiveWork: res.EpicsWithActiveWork[e.Key],
					})
				}
				if sfnode.HasActiveWork {
					res.Summary.SubFeaturesWithActiveWork++
				}
			}
			if fnode.HasActiveWork {
				res.Summary.FeaturesWithActiveWork++
			}
			res.Summary.TotalSubFeatures += len(fnode.SubFeatures)
		}
		res.Summary.TotalFeatures += len(node.Features)
		res.Initiatives = append(res.Initiatives, node)
	}
}

// children is childrenOf without a marker, memoized per run.
func (r *traceRun) children(ctx context.Context, parentKey string, it types.IssueType, limit int) []types.IssueRef {
	jql := jira.ChildrenOfType(parentKey, string(it))
	if cached, ok := r.searches[jql]; ok {
		return cached
	}
	issues := childrenOf(ctx, r.remote, r.logger, parentKey, it, "", limit)
	if ctx.Err() == nil {
		r.searches[jql] = issues
	}
	return issues
}

func (r *traceRun) resolve(ctx context.Context, key string) types.IssueRef {
	if ref, ok := r.resolved[key]; ok {
		return ref
	}
	ref := r.details.Resolve(ctx, key)
	if !ref.Placeholder {
		r.resolved[key] = ref
	}
	return ref
}

func has(m map[string]types.IssueRef, key string) bool {
	_, ok := m[key]
	return ok
}
