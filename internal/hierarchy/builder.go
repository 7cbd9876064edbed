package hierarchy

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mpietro40/jira-initiative-viewer/internal/telemetry"
	"github.com/mpietro40/jira-initiative-viewer/internal/types"
)

// Builder builds the forward hierarchy for a release marker.
type Builder struct {
	search  Searcher
	details DetailResolver
	logger  *slog.Logger

	// InitiativeMax caps the seed query.
	InitiativeMax int
}

// NewBuilder creates a Builder. A nil logger discards output.
func NewBuilder(search Searcher, details DetailResolver, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{search: search, details: details, logger: logger, InitiativeMax: DefaultInitiativeMax}
}

// Build returns one root per Initiative matched by query. Features and
// Sub-Features are restricted to those carrying marker; Epics are not
// filtered and are grouped by owning area.
//
// A filtered query that matches nothing ends that branch. It is never
// retried without the marker.
func (b *Builder) Build(ctx context.Context, query, marker string) (roots []*types.InitiativeNode, err error) {
	ctx, span := telemetry.StartStage(ctx, scopeName, "forward.build",
		attribute.String("initview.release_marker", marker))
	defer func() { telemetry.EndStage(span, err) }()

	roots = []*types.InitiativeNode{}

	seeds, err := b.search.FetchIssues(ctx, query, b.InitiativeMax)
	if err != nil {
		if len(seeds) == 0 {
			return roots, fmt.Errorf("fetch initiatives: %w", err)
		}
		b.logger.Warn("initiative query incomplete, continuing with partial results",
			"jql", query, "fetched", len(seeds), "err", err)
	}
	b.logger.Info("building hierarchy", "initiatives", len(seeds), "release", marker)

	for i, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return roots, err
		}
		b.logger.Info("processing initiative", "key", seed.Key, "n", i+1, "of", len(seeds))
		node := types.NewInitiativeNode(b.details.Resolve(ctx, seed.Key))

		for _, f := range childrenOf(ctx, b.search, b.logger, seed.Key, types.TypeFeature, marker, MaxChildren) {
			fnode := types.NewFeatureNode(b.details.Resolve(ctx, f.Key))
			if !node.AddFeature(fnode) {
				continue
			}
			for _, sf := range childrenOf(ctx, b.search, b.logger, f.Key, types.TypeSubFeature, marker, MaxChildren) {
				sfnode := types.NewSubFeatureNode(b.details.Resolve(ctx, sf.Key))
				if !fnode.AddSubFeature(sfnode) {
					continue
				}
				b.addEpics(ctx, sfnode)
			}
			if len(fnode.SubFeatures) == 0 {
				b.logger.Debug("no sub-features with release marker", "key", f.Key, "release", marker)
			}
		}
		if len(node.Features) == 0 {
			b.logger.Info("no features with release marker", "key", seed.Key, "release", marker)
		}
		roots = append(roots, node)
	}
	return roots, nil
}

func (b *Builder) addEpics(ctx context.Context, sf *types.SubFeatureNode) {
	for _, e := range childrenOf(ctx, b.search, b.logger, sf.Issue.Key, types.TypeEpic, "", MaxEpics) {
		sf.AddEpic(&types.EpicNode{Issue: b.details.Resolve(ctx, e.Key)})
	}
	b.logger.Debug("epics grouped", "key", sf.Issue.Key, "epics", sf.EpicCount(), "areas", len(sf.Areas))
}
