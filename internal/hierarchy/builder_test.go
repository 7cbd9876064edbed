package hierarchy

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpietro40/jira-initiative-viewer/internal/jira"
	"github.com/mpietro40/jira-initiative-viewer/internal/types"
)

func TestBuildThreeInitiatives(t *testing.T) {
	tr := forwardScenario(t)
	b := NewBuilder(tr.client, tr.resolver, nil)

	roots, err := b.Build(context.Background(), seedQuery, release)
	require.NoError(t, err)
	require.Len(t, roots, 3)

	for i, root := range roots {
		n := []string{"1", "2", "3"}[i]
		assert.Equal(t, "PORT-"+n, root.Issue.Key)
		assert.Equal(t, types.TypeInitiative, root.Issue.Type)
		require.Len(t, root.Features, 1)

		f := root.Features[0]
		assert.Equal(t, "FEAT-"+n, f.Issue.Key)
		require.Len(t, f.SubFeatures, 1)

		sf := f.SubFeatures[0]
		assert.Equal(t, "SUB-"+n, sf.Issue.Key)
		assert.Equal(t, []string{"PAY", "CORE"}, sf.Areas)
		require.Len(t, sf.EpicsByArea["PAY"], 1)
		require.Len(t, sf.EpicsByArea["CORE"], 1)
		assert.Equal(t, "PAY-"+n, sf.EpicsByArea["PAY"][0].Issue.Key)
		assert.False(t, sf.EpicsByArea["PAY"][0].HasActiveWork)
	}

	assert.Equal(t, []string{"CORE", "PAY"}, Areas(roots))
}

func TestBuildIsIdempotent(t *testing.T) {
	tr := forwardScenario(t)
	b := NewBuilder(tr.client, tr.resolver, nil)

	first, err := b.Build(context.Background(), seedQuery, release)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), seedQuery, release)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second build differs (-first +second):\n%s", diff)
	}
}

func TestBuildNeverWidensFilteredQuery(t *testing.T) {
	tr := forwardScenario(t)
	tr.issue("PORT-4", "Business Initiative", "Open", "", "")
	tr.issue("FEAT-4", "Feature", "Open", "PORT-4", "Business Initiative", "R99")
	tr.children("PORT-4", "Feature", "FEAT-4")
	tr.srv.SetSearch(seedQuery, "PORT-4")

	b := NewBuilder(tr.client, tr.resolver, nil)
	roots, err := b.Build(context.Background(), seedQuery, release)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.NotNil(t, roots[0].Features)
	assert.Empty(t, roots[0].Features)
	assert.Zero(t, tr.srv.SearchCount(jira.ChildrenOfType("PORT-4", "Feature")),
		"unfiltered feature query must not be issued")
}

func TestBuildChildFailureIsLocal(t *testing.T) {
	tr := forwardScenario(t)
	tr.srv.RejectSearch(jira.WithFixVersion(jira.ChildrenOfType("PORT-2", "Feature"), release), http.StatusBadRequest, -1)

	b := NewBuilder(tr.client, tr.resolver, nil)
	roots, err := b.Build(context.Background(), seedQuery, release)
	require.NoError(t, err)
	require.Len(t, roots, 3)
	assert.Len(t, roots[0].Features, 1)
	assert.Empty(t, roots[1].Features)
	assert.Len(t, roots[2].Features, 1)
}

func TestBuildDetailFailureUsesPlaceholder(t *testing.T) {
	tr := forwardScenario(t)
	tr.srv.RejectIssue("CORE-1", http.StatusForbidden, -1)

	b := NewBuilder(tr.client, tr.resolver, nil)
	roots, err := b.Build(context.Background(), seedQuery, release)
	require.NoError(t, err)

	sf := roots[0].Features[0].SubFeatures[0]
	// The placeholder has no project, so it lands in the Unknown area.
	assert.Equal(t, []string{"PAY", types.UnknownValue}, sf.Areas)
	assert.True(t, sf.EpicsByArea[types.UnknownValue][0].Issue.Placeholder)
}

func TestBuildSeedFailureIsFatal(t *testing.T) {
	tr := forwardScenario(t)
	tr.srv.RejectSearch(seedQuery, http.StatusBadRequest, -1)

	b := NewBuilder(tr.client, tr.resolver, nil)
	roots, err := b.Build(context.Background(), seedQuery, release)
	require.Error(t, err)
	assert.True(t, jira.IsRemoteError(err))
	assert.NotNil(t, roots)
	assert.Empty(t, roots)
}

func TestBuildNoInitiatives(t *testing.T) {
	tr := newTracker(t)
	b := NewBuilder(tr.client, tr.resolver, nil)

	roots, err := b.Build(context.Background(), seedQuery, release)
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestBuildCancelled(t *testing.T) {
	tr := forwardScenario(t)
	b := NewBuilder(tr.client, tr.resolver, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Build(ctx, seedQuery, release)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAreasEmpty(t *testing.T) {
	assert.Empty(t, Areas(nil))
}
