package jira

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpietro40/jira-initiative-viewer/internal/telemetry"
)

const fetchScopeName = "github.com/mpietro40/jira-initiative-viewer/jira"

// fetchMetrics counts paging and retry events in initview.fetch.* metrics.
// Instruments come from the global meter provider, which is a no-op until
// telemetry.Start installs a real one.
type fetchMetrics struct {
	pages    metric.Int64Counter
	issues   metric.Int64Counter
	failures metric.Int64Counter
	resizes  metric.Int64Counter
}

func newFetchMetrics() *fetchMetrics {
	m := telemetry.Meter(fetchScopeName)
	pages, _ := m.Int64Counter("initview.fetch.pages",
		metric.WithDescription("Search pages fetched successfully"),
	)
	issues, _ := m.Int64Counter("initview.fetch.issues",
		metric.WithDescription("Issues returned by search pages"),
	)
	failures, _ := m.Int64Counter("initview.fetch.attempt_failures",
		metric.WithDescription("Failed request attempts by kind"),
	)
	resizes, _ := m.Int64Counter("initview.fetch.page_timeouts",
		metric.WithDescription("Pages that exhausted retries on timeouts, by pager action"),
	)
	return &fetchMetrics{pages: pages, issues: issues, failures: failures, resizes: resizes}
}

func (m *fetchMetrics) pageFetched(ctx context.Context, n int) {
	m.pages.Add(ctx, 1)
	m.issues.Add(ctx, int64(n))
}

func (m *fetchMetrics) attemptFailed(ctx context.Context, timeout bool) {
	kind := "transport"
	if timeout {
		kind = "timeout"
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *fetchMetrics) pageTimedOut(ctx context.Context, action pageAction) {
	m.resizes.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action.String())))
}
