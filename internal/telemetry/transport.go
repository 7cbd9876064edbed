package telemetry

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const httpScopeName = "github.com/mpietro40/jira-initiative-viewer/http"

// InstrumentedTransport wraps an http.RoundTripper with OTel tracing and metrics.
// Every request gets a client span and is counted in initview.http.* metrics.
type InstrumentedTransport struct {
	inner  http.RoundTripper
	tracer trace.Tracer
	reqs   metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapTransport returns rt decorated with OTel instrumentation.
// When telemetry is disabled, rt is returned as-is with zero overhead.
func WrapTransport(rt http.RoundTripper) http.RoundTripper {
	if !Enabled() {
		return rt
	}
	m := Meter(httpScopeName)
	reqs, _ := m.Int64Counter("initview.http.requests",
		metric.WithDescription("Total HTTP requests sent to the tracker"),
	)
	dur, _ := m.Float64Histogram("initview.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("initview.http.errors",
		metric.WithDescription("HTTP requests that failed or returned non-2xx"),
	)
	return &InstrumentedTransport{
		inner:  rt,
		tracer: Tracer(httpScopeName),
		reqs:   reqs,
		dur:    dur,
		errs:   errs,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *InstrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
	}
	ctx, span := t.tracer.Start(req.Context(), "http "+req.Method,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()
	t.reqs.Add(ctx, 1, metric.WithAttributes(attrs...))
	start := time.Now()

	resp, err := t.inner.RoundTrip(req.WithContext(ctx))

	t.dur.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs...))
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	case resp.StatusCode >= 300:
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		span.SetStatus(codes.Error, resp.Status)
		t.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	default:
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	return resp, err
}

// StartStage opens a span for one traversal stage. End it with EndStage.
func StartStage(ctx context.Context, scope, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer(scope).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndStage records err (if any) on span and ends it.
func EndStage(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
