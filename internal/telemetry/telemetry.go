// Package telemetry wires OpenTelemetry for initview.
//
// Nothing is exported unless Settings.Enabled is set. Spans are only
// written by the dev exporter (Settings.Console); metrics go to the console
// and/or an OTLP/HTTP collector. Instruments obtained before Start keep
// working: they resolve through the global providers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/mpietro40/jira-initiative-viewer"

// DefaultMetricInterval is used when Settings.MetricInterval is zero.
const DefaultMetricInterval = 30 * time.Second

// Settings selects exporters. The zero value disables telemetry.
type Settings struct {
	Enabled bool

	// Console receives pretty-printed spans and periodic metrics. Nil
	// disables the dev exporters. The CLI points it at stderr so
	// structured output on stdout stays clean.
	Console io.Writer

	// OTLPEndpoint is a host:port for OTLP/HTTP metric export.
	OTLPEndpoint   string
	MetricInterval time.Duration
}

var active atomic.Bool

// Enabled reports whether a Session with exporters is running.
func Enabled() bool {
	return active.Load()
}

// Session owns the providers installed by Start.
type Session struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Start installs global providers for s. With telemetry disabled it installs
// no-op providers and returns an empty Session.
func Start(ctx context.Context, s Settings, service, version string) (*Session, error) {
	if !s.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		active.Store(false)
		return &Session{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(service),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	sess := &Session{}
	if s.Console != nil {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(s.Console), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("console span exporter: %w", err)
		}
		sess.tp = sdktrace.NewTracerProvider(sdktrace.WithResource(res), sdktrace.WithBatcher(exp))
		otel.SetTracerProvider(sess.tp)
	} else {
		// No span exporter is available without the console.
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
	}

	readers, err := metricReaders(ctx, s)
	if err != nil {
		_ = sess.Shutdown(ctx)
		return nil, err
	}
	if len(readers) > 0 {
		opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
		for _, r := range readers {
			opts = append(opts, sdkmetric.WithReader(r))
		}
		sess.mp = sdkmetric.NewMeterProvider(opts...)
		otel.SetMeterProvider(sess.mp)
	} else {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
	}

	active.Store(sess.tp != nil || sess.mp != nil)
	return sess, nil
}

func metricReaders(ctx context.Context, s Settings) ([]sdkmetric.Reader, error) {
	interval := s.MetricInterval
	if interval <= 0 {
		interval = DefaultMetricInterval
	}
	var readers []sdkmetric.Reader
	if s.Console != nil {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(s.Console))
		if err != nil {
			return nil, fmt.Errorf("console metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)))
	}
	if s.OTLPEndpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, s.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)))
	}
	return readers, nil
}

// Shutdown flushes pending spans and metrics. It is safe on a nil or empty Session.
func (s *Session) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.tp != nil {
		errs = append(errs, s.tp.Shutdown(ctx))
		s.tp = nil
	}
	if s.mp != nil {
		errs = append(errs, s.mp.Shutdown(ctx))
		s.mp = nil
	}
	active.Store(false)
	return errors.Join(errs...)
}

// Tracer returns a tracer with the given instrumentation name (or the global scope).
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter with the given instrumentation name (or the global scope).
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}
