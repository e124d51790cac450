// Package observe provides application-wide observability primitives for
// Pitchdrill: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Pitchdrill metrics.
const meterName = "github.com/pitchdrill/pitchdrill"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ScanDuration tracks per-turn analysis latency (pattern scan plus
	// statistics recomputation).
	ScanDuration metric.Float64Histogram

	// HandshakeDuration tracks channel connection handshake latency.
	HandshakeDuration metric.Float64Histogram

	// --- Counters ---

	// TurnsIngested counts transcript turns accepted into the session log.
	// Use with attribute: attribute.String("speaker", ...)
	TurnsIngested metric.Int64Counter

	// Detections counts raw moment detections before deduplication. Use with
	// attribute: attribute.String("category", ...)
	Detections metric.Int64Counter

	// FeedbackEmitted counts feedback items that passed deduplication and
	// rate limiting. Use with attribute: attribute.String("severity", ...)
	FeedbackEmitted metric.Int64Counter

	// FeedbackSuppressed counts detections discarded by deduplication or the
	// rate limiter. Use with attribute: attribute.String("category", ...)
	FeedbackSuppressed metric.Int64Counter

	// --- Error counters ---

	// ConnectionErrors counts abnormal connection terminations and failed
	// attempts. Use with attribute: attribute.String("kind", ...)
	ConnectionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live coaching sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for in-process scan latencies and network handshakes.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ScanDuration, err = m.Float64Histogram("pitchdrill.scan.duration",
		metric.WithDescription("Latency of per-turn analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HandshakeDuration, err = m.Float64Histogram("pitchdrill.handshake.duration",
		metric.WithDescription("Latency of the channel connection handshake."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TurnsIngested, err = m.Int64Counter("pitchdrill.turns",
		metric.WithDescription("Total transcript turns ingested by speaker."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("pitchdrill.detections",
		metric.WithDescription("Total raw moment detections by category."),
	); err != nil {
		return nil, err
	}
	if met.FeedbackEmitted, err = m.Int64Counter("pitchdrill.feedback.emitted",
		metric.WithDescription("Total feedback items emitted by severity."),
	); err != nil {
		return nil, err
	}
	if met.FeedbackSuppressed, err = m.Int64Counter("pitchdrill.feedback.suppressed",
		metric.WithDescription("Total detections suppressed by deduplication or rate limiting, by category."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ConnectionErrors, err = m.Int64Counter("pitchdrill.connection.errors",
		metric.WithDescription("Total abnormal connection terminations by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("pitchdrill.active_sessions",
		metric.WithDescription("Number of live coaching sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("pitchdrill.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn is a convenience method that records an ingested transcript turn
// for the given speaker.
func (m *Metrics) RecordTurn(ctx context.Context, speaker string) {
	m.TurnsIngested.Add(ctx, 1,
		metric.WithAttributes(attribute.String("speaker", speaker)),
	)
}

// RecordDetection is a convenience method that records a raw moment detection
// counter increment.
func (m *Metrics) RecordDetection(ctx context.Context, category string) {
	m.Detections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("category", category)),
	)
}

// RecordFeedbackEmitted is a convenience method that records an emitted
// feedback item counter increment.
func (m *Metrics) RecordFeedbackEmitted(ctx context.Context, severity string) {
	m.FeedbackEmitted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("severity", severity)),
	)
}

// RecordFeedbackSuppressed is a convenience method that records a suppressed
// detection counter increment.
func (m *Metrics) RecordFeedbackSuppressed(ctx context.Context, category string) {
	m.FeedbackSuppressed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("category", category)),
	)
}

// RecordConnectionError is a convenience method that records a connection
// error counter increment by kind.
func (m *Metrics) RecordConnectionError(ctx context.Context, kind string) {
	m.ConnectionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
