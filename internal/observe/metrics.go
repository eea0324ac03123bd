// Package observe provides application-wide observability primitives for
// Earshot: OpenTelemetry metrics for the capture pipeline and an HTTP
// middleware that times request handling.
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

// meterName is the instrumentation scope name used for all Earshot metrics.
const meterName = "github.com/earshot-dev/earshot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ProcessDuration tracks per-delivery audio processing latency
	// (decode + downmix + resample).
	ProcessDuration metric.Float64Histogram

	// STTDuration tracks transcription latency for the optional in-process
	// transcription worker and the transcription self-test.
	STTDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksEmitted counts transcription chunks emitted to listeners.
	ChunksEmitted metric.Int64Counter

	// SamplesProcessed counts normalised mono samples produced.
	SamplesProcessed metric.Int64Counter

	// LevelEvents counts emitted audio-level events.
	LevelEvents metric.Int64Counter

	// --- Error counters ---

	// CaptureErrors counts capture pipeline errors. Use with attributes:
	//   attribute.String("kind", "stream"|"convert"|"fatal")
	CaptureErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCaptures tracks the number of live capture sessions (0 or 1 by
	// construction, exported as a gauge for dashboards anyway).
	ActiveCaptures metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for audio-pipeline latencies.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ProcessDuration, err = m.Float64Histogram("earshot.process.duration",
		metric.WithDescription("Latency of one audio delivery's decode, downmix, and resample."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("earshot.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksEmitted, err = m.Int64Counter("earshot.chunks.emitted",
		metric.WithDescription("Total transcription chunks emitted."),
	); err != nil {
		return nil, err
	}
	if met.SamplesProcessed, err = m.Int64Counter("earshot.samples.processed",
		metric.WithDescription("Total normalised mono samples produced by the pipeline."),
	); err != nil {
		return nil, err
	}
	if met.LevelEvents, err = m.Int64Counter("earshot.level.events",
		metric.WithDescription("Total audio-level events emitted."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.CaptureErrors, err = m.Int64Counter("earshot.capture.errors",
		metric.WithDescription("Total capture pipeline errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCaptures, err = m.Int64UpDownCounter("earshot.active_captures",
		metric.WithDescription("Number of live capture sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("earshot.http.request.duration",
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

// RecordCaptureError records a capture error counter increment with the
// standard kind attribute.
func (m *Metrics) RecordCaptureError(ctx context.Context, kind string) {
	m.CaptureErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
