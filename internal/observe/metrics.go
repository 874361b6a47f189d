// Package observe provides application-wide observability primitives for
// carbot: OpenTelemetry metrics and a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter is installed via [InitProvider] so that metrics can be scraped
// from the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all carbot metrics.
const meterName = "github.com/bluehawana/carbot-js-ai-sub001"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SynthesisDuration tracks synthesis latency. Use with attribute:
	//   attribute.String("tier", ...)
	SynthesisDuration metric.Float64Histogram

	// FadeDuration tracks how long bus volume ramps take end to end.
	FadeDuration metric.Float64Histogram

	// --- Counters ---

	// WakeEvents counts emitted wake events. Use with attributes:
	//   attribute.String("source", ...) — "engine", "simulated", "manual"
	WakeEvents metric.Int64Counter

	// WakeSuppressed counts detections discarded during cooldown.
	WakeSuppressed metric.Int64Counter

	// SynthesisRequests counts synthesis resolutions. Use with attributes:
	//   attribute.String("tier", ...), attribute.String("status", ...)
	SynthesisRequests metric.Int64Counter

	// SynthesisErrors counts per-tier synthesis failures. Use with attribute:
	//   attribute.String("tier", ...)
	SynthesisErrors metric.Int64Counter

	// DuckingTransactions counts completed ducking transactions. Use with
	// attributes:
	//   attribute.String("profile", ...), attribute.String("outcome", ...)
	DuckingTransactions metric.Int64Counter

	// --- Gauges ---

	// CacheEntries tracks the current synthesis cache population.
	CacheEntries metric.Int64UpDownCounter

	// ActiveTransactions tracks in-flight ducking transactions (0 or 1 per
	// bus by design; values above 1 indicate queued work).
	ActiveTransactions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SynthesisDuration, err = m.Float64Histogram("carbot.synthesis.duration",
		metric.WithDescription("Latency of speech synthesis by serving tier."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FadeDuration, err = m.Float64Histogram("carbot.ducking.fade.duration",
		metric.WithDescription("End-to-end duration of bus volume ramps."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WakeEvents, err = m.Int64Counter("carbot.wake.events",
		metric.WithDescription("Total wake events by source."),
	); err != nil {
		return nil, err
	}
	if met.WakeSuppressed, err = m.Int64Counter("carbot.wake.suppressed",
		metric.WithDescription("Detections discarded during the cooldown window."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisRequests, err = m.Int64Counter("carbot.synthesis.requests",
		metric.WithDescription("Total synthesis resolutions by tier and status."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisErrors, err = m.Int64Counter("carbot.synthesis.errors",
		metric.WithDescription("Per-tier synthesis failures."),
	); err != nil {
		return nil, err
	}
	if met.DuckingTransactions, err = m.Int64Counter("carbot.ducking.transactions",
		metric.WithDescription("Completed ducking transactions by profile and outcome."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.CacheEntries, err = m.Int64UpDownCounter("carbot.synthesis.cache.entries",
		metric.WithDescription("Current synthesis cache population."),
	); err != nil {
		return nil, err
	}
	if met.ActiveTransactions, err = m.Int64UpDownCounter("carbot.ducking.active",
		metric.WithDescription("In-flight and queued ducking transactions."),
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

// RecordSynthesis records one synthesis resolution with its latency.
func (m *Metrics) RecordSynthesis(ctx context.Context, tier string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.SynthesisErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
	}
	m.SynthesisRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("status", status),
	))
	m.SynthesisDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordWakeEvent records one emitted wake event by source.
func (m *Metrics) RecordWakeEvent(ctx context.Context, source string) {
	m.WakeEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordDucking records one completed ducking transaction.
func (m *Metrics) RecordDucking(ctx context.Context, profile, outcome string) {
	m.DuckingTransactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", profile),
		attribute.String("outcome", outcome),
	))
}
