// Package observe provides observability primitives for voiceprint:
// OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// A one-shot invocation records a handful of instruments; they become useful
// when many invocations feed the same Prometheus registry (e.g., when the
// binary is driven by a long-running host process that aggregates scrapes).
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voiceprint metrics.
const meterName = "github.com/MrWong99/voiceprint"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// EnrollDuration tracks end-to-end enrollment latency.
	EnrollDuration metric.Float64Histogram

	// IdentifyDuration tracks end-to-end speaker identification latency.
	IdentifyDuration metric.Float64Histogram

	// EmbedDuration tracks single embedding extraction latency.
	EmbedDuration metric.Float64Histogram

	// EmbedRequests counts embedding extractions. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	EmbedRequests metric.Int64Counter

	// SpeakerResolutions counts per-speaker resolution outcomes. Use with
	// attribute: attribute.String("status", "resolved"|"unresolved")
	SpeakerResolutions metric.Int64Counter

	// ProfileMutations counts profile store mutations. Use with attributes:
	//   attribute.String("op", "create"|"delete"), attribute.String("status", ...)
	ProfileMutations metric.Int64Counter

	// ProfilesSkipped counts profiles skipped as unreadable during loads.
	ProfilesSkipped metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Model
// inference over long audio dominates, so the buckets extend well past the
// usual request-latency range.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.EnrollDuration, err = m.Float64Histogram("voiceprint.enroll.duration",
		metric.WithDescription("Latency of profile enrollment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IdentifyDuration, err = m.Float64Histogram("voiceprint.identify.duration",
		metric.WithDescription("Latency of speaker identification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedDuration, err = m.Float64Histogram("voiceprint.embed.duration",
		metric.WithDescription("Latency of a single embedding extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.EmbedRequests, err = m.Int64Counter("voiceprint.embed.requests",
		metric.WithDescription("Total embedding extractions by status."),
	); err != nil {
		return nil, err
	}
	if met.SpeakerResolutions, err = m.Int64Counter("voiceprint.speaker.resolutions",
		metric.WithDescription("Per-speaker resolution outcomes by status."),
	); err != nil {
		return nil, err
	}
	if met.ProfileMutations, err = m.Int64Counter("voiceprint.profile.mutations",
		metric.WithDescription("Profile store mutations by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.ProfilesSkipped, err = m.Int64Counter("voiceprint.profile.skipped",
		metric.WithDescription("Profiles skipped as unreadable during loads."),
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

// RecordEmbed records one embedding extraction with its latency and status.
func (m *Metrics) RecordEmbed(ctx context.Context, seconds float64, status string) {
	m.EmbedRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.EmbedDuration.Record(ctx, seconds)
}

// RecordResolution records one per-speaker resolution outcome.
func (m *Metrics) RecordResolution(ctx context.Context, status string) {
	m.SpeakerResolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordProfileSkipped counts one profile skipped as unreadable during a
// store load.
func (m *Metrics) RecordProfileSkipped(ctx context.Context) {
	m.ProfilesSkipped.Add(ctx, 1)
}

// RecordProfileMutation records one profile store mutation outcome.
func (m *Metrics) RecordProfileMutation(ctx context.Context, op, status string) {
	m.ProfileMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}
