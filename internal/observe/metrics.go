// Package observe provides application-wide observability primitives for
// knowlode: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all knowlode metrics.
const meterName = "github.com/knowlode/knowlode"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// CascadeDuration tracks an NLP cascade detector's total inference
	// latency. Use with attributes:
	//   attribute.String("detector", "emotion"|"intent"|"ner"),
	//   attribute.String("level", "rule"|"lm")
	CascadeDuration metric.Float64Histogram

	// RetrievalDuration tracks a retrieval router call's end-to-end latency.
	// Use with attribute: attribute.String("strategy", ...)
	RetrievalDuration metric.Float64Histogram

	// MemstoreSweepDuration tracks a single retention sweep pass over the
	// memory store.
	MemstoreSweepDuration metric.Float64Histogram

	// IngestDuration tracks the latency of classifying and storing a single
	// new memory.
	IngestDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts LM/embedding provider API calls. Use with
	// attributes: attribute.String("provider", ...), attribute.String("kind",
	// ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// CascadeLevelInvocations counts how often each cascade level ran,
	// including levels that were skipped because an earlier level was
	// confident enough. Use with attributes:
	//   attribute.String("detector", ...), attribute.String("level", ...),
	//   attribute.String("outcome", "ran"|"skipped"|"error")
	CascadeLevelInvocations metric.Int64Counter

	// MemoriesStored counts items written to the memory store. Use with
	// attribute: attribute.String("retention_type", ...)
	MemoriesStored metric.Int64Counter

	// MemoriesSwept counts items evicted or demoted by a retention sweep.
	// Use with attribute: attribute.String("outcome", "expired"|"demoted")
	MemoriesSwept metric.Int64Counter

	// CacheHits counts capability factory cache hits. Use with attribute:
	//   attribute.String("component", ...)
	CacheHits metric.Int64Counter

	// CacheMisses counts capability factory cache misses (fresh
	// construction). Use with attribute: attribute.String("component", ...)
	CacheMisses metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveMemories tracks the number of non-expired items currently held
	// by the memory store.
	ActiveMemories metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// everything from a cache-hit cascade rule level (sub-millisecond) to a slow
// LM-backed retrieval call.
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
	if met.CascadeDuration, err = m.Float64Histogram("knowlode.cascade.duration",
		metric.WithDescription("Latency of an NLP cascade detector run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("knowlode.retrieval.duration",
		metric.WithDescription("Latency of a retrieval router call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MemstoreSweepDuration, err = m.Float64Histogram("knowlode.memstore.sweep.duration",
		metric.WithDescription("Latency of a retention sweep pass over the memory store."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IngestDuration, err = m.Float64Histogram("knowlode.ingest.duration",
		metric.WithDescription("Latency of classifying and storing a single memory."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("knowlode.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.CascadeLevelInvocations, err = m.Int64Counter("knowlode.cascade.level_invocations",
		metric.WithDescription("Total cascade level invocations by detector, level, and outcome."),
	); err != nil {
		return nil, err
	}
	if met.MemoriesStored, err = m.Int64Counter("knowlode.memstore.items_stored",
		metric.WithDescription("Total items written to the memory store by retention type."),
	); err != nil {
		return nil, err
	}
	if met.MemoriesSwept, err = m.Int64Counter("knowlode.memstore.items_swept",
		metric.WithDescription("Total items evicted or demoted by a retention sweep."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("knowlode.capability.cache_hits",
		metric.WithDescription("Total capability factory cache hits by component."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("knowlode.capability.cache_misses",
		metric.WithDescription("Total capability factory cache misses (fresh construction) by component."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("knowlode.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveMemories, err = m.Int64UpDownCounter("knowlode.memstore.active_items",
		metric.WithDescription("Number of non-expired items currently held by the memory store."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("knowlode.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCascadeLevel is a convenience method that records a cascade level
// invocation counter increment with the standard attribute set.
func (m *Metrics) RecordCascadeLevel(ctx context.Context, detector, level, outcome string) {
	m.CascadeLevelInvocations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("detector", detector),
			attribute.String("level", level),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordMemoryStored is a convenience method that records a memory-stored
// counter increment for the given retention type.
func (m *Metrics) RecordMemoryStored(ctx context.Context, retentionType string) {
	m.MemoriesStored.Add(ctx, 1,
		metric.WithAttributes(attribute.String("retention_type", retentionType)),
	)
}

// RecordMemorySwept is a convenience method that records a memory-swept
// counter increment for the given sweep outcome.
func (m *Metrics) RecordMemorySwept(ctx context.Context, outcome string) {
	m.MemoriesSwept.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordCacheHit is a convenience method that records a capability factory
// cache hit for the given component.
func (m *Metrics) RecordCacheHit(ctx context.Context, component string) {
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
}

// RecordCacheMiss is a convenience method that records a capability factory
// cache miss for the given component.
func (m *Metrics) RecordCacheMiss(ctx context.Context, component string) {
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
}
