// Package observe provides application-wide observability primitives for
// zhfix: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all zhfix metrics.
const meterName = "github.com/MrWong99/zhfix"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// CorrectionDuration tracks the latency of one full correction pass.
	CorrectionDuration metric.Float64Histogram

	// OracleDuration tracks masked-LM prediction latency.
	OracleDuration metric.Float64Histogram

	// --- Counters ---

	// OracleRequests counts oracle predictions. Use with attributes:
	//   attribute.String("model", ...), attribute.String("status", ...)
	OracleRequests metric.Int64Counter

	// OracleErrors counts failed oracle predictions. Use with attributes:
	//   attribute.String("model", ...), attribute.String("kind", ...)
	OracleErrors metric.Int64Counter

	// SuspiciousSpans counts spans flagged by the detector.
	SuspiciousSpans metric.Int64Counter

	// Decisions counts candidate decisions. Use with attributes:
	//   attribute.String("class", ...), attribute.String("source", ...),
	//   attribute.String("verdict", ...)
	Decisions metric.Int64Counter

	// Corrections counts replacements applied to transcripts.
	Corrections metric.Int64Counter

	// Fallbacks counts correction passes that fell back to frequency scoring
	// because the oracle was unavailable.
	Fallbacks metric.Int64Counter

	// SnapshotSwaps counts knowledge snapshot swaps.
	SnapshotSwaps metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time by method, mux
	// route, status code and snapshot version. See [Middleware].
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). A pass is
// a handful of model calls on CPU, so the interesting range is 1ms to 2.5s.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CorrectionDuration, err = m.Float64Histogram("zhfix.correction.duration",
		metric.WithDescription("Latency of one correction pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.OracleDuration, err = m.Float64Histogram("zhfix.oracle.duration",
		metric.WithDescription("Latency of masked-LM predictions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.OracleRequests, err = m.Int64Counter("zhfix.oracle.requests",
		metric.WithDescription("Total oracle predictions by model and status."),
	); err != nil {
		return nil, err
	}
	if met.OracleErrors, err = m.Int64Counter("zhfix.oracle.errors",
		metric.WithDescription("Total oracle errors by model and kind."),
	); err != nil {
		return nil, err
	}
	if met.SuspiciousSpans, err = m.Int64Counter("zhfix.detector.spans",
		metric.WithDescription("Total suspicious spans flagged by the detector."),
	); err != nil {
		return nil, err
	}
	if met.Decisions, err = m.Int64Counter("zhfix.policy.decisions",
		metric.WithDescription("Total candidate decisions by class, source, and verdict."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("zhfix.corrections",
		metric.WithDescription("Total replacements applied to transcripts."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("zhfix.fallbacks",
		metric.WithDescription("Total correction passes decided by frequency fallback."),
	); err != nil {
		return nil, err
	}
	if met.SnapshotSwaps, err = m.Int64Counter("zhfix.snapshot.swaps",
		metric.WithDescription("Total knowledge snapshot swaps."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("zhfix.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

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

// RecordOracleRequest records one oracle prediction with its latency.
func (m *Metrics) RecordOracleRequest(ctx context.Context, model, status string, seconds float64) {
	m.OracleRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("status", status),
		),
	)
	m.OracleDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("model", model)),
	)
}

// RecordOracleError records a failed oracle prediction.
func (m *Metrics) RecordOracleError(ctx context.Context, model, kind string) {
	m.OracleErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("kind", kind),
		),
	)
}

// RecordDecision records one candidate decision.
func (m *Metrics) RecordDecision(ctx context.Context, class, source, verdict string) {
	m.Decisions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("class", class),
			attribute.String("source", source),
			attribute.String("verdict", verdict),
		),
	)
}

// RecordCorrection records one finished correction pass.
func (m *Metrics) RecordCorrection(ctx context.Context, spans, corrections int, fallback bool, seconds float64) {
	m.CorrectionDuration.Record(ctx, seconds)
	if spans > 0 {
		m.SuspiciousSpans.Add(ctx, int64(spans))
	}
	if corrections > 0 {
		m.Corrections.Add(ctx, int64(corrections))
	}
	if fallback {
		m.Fallbacks.Add(ctx, 1)
	}
}

// RecordSnapshotSwap records a knowledge snapshot swap to version.
func (m *Metrics) RecordSnapshotSwap(ctx context.Context, version string) {
	m.SnapshotSwaps.Add(ctx, 1,
		metric.WithAttributes(attribute.String("version", version)),
	)
}
