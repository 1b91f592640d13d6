package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the Sum data point carrying key=value, or -1.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"zhfix.correction.duration", m.CorrectionDuration},
		{"zhfix.oracle.duration", m.OracleDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.012)
		tc.h.Record(ctx, 0.045)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordOracleRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordOracleRequest(ctx, "bert-base-chinese", "ok", 0.02)
	m.RecordOracleRequest(ctx, "bert-base-chinese", "ok", 0.03)
	m.RecordOracleRequest(ctx, "bert-base-chinese", "error", 0.5)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "zhfix.oracle.requests", "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "zhfix.oracle.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}

	hist, ok := findMetric(rm, "zhfix.oracle.duration").Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 3 {
		t.Errorf("oracle duration = %+v, want one data point with 3 samples", hist.DataPoints)
	}
}

func TestRecordOracleError(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordOracleError(context.Background(), "bert-base-chinese", "timeout")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "zhfix.oracle.errors", "kind", "timeout"); got != 1 {
		t.Errorf("timeout errors = %d, want 1", got)
	}
}

func TestRecordDecision(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDecision(ctx, "nasal", "contextual", "accept")
	m.RecordDecision(ctx, "default", "fallback", "reject")
	m.RecordDecision(ctx, "default", "fallback", "reject")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "zhfix.policy.decisions", "class", "nasal"); got != 1 {
		t.Errorf("nasal decisions = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "zhfix.policy.decisions", "source", "fallback"); got != 2 {
		t.Errorf("fallback decisions = %d, want 2", got)
	}
}

func TestRecordCorrection(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCorrection(ctx, 3, 1, false, 0.04)
	m.RecordCorrection(ctx, 2, 0, true, 0.01)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "zhfix.detector.spans", "", ""); got != 5 {
		t.Errorf("spans = %d, want 5", got)
	}
	if got := sumWhere(t, rm, "zhfix.corrections", "", ""); got != 1 {
		t.Errorf("corrections = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "zhfix.fallbacks", "", ""); got != 1 {
		t.Errorf("fallbacks = %d, want 1", got)
	}
}

func TestRecordSnapshotSwap(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordSnapshotSwap(context.Background(), "3f2a9c1e00b4d871")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "zhfix.snapshot.swaps", "version", "3f2a9c1e00b4d871"); got != 1 {
		t.Errorf("swaps = %d, want 1", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("route", "GET /healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "zhfix.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
