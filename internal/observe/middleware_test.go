package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const testSnapshotVersion = "3f2a9c1e00b4d871"

// serveCorrection wires the middleware in front of a mux shaped like the
// correction API and returns the metric reader and span exporter.
func serveCorrection(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/correct", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"corrected":"今天氣溫很低！"}`))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	version := func() string { return testSnapshotVersion }
	return Middleware(m, WithSnapshotVersion(version))(mux), reader, exp
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	body := ""
	if method == http.MethodPost {
		body = `{"text":"今天氣溫很底！"}`
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

// durationPoints returns the attribute sets of every duration data point.
func durationPoints(t *testing.T, reader *sdkmetric.ManualReader) []attribute.Set {
	t.Helper()
	met := findMetric(collect(t, reader), "zhfix.http.request.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration metric is not a histogram")
	}
	out := make([]attribute.Set, 0, len(hist.DataPoints))
	for _, dp := range hist.DataPoints {
		out = append(out, dp.Attributes)
	}
	return out
}

func attr(s attribute.Set, key string) string {
	v, ok := s.Value(attribute.Key(key))
	if !ok {
		return ""
	}
	return v.Emit()
}

func TestMiddleware_LabelsByRoute(t *testing.T) {
	h, reader, exp := serveCorrection(t)

	if rec := do(h, http.MethodPost, "/v1/correct"); rec.Code != http.StatusOK {
		t.Fatalf("correct status = %d, want 200", rec.Code)
	}

	points := durationPoints(t, reader)
	if len(points) != 1 {
		t.Fatalf("data points = %d, want 1", len(points))
	}
	p := points[0]
	for key, want := range map[string]string{
		"method":           "POST",
		"route":            "POST /v1/correct",
		"status":           "200",
		"snapshot_version": testSnapshotVersion,
	} {
		if got := attr(p, key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if _, ok := p.Value("path"); ok {
		t.Error("duration carries the raw path attribute")
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP POST /v1/correct" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "HTTP POST /v1/correct")
	}
	var gotVersion string
	for _, a := range spans[0].Attributes {
		if a.Key == "snapshot.version" {
			gotVersion = a.Value.AsString()
		}
	}
	if gotVersion != testSnapshotVersion {
		t.Errorf("span snapshot.version = %q, want %q", gotVersion, testSnapshotVersion)
	}
}

func TestMiddleware_UnmatchedPathsShareOneLabel(t *testing.T) {
	h, reader, _ := serveCorrection(t)

	for _, target := range []string{"/v1/correct/a1", "/v1/correct/b2", "/favicon.ico"} {
		if rec := do(h, http.MethodGet, target); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", target, rec.Code)
		}
	}

	points := durationPoints(t, reader)
	if len(points) != 1 {
		t.Fatalf("data points = %d, want 1 for every unmatched path", len(points))
	}
	if got := attr(points[0], "route"); got != RouteUnmatched {
		t.Errorf("route = %q, want %q", got, RouteUnmatched)
	}
	if got := attr(points[0], "status"); got != "404" {
		t.Errorf("status = %q, want 404", got)
	}
}

func TestMiddleware_RecordsErrorStatus(t *testing.T) {
	h, reader, exp := serveCorrection(t)

	if rec := do(h, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rec.Code)
	}

	points := durationPoints(t, reader)
	if len(points) != 1 || attr(points[0], "status") != "503" || attr(points[0], "route") != "GET /readyz" {
		t.Errorf("points = %v, want one GET /readyz sample with status 503", points)
	}

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 503 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code=503")
	}
}

func TestMiddleware_CorrelationID(t *testing.T) {
	h, _, _ := serveCorrection(t)

	rec := do(h, http.MethodPost, "/v1/correct")
	if cid := rec.Header().Get("X-Correlation-ID"); len(cid) != 32 {
		t.Errorf("X-Correlation-ID = %q, want a 32 character trace ID", cid)
	}

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodPost, "/v1/correct", strings.NewReader(`{"text":"很底"}`))
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want the caller's trace ID %q", got, traceID)
	}
}

func TestMiddleware_WithoutSnapshotVersion(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	do(h, http.MethodGet, "/anything")

	points := durationPoints(t, reader)
	if len(points) != 1 {
		t.Fatalf("data points = %d, want 1", len(points))
	}
	if _, ok := points[0].Value("snapshot_version"); ok {
		t.Error("snapshot_version recorded without a version source")
	}
	// A bare handler has no mux pattern.
	if got := attr(points[0], "route"); got != RouteUnmatched {
		t.Errorf("route = %q, want %q", got, RouteUnmatched)
	}
}
