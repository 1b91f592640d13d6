package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/zhfix/internal/knowledge"
	"github.com/MrWong99/zhfix/internal/resilience"
	"github.com/MrWong99/zhfix/pkg/provider/mlm/mock"
)

func serve(t *testing.T, h *Handler, path string) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()

	h := New([]Checker{Snapshot(knowledge.NewHolder(nil))}, WithVersion(func() string { return "v1" }))
	code, body := serve(t, h, "/healthz")
	if code != http.StatusOK {
		t.Errorf("status = %d, want %d", code, http.StatusOK)
	}
	if body.Status != "ok" || body.Version != "v1" {
		t.Errorf("body = %+v, want ok with version v1", body)
	}
}

func TestReadyz_SnapshotGate(t *testing.T) {
	t.Parallel()

	holder := knowledge.NewHolder(nil)
	h := New([]Checker{Snapshot(holder)})

	code, body := serve(t, h, "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d before a snapshot is loaded", code, http.StatusServiceUnavailable)
	}
	if body.Status != "fail" || !strings.HasPrefix(body.Checks["snapshot"], "fail: ") {
		t.Errorf("body = %+v", body)
	}

	holder.Swap(&knowledge.Snapshot{})
	code, body = serve(t, h, "/readyz")
	if code != http.StatusOK {
		t.Errorf("status = %d, want %d after a snapshot is loaded", code, http.StatusOK)
	}
	if body.Checks["snapshot"] != "ok" {
		t.Errorf("snapshot check = %q, want ok", body.Checks["snapshot"])
	}
}

func TestReadyz_OpenOracleIsDegraded(t *testing.T) {
	t.Parallel()

	backend := &mock.Provider{ModelIDValue: "bert-base-chinese", PredictErr: errors.New("session run failed")}
	oracle := resilience.NewOracle(backend, resilience.OracleConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	_, _ = oracle.Predict(context.Background(), "銀幕", 0)

	h := New([]Checker{
		Snapshot(knowledge.NewHolder(&knowledge.Snapshot{})),
		Oracle(oracle),
	})
	code, body := serve(t, h, "/readyz")
	if code != http.StatusOK {
		t.Errorf("status = %d, want %d (oracle failure is degraded)", code, http.StatusOK)
	}
	if want := "degraded: circuit open for bert-base-chinese"; body.Checks["oracle"] != want {
		t.Errorf("oracle check = %q, want %q", body.Checks["oracle"], want)
	}
}

func TestReadyz_HealthyOracle(t *testing.T) {
	t.Parallel()

	oracle := resilience.NewOracle(&mock.Provider{}, resilience.OracleConfig{})
	code, body := serve(t, New([]Checker{Oracle(oracle)}), "/readyz")
	if code != http.StatusOK || body.Checks["oracle"] != "ok" {
		t.Errorf("status = %d, body = %+v", code, body)
	}
}

func TestReadyz_AllCheckersFail(t *testing.T) {
	t.Parallel()

	h := New([]Checker{
		{Name: "snapshot", Check: func(context.Context) error { return errors.New("manifest missing") }},
		{Name: "history", Check: func(context.Context) error { return errors.New("connection refused") }},
	})
	code, body := serve(t, h, "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
	if body.Checks["snapshot"] != "fail: manifest missing" {
		t.Errorf("snapshot check = %q", body.Checks["snapshot"])
	}
	if body.Checks["history"] != "fail: connection refused" {
		t.Errorf("history check = %q", body.Checks["history"])
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	t.Parallel()

	code, body := serve(t, New(nil), "/readyz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("status = %d, body = %+v", code, body)
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	h := New([]Checker{{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
