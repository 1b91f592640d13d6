package config_test

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/zhfix/internal/config"
	"github.com/MrWong99/zhfix/internal/transcript/detect"
	"github.com/MrWong99/zhfix/internal/transcript/policy"
	"github.com/MrWong99/zhfix/pkg/provider/mlm"
	"github.com/MrWong99/zhfix/pkg/provider/mlm/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  concurrency: 4

data:
  snapshot_dir: /var/lib/zhfix
  reload_interval: 1m

detector:
  low_frequency: 10
  min_span: 2
  max_span: 3

policy:
  thresholds:
    default: 2.0
    nasal: 2.5
    fallback: 3.5
  nasal_pairs:
    - 今經
  syllable_rule: false

oracle:
  provider: bert
  model_path: /models/bert-base-chinese.onnx
  vocab_path: /models/vocab.txt
  timeout: 500ms
  max_sequence_length: 128
  circuit_breaker:
    max_failures: 3
    reset_timeout: 10s
    half_open_max: 1

build:
  corpus_file: /tmp/dict.txt.big
  boost_file: /etc/zhfix/boosts.tsv

history:
  sqlite_path: /tmp/transcriptions.sqlite
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Data.ReloadInterval != time.Minute {
		t.Errorf("data.reload_interval: got %s, want 1m", cfg.Data.ReloadInterval)
	}
	if cfg.Detector.LowFrequency != 10 || cfg.Detector.MaxSpan != 3 {
		t.Errorf("detector: got %+v", cfg.Detector)
	}
	if want := (policy.Thresholds{Default: 2.0, Nasal: 2.5, Fallback: 3.5}); cfg.Policy.Thresholds != want {
		t.Errorf("policy.thresholds: got %+v, want %+v", cfg.Policy.Thresholds, want)
	}
	if cfg.Policy.SyllableRuleEnabled() {
		t.Error("policy.syllable_rule: got enabled, want disabled")
	}
	if cfg.Oracle.Provider != config.OracleBERT {
		t.Errorf("oracle.provider: got %q, want bert", cfg.Oracle.Provider)
	}
	if cfg.Oracle.Timeout != 500*time.Millisecond {
		t.Errorf("oracle.timeout: got %s, want 500ms", cfg.Oracle.Timeout)
	}
	cb := cfg.Oracle.CircuitBreaker
	if cb.MaxFailures != 3 || cb.ResetTimeout != 10*time.Second || cb.HalfOpenMax != 1 {
		t.Errorf("oracle.circuit_breaker: got %+v", cb)
	}
	if g := cfg.Oracle.Guard(); g.Timeout != 500*time.Millisecond || g.CircuitBreaker.MaxFailures != 3 {
		t.Errorf("Guard() = %+v", g)
	}
	if cfg.Build.CorpusFile != "/tmp/dict.txt.big" {
		t.Errorf("build.corpus_file: got %q", cfg.Build.CorpusFile)
	}
	if cfg.History.SQLitePath != "/tmp/transcriptions.sqlite" {
		t.Errorf("history.sqlite_path: got %q", cfg.History.SQLitePath)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("LoadFromReader(%q): %v", doc, err)
		}
		if cfg.Server.ListenAddr != ":8080" {
			t.Errorf("listen_addr: got %q, want :8080", cfg.Server.ListenAddr)
		}
		if cfg.Policy.Thresholds != policy.DefaultThresholds() {
			t.Errorf("thresholds: got %+v, want defaults", cfg.Policy.Thresholds)
		}
		if !cfg.Policy.SyllableRuleEnabled() {
			t.Error("syllable rule disabled by default")
		}
		if cfg.Detector.LowFrequency != detect.DefaultLowFrequency {
			t.Errorf("low_frequency: got %d", cfg.Detector.LowFrequency)
		}
		if cfg.Oracle.Provider != config.OracleNone {
			t.Errorf("oracle.provider: got %q, want none", cfg.Oracle.Provider)
		}
		if cfg.Oracle.MaxSequenceLength != mlm.MaxSequenceLength {
			t.Errorf("max_sequence_length: got %d", cfg.Oracle.MaxSequenceLength)
		}
	}
}

func TestLoadFromReader_PartialKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("policy:\n  thresholds:\n    fallback: 4.0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := policy.Thresholds{Default: 2.0, Nasal: 2.5, Fallback: 4.0}
	if cfg.Policy.Thresholds != want {
		t.Errorf("thresholds: got %+v, want %+v", cfg.Policy.Thresholds, want)
	}
}

func TestLoadFromReader_UnknownKey(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("detector:\n  low_freq: 3\n"))
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "low_freq") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/nonexistent/zhfix.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if n := len(cfg.Detector.Options()); n != 2 {
		t.Errorf("detector options: got %d, want 2", n)
	}
	if n := len(cfg.Policy.Options()); n != 1 {
		t.Errorf("policy options without pairs: got %d, want 1", n)
	}
	cfg.Policy.NasalPairs = []string{"今經"}
	p := policy.New(cfg.Policy.Options()...)
	if c := p.Classify('今', '經'); c != policy.ClassNasal {
		t.Errorf("Classify(今, 經) = %q, want nasal from the configured pair", c)
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

func TestRegistry_NoneIsNil(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	p, err := reg.CreateOracle(config.OracleConfig{Provider: config.OracleNone})
	if err != nil || p != nil {
		t.Fatalf("CreateOracle(none) = %v, %v; want nil, nil", p, err)
	}
}

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	_, err := reg.CreateOracle(config.OracleConfig{Provider: config.OracleBERT})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	want := &mock.Provider{ModelIDValue: "stub"}
	var got config.OracleConfig
	reg.RegisterOracle(config.OracleBERT, func(c config.OracleConfig) (mlm.Provider, error) {
		got = c
		return want, nil
	})

	p, err := reg.CreateOracle(config.OracleConfig{Provider: config.OracleBERT, ModelPath: "m.onnx"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != want {
		t.Error("returned provider is not the expected instance")
	}
	if got.ModelPath != "m.onnx" {
		t.Errorf("factory received %+v", got)
	}
	if names := reg.Oracles(); len(names) != 1 || names[0] != config.OracleBERT {
		t.Errorf("Oracles() = %v", names)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterOracle(config.OracleBERT, func(config.OracleConfig) (mlm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateOracle(config.OracleConfig{Provider: config.OracleBERT})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.in.Level(); got != tt.want {
			t.Errorf("LogLevel(%q).Level() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoad_AppliesOverridesBeforeValidation(t *testing.T) {
	t.Parallel()

	// Without the override the empty snapshot_dir fails validation.
	doc := "data:\n  snapshot_dir: \"\"\n"
	if _, err := config.LoadFromReader(strings.NewReader(doc)); err == nil {
		t.Fatal("empty snapshot_dir: want validation error")
	}
	cfg, err := config.LoadFromReader(strings.NewReader(doc), func(c *config.Config) {
		c.Data.SnapshotDir = "/srv/zhfix/snapshot"
	})
	if err != nil {
		t.Fatalf("LoadFromReader with override: %v", err)
	}
	if cfg.Data.SnapshotDir != "/srv/zhfix/snapshot" {
		t.Errorf("snapshot_dir = %q, want the override", cfg.Data.SnapshotDir)
	}
}
