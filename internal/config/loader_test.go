package config_test

import (
	"math"
	"strings"
	"testing"

	"github.com/MrWong99/zhfix/internal/config"
)

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		mention string
	}{
		{"log level", "server:\n  log_level: verbose\n", "log_level"},
		{"concurrency", "server:\n  concurrency: 0\n", "server.concurrency"},
		{"tls half set", "server:\n  tls:\n    cert_file: c.pem\n", "server.tls"},
		{"snapshot dir", "data:\n  snapshot_dir: \"\"\n", "data.snapshot_dir"},
		{"reload interval", "data:\n  reload_interval: -1s\n", "data.reload_interval"},
		{"low frequency", "detector:\n  low_frequency: -1\n", "detector.low_frequency"},
		{"span too long", "detector:\n  max_span: 5\n", "span length"},
		{"span inverted", "detector:\n  min_span: 4\n  max_span: 3\n", "span length"},
		{"nasal below default", "policy:\n  thresholds:\n    nasal: 1.0\n", "nasal threshold"},
		{"fallback below default", "policy:\n  thresholds:\n    fallback: 1.0\n", "fallback"},
		{"infinite threshold", "policy:\n  thresholds:\n    nasal: .inf\n", "finite"},
		{"nasal pair length", "policy:\n  nasal_pairs: [銀]\n", "nasal_pairs[0]"},
		{"nasal pair identity", "policy:\n  nasal_pairs: [銀銀]\n", "nasal_pairs[0]"},
		{"oracle provider", "oracle:\n  provider: gpt\n", "oracle.provider"},
		{"bert model path", "oracle:\n  provider: bert\n  vocab_path: v.txt\n", "oracle.model_path"},
		{"bert vocab path", "oracle:\n  provider: bert\n  model_path: m.onnx\n", "oracle.vocab_path"},
		{"oracle timeout", "oracle:\n  timeout: 0s\n", "oracle.timeout"},
		{"sequence length", "oracle:\n  max_sequence_length: 1024\n", "max_sequence_length"},
		{"breaker", "oracle:\n  circuit_breaker:\n    max_failures: -1\n", "circuit_breaker"},
		{"no corpus", "build:\n  corpus_url: \"\"\n", "build.corpus_url"},
		{"two histories", "history:\n  sqlite_path: a.sqlite\n  postgres_dsn: postgres://localhost/zhfix\n", "history"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("error should mention %q, got: %v", tt.mention, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  log_level: loud
oracle:
  provider: bert
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"log_level", "model_path", "vocab_path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_DefaultIsValid(t *testing.T) {
	t.Parallel()

	if err := config.Validate(config.Default()); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
}

func TestValidate_NaNThreshold(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Policy.Thresholds.Default = math.NaN()
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected error for NaN threshold, got nil")
	}
}

func TestValidate_HighThresholdOnlyWarns(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Policy.Thresholds.Default = 6
	cfg.Policy.Thresholds.Nasal = 6
	cfg.Policy.Thresholds.Fallback = 7
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
