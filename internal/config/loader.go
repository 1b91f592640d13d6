package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/zhfix/internal/transcript/detect"
	"github.com/MrWong99/zhfix/pkg/provider/mlm"
)

// maxCalibratedThreshold is the largest threshold the calibration data
// supports. Larger values are allowed but logged.
const maxCalibratedThreshold = 5.0

// Override adjusts a decoded config before it is validated, e.g. to apply
// command-line flags.
type Override func(*Config)

// Load reads the YAML configuration file at path, applies overrides and
// returns the validated [Config].
func Load(path string, overrides ...Override) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, overrides...)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], applies
// overrides and validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader, overrides ...Override) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("server.concurrency %d must be at least 1", cfg.Server.Concurrency))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Data
	if cfg.Data.SnapshotDir == "" {
		errs = append(errs, errors.New("data.snapshot_dir is required"))
	}
	if cfg.Data.ReloadInterval < 0 {
		errs = append(errs, fmt.Errorf("data.reload_interval %s must not be negative", cfg.Data.ReloadInterval))
	}

	// Detector
	d := cfg.Detector
	if d.LowFrequency < 0 {
		errs = append(errs, fmt.Errorf("detector.low_frequency %d must not be negative", d.LowFrequency))
	}
	if d.MinSpan < detect.DefaultMinSpan || d.MaxSpan > detect.DefaultMaxSpan || d.MinSpan > d.MaxSpan {
		errs = append(errs, fmt.Errorf("detector span length [%d, %d] must lie within [%d, %d]",
			d.MinSpan, d.MaxSpan, detect.DefaultMinSpan, detect.DefaultMaxSpan))
	}

	// Policy
	if err := cfg.Policy.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("policy.thresholds: %w", err))
	}
	if th := cfg.Policy.Thresholds; th.Fallback < th.Default {
		errs = append(errs, fmt.Errorf("policy.thresholds.fallback %.2f is below default %.2f", th.Fallback, th.Default))
	}
	for _, v := range []float64{cfg.Policy.Thresholds.Default, cfg.Policy.Thresholds.Nasal, cfg.Policy.Thresholds.Fallback} {
		if v > maxCalibratedThreshold {
			slog.Warn("policy threshold above calibrated range; most corrections will be rejected",
				"threshold", v,
				"max", maxCalibratedThreshold,
			)
			break
		}
	}
	for i, p := range cfg.Policy.NasalPairs {
		r := []rune(p)
		if utf8.RuneCountInString(p) != 2 || r[0] == r[1] {
			errs = append(errs, fmt.Errorf("policy.nasal_pairs[%d] %q must be two different characters", i, p))
		}
	}

	// Oracle
	o := cfg.Oracle
	switch {
	case !o.Provider.IsValid():
		errs = append(errs, fmt.Errorf("oracle.provider %q is invalid; valid values: none, bert", o.Provider))
	case o.Provider == OracleBERT:
		if o.ModelPath == "" {
			errs = append(errs, errors.New("oracle.model_path is required when provider is bert"))
		}
		if o.VocabPath == "" {
			errs = append(errs, errors.New("oracle.vocab_path is required when provider is bert"))
		}
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("oracle.timeout %s must be positive", o.Timeout))
	}
	if o.MaxSequenceLength < 3 || o.MaxSequenceLength > mlm.MaxSequenceLength {
		errs = append(errs, fmt.Errorf("oracle.max_sequence_length %d is out of range [3, %d]", o.MaxSequenceLength, mlm.MaxSequenceLength))
	}
	if cb := o.CircuitBreaker; cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("oracle.circuit_breaker values must not be negative"))
	}

	// Build
	if cfg.Build.CorpusURL == "" && cfg.Build.CorpusFile == "" {
		errs = append(errs, errors.New("build.corpus_url or build.corpus_file is required"))
	}

	// History
	if cfg.History.SQLitePath != "" && cfg.History.PostgresDSN != "" {
		errs = append(errs, errors.New("history: set either sqlite_path or postgres_dsn, not both"))
	}

	return errors.Join(errs...)
}
