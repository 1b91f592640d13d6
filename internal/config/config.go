// Package config provides the configuration schema, loader, and oracle
// registry for the zhfix correction engine.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/zhfix/internal/resilience"
	"github.com/MrWong99/zhfix/internal/transcript/detect"
	"github.com/MrWong99/zhfix/internal/transcript/lexicon"
	"github.com/MrWong99/zhfix/internal/transcript/policy"
	"github.com/MrWong99/zhfix/pkg/provider/mlm"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level returns the [slog.Level] for l. Unknown and empty levels map to
// info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OracleProvider selects the masked language model backend.
type OracleProvider string

const (
	// OracleNone disables contextual scoring. Every decision uses the
	// frequency fallback.
	OracleNone OracleProvider = "none"

	// OracleBERT runs a BERT masked language model through ONNX Runtime.
	OracleBERT OracleProvider = "bert"
)

// IsValid reports whether p is a recognised oracle provider.
func (p OracleProvider) IsValid() bool {
	return p == OracleNone || p == OracleBERT
}

// Config is the root configuration structure for zhfix.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Data     DataConfig     `yaml:"data"`
	Detector DetectorConfig `yaml:"detector"`
	Policy   PolicyConfig   `yaml:"policy"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Build    BuildConfig    `yaml:"build"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig holds network and logging settings for the correction server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// Concurrency bounds how many spans of one pass are scored at once.
	Concurrency int `yaml:"concurrency"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DataConfig locates the knowledge snapshot.
type DataConfig struct {
	// SnapshotDir holds the four data files and manifest.json.
	SnapshotDir string `yaml:"snapshot_dir"`

	// ReloadInterval is how often the manifest is polled for a new version.
	// Zero disables reloading.
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// DetectorConfig tunes the suspicious span detector.
type DetectorConfig struct {
	// LowFrequency is the count at or below which a span is suspicious.
	LowFrequency int64 `yaml:"low_frequency"`

	MinSpan int `yaml:"min_span"`
	MaxSpan int `yaml:"max_span"`
}

// Options returns the detector options for c.
func (c DetectorConfig) Options() []detect.Option {
	return []detect.Option{
		detect.WithLowFrequency(c.LowFrequency),
		detect.WithSpanLength(c.MinSpan, c.MaxSpan),
	}
}

// PolicyConfig tunes the decision policy.
type PolicyConfig struct {
	// Thresholds are the acceptance thresholds per confusion class and the
	// stricter frequency-only fallback.
	Thresholds policy.Thresholds `yaml:"thresholds"`

	// NasalPairs are extra two-character pairs treated as nasal confusions
	// in both directions, on top of the built-in list.
	NasalPairs []string `yaml:"nasal_pairs"`

	// SyllableRule classifies any pair whose readings differ only by a
	// final -n/-ng as nasal. Default: true.
	SyllableRule *bool `yaml:"syllable_rule"`
}

// SyllableRuleEnabled reports whether the syllable rule is on.
func (c PolicyConfig) SyllableRuleEnabled() bool {
	return c.SyllableRule == nil || *c.SyllableRule
}

// Options returns the policy options for c.
func (c PolicyConfig) Options() []policy.Option {
	opts := []policy.Option{policy.WithThresholds(c.Thresholds)}
	if len(c.NasalPairs) > 0 {
		opts = append(opts, policy.WithNasalPairs(c.NasalPairs...))
	}
	return opts
}

// OracleConfig selects and guards the contextual scorer.
type OracleConfig struct {
	Provider OracleProvider `yaml:"provider"`

	// ModelPath is the ONNX model file.
	ModelPath string `yaml:"model_path"`

	// VocabPath is the tokenizer vocabulary (vocab.txt or tokenizer.json).
	VocabPath string `yaml:"vocab_path"`

	// LibraryPath is the ONNX Runtime shared library. Empty uses the
	// platform default.
	LibraryPath string `yaml:"library_path"`

	// Timeout bounds a single prediction.
	Timeout time.Duration `yaml:"timeout"`

	// MaxSequenceLength caps the token window sent to the model.
	MaxSequenceLength int `yaml:"max_sequence_length"`

	// CircuitBreaker trips the oracle after repeated failures.
	CircuitBreaker resilience.CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// Guard returns the resilience settings for the oracle.
func (c OracleConfig) Guard() resilience.OracleConfig {
	return resilience.OracleConfig{Timeout: c.Timeout, CircuitBreaker: c.CircuitBreaker}
}

// BuildConfig drives offline snapshot construction.
type BuildConfig struct {
	// CorpusURL is the jieba-format frequency dictionary to download.
	CorpusURL string `yaml:"corpus_url"`

	// CorpusFile uses a local corpus instead of downloading one.
	CorpusFile string `yaml:"corpus_file"`

	// CacheDir caches the downloaded corpus between builds.
	CacheDir string `yaml:"cache_dir"`

	// BoostFile is an optional TSV of extra word frequencies.
	BoostFile string `yaml:"boost_file"`

	// Conversion is the OpenCC profile applied to the corpus.
	Conversion string `yaml:"conversion"`
}

// HistoryConfig locates stored transcripts for validation runs. At most one
// source may be set.
type HistoryConfig struct {
	// SQLitePath is a host transcription store with a ZTRANSCRIPTION table.
	SQLitePath string `yaml:"sqlite_path"`

	// PostgresDSN points at a database with a session_entries table.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Default returns a config with every default filled in. [LoadFromReader]
// decodes on top of it, so omitted keys keep these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  ":8080",
			LogLevel:    LogInfo,
			Concurrency: 8,
		},
		Data: DataConfig{
			SnapshotDir:    "data",
			ReloadInterval: 30 * time.Second,
		},
		Detector: DetectorConfig{
			LowFrequency: detect.DefaultLowFrequency,
			MinSpan:      detect.DefaultMinSpan,
			MaxSpan:      detect.DefaultMaxSpan,
		},
		Policy: PolicyConfig{
			Thresholds: policy.DefaultThresholds(),
		},
		Oracle: OracleConfig{
			Provider:          OracleNone,
			Timeout:           resilience.DefaultOracleTimeout,
			MaxSequenceLength: mlm.MaxSequenceLength,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
				HalfOpenMax:  3,
			},
		},
		Build: BuildConfig{
			CorpusURL:  lexicon.DefaultCorpusURL,
			CacheDir:   ".cache",
			Conversion: lexicon.DefaultConversion,
		},
	}
}
