// Command zhfix corrects homophone errors in Traditional Chinese speech
// recognition output. It builds the knowledge snapshot, serves the correction
// API, and offers offline tools for scoring and history validation.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/zhfix/internal/config"
	"github.com/MrWong99/zhfix/internal/knowledge"
	"github.com/MrWong99/zhfix/internal/resilience"
	"github.com/MrWong99/zhfix/internal/transcript"
	"github.com/MrWong99/zhfix/pkg/provider/mlm"
	"github.com/MrWong99/zhfix/pkg/provider/mlm/bert"
)

var (
	configPath string
	logLevel   string
	dataDir    string

	// level is adjusted on config reloads.
	level = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:   "zhfix",
	Short: "Homophone correction for Traditional Chinese ASR transcripts",
	Long: `zhfix repairs same-sounding character substitutions in final speech
recognition transcripts. Suspicious low-frequency words are found with a
segmentation-aware detector, candidates come from a toneless pinyin index, and
a masked language model decides whether a replacement fits the context.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "override data.snapshot_dir")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "zhfix: %v\n", err)
		os.Exit(1)
	}
}

// ── Configuration ─────────────────────────────────────────────────────────────

// loadConfig reads the config file and applies flag overrides. A missing file
// is only an error when --config was given explicitly; otherwise the built-in
// defaults are used.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, applyOverrides)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, err
		}
		cfg = config.Default()
		applyOverrides(cfg)
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}

	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

// applyOverrides applies the persistent flags to cfg.
func applyOverrides(cfg *config.Config) {
	if logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(logLevel)
	}
	if dataDir != "" {
		cfg.Data.SnapshotDir = dataDir
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// newRegistry returns a registry with every built-in oracle backend.
func newRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterOracle(config.OracleBERT, func(c config.OracleConfig) (mlm.Provider, error) {
		o, err := bert.New(c.ModelPath, c.VocabPath,
			bert.WithLibraryPath(c.LibraryPath),
			bert.WithMaxSequenceLength(c.MaxSequenceLength),
		)
		if err != nil {
			return nil, err
		}
		return o, nil
	})
	return reg
}

// openOracle creates the configured oracle backend. It returns a nil provider
// when oracle.provider is "none". The returned close function is never nil.
func openOracle(cfg *config.Config) (mlm.Provider, func(), error) {
	p, err := newRegistry().CreateOracle(cfg.Oracle)
	if err != nil {
		return nil, func() {}, err
	}
	if p == nil {
		return nil, func() {}, nil
	}
	slog.Info("oracle loaded", "provider", cfg.Oracle.Provider, "model", p.ModelID())
	closeFn := func() {}
	if c, ok := p.(interface{ Close() error }); ok {
		closeFn = func() {
			if err := c.Close(); err != nil {
				slog.Warn("oracle close error", "err", err)
			}
		}
	}
	return p, closeFn, nil
}

// newEngine loads the snapshot and builds a correction engine for offline
// commands. The returned close function releases the oracle.
func newEngine(cfg *config.Config) (*transcript.Engine, *knowledge.Snapshot, func(), error) {
	snap, err := knowledge.LoadDir(cfg.Data.SnapshotDir)
	if err != nil {
		return nil, nil, nil, err
	}
	backend, closeFn, err := openOracle(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []transcript.EngineOption{
		transcript.WithPolicyOptions(cfg.Policy.Options()...),
		transcript.WithSyllableRule(cfg.Policy.SyllableRuleEnabled()),
		transcript.WithDetectorOptions(cfg.Detector.Options()...),
		transcript.WithConcurrency(cfg.Server.Concurrency),
	}
	if backend != nil {
		opts = append(opts, transcript.WithOracle(resilience.NewOracle(backend, cfg.Oracle.Guard())))
	} else {
		slog.Warn("no oracle configured; decisions use the frequency fallback")
	}
	return transcript.NewEngine(knowledge.NewHolder(snap), opts...), snap, closeFn, nil
}
