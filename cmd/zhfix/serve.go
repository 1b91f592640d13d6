package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/zhfix/internal/app"
	"github.com/MrWong99/zhfix/internal/config"
	"github.com/MrWong99/zhfix/internal/observe"
)

// version is stamped at link time.
var version = "dev"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the correction API",
	Long: `Serve POST /v1/correct, POST /v1/score, /healthz, /readyz and /metrics.
The snapshot directory is polled for a new manifest and the config file for
hot-reloadable changes (log level, detector and policy settings).`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	slog.Info("zhfix starting",
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"version", version,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Attributes: []attribute.KeyValue{
			attribute.String("zhfix.oracle.provider", string(cfg.Oracle.Provider)),
			attribute.String("zhfix.snapshot.dir", cfg.Data.SnapshotDir),
		},
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Oracle ────────────────────────────────────────────────────────────────
	backend, err := newRegistry().CreateOracle(cfg.Oracle)
	if err != nil {
		return err
	}

	printStartupSummary(cfg)

	opts := []app.Option{app.WithLevel(level), app.WithMetricsHandler(tel.MetricsHandler())}
	if backend != nil {
		opts = append(opts, app.WithOracle(backend))
	}
	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	// ── Config reload ─────────────────────────────────────────────────────────
	if _, statErr := os.Stat(configPath); statErr == nil {
		w, err := config.NewWatcher(configPath, func(_, next *config.Config) {
			application.ApplyConfig(next)
		}, config.WithOverrides(applyOverrides))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	return runErr
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	th := cfg.Policy.Thresholds
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          zhfix: startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Listen addr", cfg.Server.ListenAddr)
	printRow("Snapshot", cfg.Data.SnapshotDir)
	printRow("Oracle", string(cfg.Oracle.Provider))
	printRow("Thresholds", fmt.Sprintf("%.1f / %.1f / %.1f", th.Default, th.Nasal, th.Fallback))
	printRow("Low frequency", fmt.Sprintf("≤ %d", cfg.Detector.LowFrequency))
	if cfg.History.PostgresDSN != "" {
		printRow("History", "postgres")
	} else {
		printRow("History", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(key, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-13s   : %-19s ║\n", key, value)
}
