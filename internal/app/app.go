// Package app wires the zhfix subsystems into a running correction server.
//
// The App struct owns the full lifecycle: New loads the knowledge snapshot,
// guards the oracle, connects the transcript history, and builds the
// correction engine; Run serves HTTP until the context ends; Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithHolder, WithOracle,
// WithRecorder, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/zhfix/internal/config"
	"github.com/MrWong99/zhfix/internal/health"
	"github.com/MrWong99/zhfix/internal/knowledge"
	"github.com/MrWong99/zhfix/internal/observe"
	"github.com/MrWong99/zhfix/internal/resilience"
	"github.com/MrWong99/zhfix/internal/transcript"
	"github.com/MrWong99/zhfix/pkg/history"
	"github.com/MrWong99/zhfix/pkg/history/postgres"
	"github.com/MrWong99/zhfix/pkg/provider/mlm"
)

// App owns all subsystem lifetimes and serves the correction API.
type App struct {
	mu  sync.Mutex
	cfg *config.Config

	metrics        *observe.Metrics
	level          *slog.LevelVar
	metricsHandler http.Handler

	// Subsystems, initialised in New and torn down in Shutdown.
	holder   *knowledge.Holder
	watcher  *knowledge.Watcher
	backend  mlm.Provider
	oracle   *resilience.Oracle
	recorder history.Recorder
	engine   atomic.Pointer[transcript.Engine]
	handler  http.Handler
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHolder injects a snapshot holder instead of loading data.snapshot_dir.
func WithHolder(h *knowledge.Holder) Option {
	return func(a *App) { a.holder = h }
}

// WithOracle sets the oracle backend. It is wrapped in a timeout and circuit
// breaker guard configured by the oracle section. Without one, every
// decision uses the frequency fallback.
func WithOracle(p mlm.Provider) Option {
	return func(a *App) { a.backend = p }
}

// WithRecorder injects a transcript recorder instead of connecting to
// history.postgres_dsn.
func WithRecorder(r history.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevel sets the level variable that config reloads adjust.
func WithLevel(l *slog.LevelVar) Option {
	return func(a *App) { a.level = l }
}

// WithMetricsHandler replaces the /metrics handler. Default:
// [promhttp.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It performs all
// initialisation synchronously and fails if the snapshot cannot be loaded.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Level())
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	// ── 1. Knowledge snapshot ────────────────────────────────────────────
	if err := a.initSnapshot(); err != nil {
		return nil, fmt.Errorf("app: init snapshot: %w", err)
	}

	// ── 2. Oracle ────────────────────────────────────────────────────────
	a.initOracle()

	// ── 3. Transcript history ────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 4. Correction engine ─────────────────────────────────────────────
	a.engine.Store(a.buildEngine(cfg))

	// ── 5. HTTP surface ──────────────────────────────────────────────────
	a.handler = a.routes()
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initSnapshot() error {
	if a.holder != nil {
		return nil
	}
	dir := a.cfg.Data.SnapshotDir
	a.holder = knowledge.NewHolder(nil)

	if a.cfg.Data.ReloadInterval <= 0 {
		s, err := knowledge.LoadDir(dir)
		if err != nil {
			return err
		}
		a.holder.Swap(s)
		slog.Info("snapshot loaded", "dir", dir, "version", s.Version())
		return nil
	}

	w, err := knowledge.NewWatcher(dir, a.holder,
		knowledge.WithInterval(a.cfg.Data.ReloadInterval),
		knowledge.WithOnChange(func(_, s *knowledge.Snapshot) {
			a.metrics.RecordSnapshotSwap(context.Background(), s.Version())
		}),
	)
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

func (a *App) initOracle() {
	if a.backend == nil {
		slog.Warn("no oracle configured; corrections use the frequency fallback only")
		return
	}
	a.oracle = resilience.NewOracle(a.backend, a.cfg.Oracle.Guard(), resilience.WithOracleMetrics(a.metrics))
	if c, ok := a.backend.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	slog.Info("oracle ready", "model", a.backend.ModelID(), "timeout", a.cfg.Oracle.Timeout)
}

func (a *App) initHistory(ctx context.Context) error {
	if a.recorder != nil || a.cfg.History.PostgresDSN == "" {
		return nil
	}
	store, err := postgres.NewStore(ctx, a.cfg.History.PostgresDSN)
	if err != nil {
		return err
	}
	a.recorder = store
	a.closers = append(a.closers, store.Close)
	return nil
}

// buildEngine constructs a correction engine for cfg. Engines are cheap and
// stateless between passes, so a config change swaps in a new one.
func (a *App) buildEngine(cfg *config.Config) *transcript.Engine {
	opts := []transcript.EngineOption{
		transcript.WithPolicyOptions(cfg.Policy.Options()...),
		transcript.WithSyllableRule(cfg.Policy.SyllableRuleEnabled()),
		transcript.WithDetectorOptions(cfg.Detector.Options()...),
		transcript.WithConcurrency(cfg.Server.Concurrency),
		transcript.WithMetrics(a.metrics),
	}
	if a.oracle != nil {
		opts = append(opts, transcript.WithOracle(a.oracle))
	}
	return transcript.NewEngine(a.holder, opts...)
}

func (a *App) routes() http.Handler {
	checks := []health.Checker{health.Snapshot(a.holder)}
	if a.oracle != nil {
		checks = append(checks, health.Oracle(a.oracle))
	}
	hh := health.New(checks, health.WithVersion(a.holder.Version))

	mux := http.NewServeMux()
	hh.Register(mux)
	mux.Handle("GET /metrics", a.metricsHandler)
	mux.HandleFunc("POST /v1/correct", a.handleCorrect)
	mux.HandleFunc("POST /v1/score", a.handleScore)
	return observe.Middleware(a.metrics, observe.WithSnapshotVersion(a.holder.Version))(mux)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.handler }

// Engine returns the current correction engine.
func (a *App) Engine() *transcript.Engine { return a.engine.Load() }

// Holder returns the snapshot holder.
func (a *App) Holder() *knowledge.Holder { return a.holder }

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of cfg: the log level and the
// engine settings. Changes that need a restart are logged and ignored.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.mu.Lock()
	old := a.cfg
	a.cfg = cfg
	a.mu.Unlock()

	d := config.Diff(old, cfg)
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.EngineChanged {
		a.engine.Store(a.buildEngine(cfg))
		slog.Info("correction engine rebuilt",
			"detector_changed", d.DetectorChanged,
			"policy_changed", d.PolicyChanged,
			"thresholds", cfg.Policy.Thresholds,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "keys", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled or the listener fails. It returns
// nil after a cancellation.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, then runs the closers in order. If ctx
// expires first, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for _, closer := range a.closers {
		_ = closer()
	}
}
