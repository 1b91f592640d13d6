package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/zhfix/internal/observe"
	"github.com/MrWong99/zhfix/pkg/provider/mlm"
)

// DefaultOracleTimeout bounds a single prediction when no timeout is
// configured.
const DefaultOracleTimeout = 2 * time.Second

// errAbandoned marks a call whose caller went away. It neither counts
// against a breaker nor triggers failover.
var errAbandoned = errors.New("resilience: call abandoned")

// OracleConfig configures an [Oracle].
type OracleConfig struct {
	// Timeout bounds every prediction. Default: [DefaultOracleTimeout].
	Timeout time.Duration

	// CircuitBreaker configures the breaker of every backend. IsFailure is
	// overridden.
	CircuitBreaker CircuitBreakerConfig
}

// OracleOption is a functional option for an [Oracle].
type OracleOption func(*Oracle)

// WithOracleMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithOracleMetrics(m *observe.Metrics) OracleOption {
	return func(o *Oracle) {
		if m != nil {
			o.metrics = m
		}
	}
}

// Oracle is an [mlm.Provider] that guards one or more backends. Every failure
// it returns wraps [mlm.ErrUnavailable]; timeouts also wrap [mlm.ErrTimeout].
// When the caller's context ends first, its error is returned unwrapped.
type Oracle struct {
	group   *FallbackGroup[mlm.Provider]
	timeout time.Duration
	metrics *observe.Metrics
}

var _ mlm.Provider = (*Oracle)(nil)

// NewOracle returns an [Oracle] with primary as its first backend.
func NewOracle(primary mlm.Provider, cfg OracleConfig, opts ...OracleOption) *Oracle {
	o := &Oracle{timeout: cfg.Timeout}
	if o.timeout <= 0 {
		o.timeout = DefaultOracleTimeout
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}

	abandoned := func(err error) bool { return errors.Is(err, errAbandoned) }
	cb := cfg.CircuitBreaker
	cb.IsFailure = func(err error) bool { return !abandoned(err) }
	o.group = NewFallbackGroup(primary, backendName(primary, 0), FallbackConfig{
		CircuitBreaker: cb,
		Stop:           abandoned,
	})
	return o
}

func backendName(p mlm.Provider, i int) string {
	if id := p.ModelID(); id != "" {
		return id
	}
	return fmt.Sprintf("oracle-%d", i)
}

// AddFallback registers another backend tried after the previous ones. It
// must be called before the oracle is used.
func (o *Oracle) AddFallback(p mlm.Provider) {
	o.group.AddFallback(backendName(p, o.group.Len()), p)
}

// ModelID returns the primary backend's model identifier.
func (o *Oracle) ModelID() string {
	return o.group.entries[0].value.ModelID()
}

// Predict queries the first healthy backend.
func (o *Oracle) Predict(ctx context.Context, text string, pos int) (*mlm.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pred, err := ExecuteWithResult(o.group, func(p mlm.Provider) (*mlm.Prediction, error) {
		return o.call(ctx, p, text, pos)
	})
	switch {
	case err == nil:
		return pred, nil
	case errors.Is(err, errAbandoned):
		return nil, ctx.Err()
	case errors.Is(err, ErrCircuitOpen):
		o.metrics.RecordOracleError(ctx, o.ModelID(), "circuit_open")
	}
	return nil, fmt.Errorf("%w: %w", mlm.ErrUnavailable, err)
}

func (o *Oracle) call(ctx context.Context, p mlm.Provider, text string, pos int) (*mlm.Prediction, error) {
	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	pred, err := p.Predict(cctx, text, pos)
	elapsed := time.Since(start).Seconds()
	model := p.ModelID()

	switch {
	case err == nil:
		o.metrics.RecordOracleRequest(ctx, model, "ok", elapsed)
		return pred, nil
	case ctx.Err() != nil:
		o.metrics.RecordOracleRequest(ctx, model, "abandoned", elapsed)
		return nil, fmt.Errorf("%w: %w", errAbandoned, ctx.Err())
	case errors.Is(err, mlm.ErrTimeout) || errors.Is(cctx.Err(), context.DeadlineExceeded):
		o.metrics.RecordOracleRequest(ctx, model, "timeout", elapsed)
		o.metrics.RecordOracleError(ctx, model, "timeout")
		if !errors.Is(err, mlm.ErrTimeout) {
			err = fmt.Errorf("%w after %s: %w", mlm.ErrTimeout, o.timeout, err)
		}
		return nil, err
	default:
		o.metrics.RecordOracleRequest(ctx, model, "error", elapsed)
		o.metrics.RecordOracleError(ctx, model, "error")
		return nil, err
	}
}

// BackendStatus is the breaker state of one backend.
type BackendStatus struct {
	Name  string
	State State
}

// Status returns the breaker state of every backend in order.
func (o *Oracle) Status() []BackendStatus {
	bs := o.group.Breakers()
	out := make([]BackendStatus, len(bs))
	for i, b := range bs {
		out[i] = BackendStatus{Name: b.Name(), State: b.State()}
	}
	return out
}

// Available reports whether at least one backend's breaker admits calls.
func (o *Oracle) Available() bool {
	return !o.group.AllOpen()
}
