// Package mock provides a test double for the mlm.Provider interface.
//
// Use Provider to script oracle answers without a model runtime and to verify
// which (text, position) pairs were queried.
//
// Example:
//
//	p := &mock.Provider{
//	    PredictFunc: func(text string, pos int) map[rune]float32 {
//	        return map[rune]float32{'底': 1, '低': 6}
//	    },
//	}
//	pred, _ := p.Predict(ctx, "今天氣溫很底", 5)
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/zhfix/pkg/provider/mlm"
)

// PredictCall records a single invocation of Predict.
type PredictCall struct {
	// Text is the sentence passed to Predict.
	Text string
	// Pos is the masked rune offset.
	Pos int
}

// Provider is a mock implementation of mlm.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// PredictFunc computes the logits for a masked position. Characters
	// absent from the returned map are outside the vocabulary. When nil,
	// Logits is used for every call.
	PredictFunc func(text string, pos int) map[rune]float32

	// Logits is returned for every call when PredictFunc is nil.
	Logits map[rune]float32

	// PredictErr, if non-nil, is returned as the error from Predict.
	PredictErr error

	// Delay makes Predict wait before answering. A context that ends first
	// aborts the wait and Predict returns its error.
	Delay time.Duration

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// --- Call records ---

	// PredictCalls records every call to Predict in order.
	PredictCalls []PredictCall
}

// Predict records the call and returns the scripted logits.
func (p *Provider) Predict(ctx context.Context, text string, pos int) (*mlm.Prediction, error) {
	p.mu.Lock()
	p.PredictCalls = append(p.PredictCalls, PredictCall{Text: text, Pos: pos})
	fn, fixed, predictErr, delay := p.PredictFunc, p.Logits, p.PredictErr, p.Delay
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, contextErr(ctx)
		case <-t.C:
		}
	}
	if ctx.Err() != nil {
		return nil, contextErr(ctx)
	}
	if predictErr != nil {
		return nil, predictErr
	}

	logits := fixed
	if fn != nil {
		logits = fn(text, pos)
	}
	return NewPrediction(logits), nil
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []PredictCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.PredictCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PredictCalls = nil
}

// NewPrediction builds a prediction whose vocabulary is exactly the keys of
// logits, in code point order.
func NewPrediction(logits map[rune]float32) *mlm.Prediction {
	keys := make([]rune, 0, len(logits))
	for r := range logits {
		keys = append(keys, r)
	}
	slices.Sort(keys)
	tokens := make([]string, len(keys))
	values := make([]float32, len(keys))
	for i, r := range keys {
		tokens[i] = string(r)
		values[i] = logits[r]
	}
	return &mlm.Prediction{Logits: values, Vocab: mlm.NewMapVocab(tokens)}
}

func contextErr(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %w", mlm.ErrTimeout, ctx.Err())
	}
	return ctx.Err()
}

// Ensure Provider implements mlm.Provider at compile time.
var _ mlm.Provider = (*Provider)(nil)
