// Package mlm defines the Provider interface for masked-language-model oracles.
//
// A masked-LM oracle takes a sentence with exactly one character position
// masked and returns the model's logit for every vocabulary token at that
// position. The correction engine uses the difference between the candidate's
// and the original's logit as its contextual score, so the oracle is consumed
// strictly as a black box: text in, per-position distribution out.
//
// Providers exist for an ONNX Runtime BERT export (package bert) and a
// scriptable test double (package mock).
//
// Implementations must be safe for concurrent use.
package mlm

import (
	"context"
	"errors"
	"fmt"
)

// MaxSequenceLength is the longest token sequence, special tokens included,
// that providers must accept.
const MaxSequenceLength = 512

var (
	// ErrUnavailable is returned when the oracle cannot serve requests: the
	// model failed to load, inference failed, or a circuit breaker is open.
	ErrUnavailable = errors.New("mlm: oracle unavailable")

	// ErrTimeout is returned when a prediction did not complete within its
	// deadline.
	ErrTimeout = errors.New("mlm: oracle timeout")

	// ErrUnknownToken is returned by [Prediction.Logit] when a character is not
	// in the model vocabulary.
	ErrUnknownToken = errors.New("mlm: unknown token")
)

// Vocab maps tokens to logit indices.
type Vocab interface {
	// ID returns the index of token and whether it is in the vocabulary.
	ID(token string) (int, bool)

	// Size returns the number of tokens.
	Size() int
}

// Prediction is the oracle output for one masked position.
type Prediction struct {
	// Logits holds one value per vocabulary entry.
	Logits []float32

	// Vocab maps characters to indices into Logits.
	Vocab Vocab
}

// Logit returns the logit of character r. It returns [ErrUnknownToken] when r
// is not in the vocabulary or its index is out of range.
func (p *Prediction) Logit(r rune) (float32, error) {
	id, ok := p.Vocab.ID(string(r))
	if !ok || id < 0 || id >= len(p.Logits) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownToken, r)
	}
	return p.Logits[id], nil
}

// Delta returns logit(candidate) − logit(original).
func (p *Prediction) Delta(original, candidate rune) (float64, error) {
	o, err := p.Logit(original)
	if err != nil {
		return 0, err
	}
	c, err := p.Logit(candidate)
	if err != nil {
		return 0, err
	}
	return float64(c) - float64(o), nil
}

// Provider is the abstraction over any masked-LM backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Predict masks the character at rune offset pos of text and returns the
	// logits at that position. Text longer than the model window is truncated
	// around pos by the provider.
	//
	// When ctx is cancelled or its deadline passes, Predict returns promptly
	// with an error wrapping ctx.Err(); a deadline also wraps [ErrTimeout].
	Predict(ctx context.Context, text string, pos int) (*Prediction, error)

	// ModelID identifies the loaded model for logs and metrics.
	ModelID() string
}
