// Package scorer computes the two signals for a candidate replacement.
//
// The frequency-ratio score is ln(freq(candidate)) − ln(freq(original)+1). It
// is cheap and purely lexical; a candidate with no frequency scores −Inf.
//
// The contextual score masks every position where candidate and original
// differ, asks the masked-LM oracle for the logits there, and sums
// logit(candidate) − logit(original) over those positions. Positions are
// treated independently; no joint re-scoring is attempted.
//
// Oracle queries are memoized per [Session]: every (text, position) pair is
// predicted at most once no matter how many candidates share it, and
// concurrent callers asking for the same position wait for a single call.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/zhfix/internal/transcript/candidate"
	"github.com/MrWong99/zhfix/pkg/provider/mlm"
)

// ErrUnscorable is returned when a candidate cannot be scored contextually,
// for example because a character is outside the oracle vocabulary.
var ErrUnscorable = errors.New("scorer: candidate unscorable")

// Lexicon is the frequency lookup the frequency-ratio score needs.
type Lexicon interface {
	Freq(word string) int64
}

// FrequencyScore returns ln(freq(candidate)) − ln(freq(original)+1).
func FrequencyScore(words Lexicon, original, candidate string) float64 {
	return math.Log(float64(words.Freq(candidate))) - math.Log(float64(words.Freq(original))+1)
}

// Scorer computes both signals. It is safe for concurrent use.
type Scorer struct {
	words  Lexicon
	oracle mlm.Provider
}

// New returns a [Scorer]. oracle may be nil, in which case every contextual
// score fails with [mlm.ErrUnavailable].
func New(words Lexicon, oracle mlm.Provider) *Scorer {
	return &Scorer{words: words, oracle: oracle}
}

// Frequency returns the frequency-ratio score of replacing original with
// candidate.
func (s *Scorer) Frequency(original, candidate string) float64 {
	return FrequencyScore(s.words, original, candidate)
}

// Contextual scores a single whole-word pair in text. original starts at rune
// offset in text; candidate must have the same length and may differ at
// several positions. See [Session.Contextual].
func (s *Scorer) Contextual(ctx context.Context, text string, offset int, original, candidate string) (float64, error) {
	return s.NewSession(text).Contextual(ctx, offset, original, candidate)
}

// NewSession returns a memoizing scoring session for one text.
func (s *Scorer) NewSession(text string) *Session {
	return &Session{
		scorer: s,
		text:   text,
		runes:  []rune(text),
		done:   make(map[int]outcome),
	}
}

type outcome struct {
	pred *mlm.Prediction
	err  error
}

// Session scores candidates against one text, memoizing oracle predictions
// per position. It is safe for concurrent use and must not outlive the
// correction pass that created it.
type Session struct {
	scorer *Scorer
	text   string
	runes  []rune

	group singleflight.Group
	mu    sync.Mutex
	done  map[int]outcome
	calls int
}

// Text returns the text the session scores against.
func (ss *Session) Text() string { return ss.text }

// Calls returns the number of oracle invocations made so far.
func (ss *Session) Calls() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.calls
}

// Prediction returns the oracle prediction with rune pos masked, querying
// the oracle only on first use. Failures are memoized as well.
func (ss *Session) Prediction(ctx context.Context, pos int) (*mlm.Prediction, error) {
	ss.mu.Lock()
	if o, ok := ss.done[pos]; ok {
		ss.mu.Unlock()
		return o.pred, o.err
	}
	ss.mu.Unlock()

	v, err, _ := ss.group.Do(strconv.Itoa(pos), func() (any, error) {
		ss.mu.Lock()
		if o, ok := ss.done[pos]; ok {
			ss.mu.Unlock()
			return o.pred, o.err
		}
		ss.mu.Unlock()

		var (
			pred *mlm.Prediction
			err  error
		)
		if ss.scorer.oracle == nil {
			err = mlm.ErrUnavailable
		} else {
			pred, err = ss.scorer.oracle.Predict(ctx, ss.text, pos)
		}

		ss.mu.Lock()
		ss.done[pos] = outcome{pred, err}
		ss.calls++
		ss.mu.Unlock()
		return pred, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*mlm.Prediction), nil
}

// Contextual returns the summed logit delta of candidate over original at
// every differing position. original must occur at rune offset of the
// session text. Identical words score exactly 0 without querying the oracle.
//
// Oracle failures are returned wrapped so callers can fall back; characters
// outside the vocabulary yield [ErrUnscorable].
func (ss *Session) Contextual(ctx context.Context, offset int, original, cand string) (float64, error) {
	diff, err := candidate.Diff(original, cand)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnscorable, err)
	}
	orig, repl := []rune(original), []rune(cand)
	if offset < 0 || offset+len(orig) > len(ss.runes) || string(ss.runes[offset:offset+len(orig)]) != original {
		return 0, fmt.Errorf("%w: %q not found at offset %d", ErrUnscorable, original, offset)
	}

	var sum float64
	for _, i := range diff {
		pred, err := ss.Prediction(ctx, offset+i)
		if err != nil {
			return 0, fmt.Errorf("scorer: predict position %d: %w", offset+i, err)
		}
		d, err := pred.Delta(orig[i], repl[i])
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrUnscorable, err)
		}
		sum += d
	}
	return sum, nil
}
