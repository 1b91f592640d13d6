// Package policy turns candidate scores into accept/reject verdicts.
//
// The verdict is a pure function of (score, threshold): accept iff the score
// is strictly greater than the threshold of the pair's confusion class. Nasal
// confusions are acoustically closer and need stronger contextual evidence.
// When the contextual oracle is unavailable the frequency-ratio score decides
// against the stricter fallback threshold instead.
package policy

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/antzucaro/matchr"
)

// Class is the confusion class of a character pair.
type Class string

const (
	ClassDefault Class = "default"
	ClassNasal   Class = "nasal"
)

// IsValid reports whether c is a known class.
func (c Class) IsValid() bool {
	return c == ClassDefault || c == ClassNasal
}

// Verdict is the outcome of a decision.
type Verdict string

const (
	Accept Verdict = "accept"
	Reject Verdict = "reject"
)

// Source names the signal that decided a verdict.
type Source string

const (
	SourceContextual Source = "contextual"
	SourceFrequency  Source = "frequency"
)

// Thresholds holds the per-class decision thresholds.
type Thresholds struct {
	Default  float64 `yaml:"default" json:"default"`
	Nasal    float64 `yaml:"nasal" json:"nasal"`
	Fallback float64 `yaml:"fallback" json:"fallback"`
}

// DefaultThresholds returns the calibrated thresholds: 2.0 for default pairs,
// 2.5 for nasal pairs and 3.0 for the frequency-only fallback.
func DefaultThresholds() Thresholds {
	return Thresholds{Default: 2.0, Nasal: 2.5, Fallback: 3.0}
}

// DefaultNasalPairs lists the curated front/back nasal confusions.
var DefaultNasalPairs = []string{"銀螢", "民明", "品瓶"}

// Decide is the verdict function: accept iff score > threshold. NaN and
// infinite scores never accept.
func Decide(score, threshold float64) Verdict {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Reject
	}
	if score > threshold {
		return Accept
	}
	return Reject
}

// Bases resolves the toneless readings of a character.
type Bases interface {
	Bases(c rune) []string
}

// Option configures a [Policy].
type Option func(*Policy)

// WithThresholds overrides the thresholds.
func WithThresholds(t Thresholds) Option {
	return func(p *Policy) {
		p.th = t
	}
}

// WithNasalPairs adds curated pairs, each given as a two-character string.
// Pairs apply in both directions. Malformed entries are ignored.
func WithNasalPairs(pairs ...string) Option {
	return func(p *Policy) {
		for _, s := range pairs {
			r := []rune(s)
			if len(r) != 2 || r[0] == r[1] {
				continue
			}
			p.pairs[[2]rune{r[0], r[1]}] = struct{}{}
			p.pairs[[2]rune{r[1], r[0]}] = struct{}{}
		}
	}
}

// WithSyllableRule also classifies a pair as nasal when a toneless reading of
// one character is a single edit away from a reading of the other and the
// two end in different nasal codas (yin/ying, min/ming). Curated pairs still
// apply.
func WithSyllableRule(b Bases) Option {
	return func(p *Policy) {
		p.bases = b
	}
}

// Policy classifies pairs and decides verdicts. It is immutable after New and
// safe for concurrent use.
type Policy struct {
	th    Thresholds
	pairs map[[2]rune]struct{}
	bases Bases
}

// New returns a [Policy] with [DefaultThresholds] and [DefaultNasalPairs].
func New(opts ...Option) *Policy {
	p := &Policy{
		th:    DefaultThresholds(),
		pairs: make(map[[2]rune]struct{}),
	}
	WithNasalPairs(DefaultNasalPairs...)(p)
	for _, o := range opts {
		o(p)
	}
	return p
}

// Thresholds returns the configured thresholds.
func (p *Policy) Thresholds() Thresholds { return p.th }

// Classify returns the confusion class of replacing from with to.
func (p *Policy) Classify(from, to rune) Class {
	if from == to {
		return ClassDefault
	}
	if _, ok := p.pairs[[2]rune{from, to}]; ok {
		return ClassNasal
	}
	if p.bases != nil && p.nasalBySyllable(from, to) {
		return ClassNasal
	}
	return ClassDefault
}

// ClassifyWord returns [ClassNasal] if any differing position of two equally
// long words is a nasal pair, [ClassDefault] otherwise.
func (p *Policy) ClassifyWord(original, candidate string) Class {
	a, b := []rune(original), []rune(candidate)
	if len(a) != len(b) {
		return ClassDefault
	}
	for i := range a {
		if a[i] != b[i] && p.Classify(a[i], b[i]) == ClassNasal {
			return ClassNasal
		}
	}
	return ClassDefault
}

// nasalBySyllable reports whether some reading of from and some reading of
// to are one edit apart and end in different nasal codas.
func (p *Policy) nasalBySyllable(from, to rune) bool {
	for _, x := range p.bases.Bases(from) {
		for _, y := range p.bases.Bases(to) {
			cx, cy := nasalCoda(x), nasalCoda(y)
			if cx == "" || cy == "" || cx == cy {
				continue
			}
			if matchr.Levenshtein(x, y) == 1 {
				return true
			}
		}
	}
	return false
}

func nasalCoda(base string) string {
	switch {
	case strings.HasSuffix(base, "ng"):
		return "ng"
	case strings.HasSuffix(base, "n"):
		return "n"
	default:
		return ""
	}
}

// Threshold returns the threshold for the class under the given source.
// Frequency decisions use the fallback threshold regardless of class.
func (p *Policy) Threshold(c Class, src Source) float64 {
	if src == SourceFrequency {
		return p.th.Fallback
	}
	if c == ClassNasal {
		return p.th.Nasal
	}
	return p.th.Default
}

// Decision is the verdict for one candidate along with the inputs that
// produced it.
type Decision struct {
	Class     Class   `json:"class"`
	Source    Source  `json:"source"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Verdict   Verdict `json:"verdict"`
}

// Accepted reports whether the decision accepts the candidate.
func (d Decision) Accepted() bool { return d.Verdict == Accept }

// String renders the decision for log lines.
func (d Decision) String() string {
	return fmt.Sprintf("%s %.3f vs %.1f (%s/%s)", d.Verdict, d.Score, d.Threshold, d.Class, d.Source)
}

// Decide returns the decision for score under class and source.
func (p *Policy) Decide(c Class, src Source, score float64) Decision {
	th := p.Threshold(c, src)
	return Decision{
		Class:     c,
		Source:    src,
		Score:     score,
		Threshold: th,
		Verdict:   Decide(score, th),
	}
}

// Validate checks that the thresholds are finite and that nasal is at least
// as strict as default.
func (t Thresholds) Validate() error {
	var errs []error
	for _, f := range []struct {
		name string
		v    float64
	}{{"default", t.Default}, {"nasal", t.Nasal}, {"fallback", t.Fallback}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			errs = append(errs, fmt.Errorf("policy: %s threshold must be finite", f.name))
		}
	}
	if t.Nasal < t.Default {
		errs = append(errs, fmt.Errorf("policy: nasal threshold %.2f is below default %.2f", t.Nasal, t.Default))
	}
	return errors.Join(errs...)
}
