// Package detect flags the spans of a transcript that are likely ASR errors.
//
// A span is suspicious when it is 2..4 characters long, its word frequency is
// at or below the low-frequency threshold (absent counts as 0), and the
// segmenter did not emit it as a single token. Every multi-character token the
// segmenter emits is a dictionary word with a positive count and is trusted,
// so suspicious spans can only come from runs of consecutive single-character
// CJK tokens.
package detect

import (
	"unicode/utf8"

	"github.com/MrWong99/zhfix/internal/transcript/segment"
)

const (
	// DefaultLowFrequency is the count at or below which a span is suspicious.
	DefaultLowFrequency int64 = 5

	// DefaultMinSpan and DefaultMaxSpan bound the span length in characters.
	DefaultMinSpan = 2
	DefaultMaxSpan = 4
)

// Lexicon is the frequency lookup the detector needs. A miss returns 0.
type Lexicon interface {
	Freq(word string) int64
}

// Span is a suspicious substring of a transcript.
type Span struct {
	// Text is the span content.
	Text string `json:"text"`

	// Offset is the rune offset of the span in the transcript.
	Offset int `json:"offset"`

	// Freq is the span's word frequency, 0 when absent.
	Freq int64 `json:"freq"`
}

// Len returns the span length in characters.
func (s Span) Len() int { return utf8.RuneCountInString(s.Text) }

// End returns the rune offset just past the span.
func (s Span) End() int { return s.Offset + s.Len() }

// Overlaps reports whether s and o share at least one character.
func (s Span) Overlaps(o Span) bool {
	return s.Offset < o.End() && o.Offset < s.End()
}

// Option configures a [Detector].
type Option func(*Detector)

// WithLowFrequency sets the frequency at or below which a span is suspicious.
func WithLowFrequency(n int64) Option {
	return func(d *Detector) {
		if n >= 0 {
			d.threshold = n
		}
	}
}

// WithSpanLength bounds the length of flagged spans. Values outside 2..4 or
// with min > max are ignored.
func WithSpanLength(minLen, maxLen int) Option {
	return func(d *Detector) {
		if minLen >= DefaultMinSpan && maxLen <= DefaultMaxSpan && minLen <= maxLen {
			d.minLen, d.maxLen = minLen, maxLen
		}
	}
}

// Detector finds suspicious spans. It is immutable and safe for concurrent use.
type Detector struct {
	words     Lexicon
	seg       *segment.Segmenter
	threshold int64
	minLen    int
	maxLen    int
}

// New returns a [Detector] over words, using seg for the boundary check.
func New(words Lexicon, seg *segment.Segmenter, opts ...Option) *Detector {
	d := &Detector{
		words:     words,
		seg:       seg,
		threshold: DefaultLowFrequency,
		minLen:    DefaultMinSpan,
		maxLen:    DefaultMaxSpan,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect returns the suspicious spans of text ordered by offset, then length.
// The result may be empty.
func (d *Detector) Detect(text string) []Span {
	return d.DetectTokens(d.seg.Cut(text))
}

// DetectTokens is [Detector.Detect] over an already segmented text.
func (d *Detector) DetectTokens(tokens []segment.Token) []Span {
	var spans []Span
	for i := 0; i < len(tokens); {
		if !singleCJK(tokens[i]) {
			i++
			continue
		}
		j := i
		for j < len(tokens) && singleCJK(tokens[j]) {
			j++
		}
		spans = d.scanRun(spans, tokens[i:j])
		i = j
	}
	return spans
}

// scanRun flags windows inside a run of single-character CJK tokens.
func (d *Detector) scanRun(spans []Span, run []segment.Token) []Span {
	for start := range run {
		for n := d.minLen; n <= d.maxLen && start+n <= len(run); n++ {
			var text string
			for _, t := range run[start : start+n] {
				text += t.Text
			}
			f := d.words.Freq(text)
			if f > d.threshold {
				continue
			}
			spans = append(spans, Span{Text: text, Offset: run[start].Offset, Freq: f})
		}
	}
	return spans
}

func singleCJK(t segment.Token) bool {
	return t.CJK && t.Len == 1
}
