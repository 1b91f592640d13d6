// Package candidate proposes phonetically confusable replacements for a
// suspicious span.
//
// Every candidate differs from its span in exactly one character: the
// observed confusion model is single-character substitution. Replacement
// characters come from the toneless groups of every reading of the original
// character, so heteronyms contribute all their readings. Characters without a
// phonetic entry are skipped.
package candidate

import (
	"errors"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/zhfix/internal/transcript/detect"
)

// ErrLengthMismatch is returned by [Diff] when the two words differ in length.
var ErrLengthMismatch = errors.New("candidate: words differ in length")

// Index is the phonetic lookup a [Generator] needs.
type Index interface {
	Bases(c rune) []string
	Group(base string) []rune
	HasBase(base string) bool
}

// Candidate is one replacement proposal for a span.
type Candidate struct {
	// Offset is the rune offset of the span in the transcript.
	Offset int `json:"offset"`

	// Original is the span text.
	Original string `json:"original"`

	// Word is the span with one character substituted.
	Word string `json:"word"`

	// Position is the index of the substituted character inside the span.
	Position int `json:"position"`

	// From and To are the original and replacement characters.
	From rune `json:"-"`
	To   rune `json:"-"`
}

// TextPosition returns the rune offset of the substituted character in the
// transcript.
func (c Candidate) TextPosition() int { return c.Offset + c.Position }

// Option configures a [Generator].
type Option func(*Generator)

// WithNasalVariants also draws candidates from the group that differs only in
// a trailing "g" (yin ↔ ying, min ↔ ming). Off by default.
func WithNasalVariants(on bool) Option {
	return func(g *Generator) {
		g.nasal = on
	}
}

// Generator produces candidates from a phonetic index. It holds no mutable
// state and is safe for concurrent use.
type Generator struct {
	ix    Index
	nasal bool
}

// New returns a [Generator] over ix.
func New(ix Index, opts ...Option) *Generator {
	g := &Generator{ix: ix}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate returns the candidates for span ordered by position, then by
// replacement character.
func (g *Generator) Generate(span detect.Span) []Candidate {
	runes := []rune(span.Text)
	var out []Candidate
	for pos, orig := range runes {
		for _, to := range g.Alternatives(orig) {
			word := slices.Clone(runes)
			word[pos] = to
			out = append(out, Candidate{
				Offset:   span.Offset,
				Original: span.Text,
				Word:     string(word),
				Position: pos,
				From:     orig,
				To:       to,
			})
		}
	}
	return out
}

// Alternatives returns the sorted set of characters sharing a toneless
// reading with c, excluding c itself. It is empty when c has no entry.
func (g *Generator) Alternatives(c rune) []rune {
	bases := g.ix.Bases(c)
	if len(bases) == 0 {
		return nil
	}
	seen := map[rune]struct{}{c: {}}
	var out []rune
	add := func(base string) {
		for _, r := range g.ix.Group(base) {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	for _, b := range bases {
		add(b)
		if !g.nasal {
			continue
		}
		if v, ok := nasalVariant(b); ok && g.ix.HasBase(v) {
			add(v)
		}
	}
	slices.Sort(out)
	return out
}

// nasalVariant toggles the trailing "g" of a front/back nasal final.
func nasalVariant(base string) (string, bool) {
	switch {
	case strings.HasSuffix(base, "ng"):
		return strings.TrimSuffix(base, "g"), true
	case strings.HasSuffix(base, "n"):
		return base + "g", true
	}
	return "", false
}

// Diff returns the character positions at which original and candidate
// differ. Both words must have the same length in characters.
func Diff(original, candidate string) ([]int, error) {
	if utf8.RuneCountInString(original) != utf8.RuneCountInString(candidate) {
		return nil, ErrLengthMismatch
	}
	a, b := []rune(original), []rune(candidate)
	var pos []int
	for i := range a {
		if a[i] != b[i] {
			pos = append(pos, i)
		}
	}
	return pos, nil
}
