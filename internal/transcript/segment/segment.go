// Package segment implements the word segmenter whose token boundaries decide
// which spans of a transcript the detector may flag.
//
// The algorithm is the maximum-probability path over a word DAG, as used by
// jieba:
//
//  1. Every maximal run of CJK characters is segmented independently. Other
//     characters never join a CJK token: letters and digits form one token per
//     run, every remaining rune is its own token.
//
//  2. For each position i of a run, the DAG lists every end j such that
//     run[i..j] is a dictionary word with a positive count. The single
//     character run[i..i] is always an edge, dictionary entry or not.
//
//  3. Walking right to left, route(i) = max over edges of
//     ln(count(word) or 1) − ln(total) + route(j+1).
//
// Tie-breaks: when two edges from i score equally the longer word wins, which
// keeps known compounds whole. Counts of 0 are treated as 1 so an unknown
// single character scores ln(1) − ln(total) rather than −Inf.
//
// A [Segmenter] is immutable after construction and safe for concurrent use.
package segment

import (
	"math"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/zhfix/internal/transcript/phonetic"
)

// Dictionary is the read-only view of the word store needed to build a
// [Segmenter].
type Dictionary interface {
	Range(fn func(word string, freq int64) bool)
	Freq(word string) int64
	Total() int64
}

// Token is one segment of a text.
type Token struct {
	// Text is the token content.
	Text string

	// Offset is the rune offset of the token in the segmented text.
	Offset int

	// Len is the token length in runes.
	Len int

	// CJK reports whether the token consists of CJK characters.
	CJK bool
}

// Segmenter cuts text into word tokens.
type Segmenter struct {
	dict     Dictionary
	prefixes map[string]bool // prefix → whether it is itself a word with count > 0
	logTotal float64
}

// New builds a [Segmenter] over dict. Construction indexes every prefix of
// every word so DAG expansion can stop as soon as no word can continue.
func New(dict Dictionary) *Segmenter {
	s := &Segmenter{
		dict:     dict,
		prefixes: make(map[string]bool),
	}
	dict.Range(func(w string, n int64) bool {
		if n <= 0 {
			return true
		}
		s.prefixes[w] = true
		for i := range w {
			if i == 0 {
				continue
			}
			p := w[:i]
			if _, ok := s.prefixes[p]; !ok {
				s.prefixes[p] = false
			}
		}
		return true
	})
	total := dict.Total()
	if total < 1 {
		total = 1
	}
	s.logTotal = math.Log(float64(total))
	return s
}

// Cut segments text and returns its tokens in order. Concatenating the token
// texts reproduces text exactly.
func (s *Segmenter) Cut(text string) []Token {
	runes := []rune(text)
	var tokens []Token
	for i := 0; i < len(runes); {
		switch r := runes[i]; {
		case phonetic.IsCJK(r):
			j := i
			for j < len(runes) && phonetic.IsCJK(runes[j]) {
				j++
			}
			tokens = s.cutCJK(tokens, runes[i:j], i)
			i = j
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			j := i
			for j < len(runes) && !phonetic.IsCJK(runes[j]) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			tokens = append(tokens, Token{Text: string(runes[i:j]), Offset: i, Len: j - i})
			i = j
		default:
			tokens = append(tokens, Token{Text: string(r), Offset: i, Len: 1})
			i++
		}
	}
	return tokens
}

// cutCJK segments one CJK run starting at rune offset base.
func (s *Segmenter) cutCJK(tokens []Token, run []rune, base int) []Token {
	n := len(run)
	dag := s.dag(run)

	type step struct {
		score float64
		end   int
	}
	route := make([]step, n+1)
	for i := n - 1; i >= 0; i-- {
		best := step{score: math.Inf(-1), end: i}
		for _, j := range dag[i] {
			score := s.logFreq(string(run[i:j+1])) - s.logTotal + route[j+1].score
			if score > best.score || (score == best.score && j > best.end) {
				best = step{score: score, end: j}
			}
		}
		route[i] = best
	}

	for i := 0; i < n; {
		j := route[i].end
		tokens = append(tokens, Token{
			Text:   string(run[i : j+1]),
			Offset: base + i,
			Len:    j + 1 - i,
			CJK:    true,
		})
		i = j + 1
	}
	return tokens
}

// dag returns, for each start position, the inclusive end positions of every
// dictionary word beginning there. The single-character edge is always first.
func (s *Segmenter) dag(run []rune) [][]int {
	dag := make([][]int, len(run))
	for i := range run {
		ends := []int{i}
		var buf []byte
		for j := i; j < len(run); j++ {
			buf = utf8.AppendRune(buf, run[j])
			isWord, ok := s.prefixes[string(buf)]
			if !ok {
				break
			}
			if isWord && j > i {
				ends = append(ends, j)
			}
		}
		dag[i] = ends
	}
	return dag
}

func (s *Segmenter) logFreq(w string) float64 {
	n := s.dict.Freq(w)
	if n < 1 {
		n = 1
	}
	return math.Log(float64(n))
}

// IsToken reports whether text[offset:offset+length] (rune units) is emitted
// as a single token by [Segmenter.Cut].
func IsToken(tokens []Token, offset, length int) bool {
	for _, t := range tokens {
		if t.Offset == offset {
			return t.Len == length
		}
		if t.Offset > offset {
			break
		}
	}
	return false
}
