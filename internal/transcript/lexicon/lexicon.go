// Package lexicon holds the word and bigram frequency stores that back span
// detection, segmentation, and the frequency-ratio score.
//
// Both stores are immutable once constructed. A lookup miss is not an error:
// [WordFreq.Freq] and [BigramFreq.Freq] return 0 for unknown keys, which the
// detector treats as "absent, therefore suspicious".
package lexicon

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// WordFreq maps a word of one or more characters to its corpus count.
type WordFreq struct {
	m     map[string]int64
	total int64
	max   int
}

// NewWordFreq copies m into a new store. Negative counts are clamped to 0.
func NewWordFreq(m map[string]int64) *WordFreq {
	f := &WordFreq{m: make(map[string]int64, len(m))}
	for w, n := range m {
		if w == "" {
			continue
		}
		if n < 0 {
			n = 0
		}
		f.m[w] = n
		f.total += n
		if l := utf8.RuneCountInString(w); l > f.max {
			f.max = l
		}
	}
	return f
}

// Freq returns the count of w, or 0 when w is absent.
func (f *WordFreq) Freq(w string) int64 {
	return f.m[w]
}

// Lookup returns the count of w and whether w has an entry at all.
func (f *WordFreq) Lookup(w string) (int64, bool) {
	n, ok := f.m[w]
	return n, ok
}

// Len returns the number of entries.
func (f *WordFreq) Len() int { return len(f.m) }

// Total returns the sum of all counts.
func (f *WordFreq) Total() int64 { return f.total }

// MaxWordLen returns the length in characters of the longest entry.
func (f *WordFreq) MaxWordLen() int { return f.max }

// Range calls fn for every entry in unspecified order until fn returns false.
func (f *WordFreq) Range(fn func(word string, freq int64) bool) {
	for w, n := range f.m {
		if !fn(w, n) {
			return
		}
	}
}

// Entries returns all entries in file order: frequency descending, ties broken
// by ascending word.
func (f *WordFreq) Entries() []Entry {
	return sortedEntries(f.m)
}

// Bigram is an ordered pair of adjacent characters.
type Bigram [2]rune

// String renders the pair as a two-character string.
func (b Bigram) String() string { return string(b[:]) }

// BigramFreq maps adjacent character pairs to summed word counts.
type BigramFreq struct {
	m map[Bigram]int64
}

// NewBigramFreq copies m into a new store.
func NewBigramFreq(m map[Bigram]int64) *BigramFreq {
	f := &BigramFreq{m: make(map[Bigram]int64, len(m))}
	for k, v := range m {
		f.m[k] = v
	}
	return f
}

// Freq returns the count of the pair a,b, or 0 when absent.
func (f *BigramFreq) Freq(a, b rune) int64 {
	return f.m[Bigram{a, b}]
}

// Len returns the number of entries.
func (f *BigramFreq) Len() int { return len(f.m) }

// Entries returns all entries in file order.
func (f *BigramFreq) Entries() []Entry {
	m := make(map[string]int64, len(f.m))
	for k, v := range f.m {
		m[k.String()] = v
	}
	return sortedEntries(m)
}

// Entry is one line of a frequency file.
type Entry struct {
	Word string
	Freq int64
}

func sortedEntries(m map[string]int64) []Entry {
	out := make([]Entry, 0, len(m))
	for w, n := range m {
		out = append(out, Entry{Word: w, Freq: n})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if a.Freq != b.Freq {
			if a.Freq > b.Freq {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Word, b.Word)
	})
	return out
}
