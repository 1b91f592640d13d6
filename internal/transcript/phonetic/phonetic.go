// Package phonetic implements the character ↔ syllable index used to find
// homophone confusions in Chinese transcripts.
//
// The index has two halves:
//
//  1. Readings: every known character maps to an ordered, deduplicated list
//     of toned pinyin syllables in TONE3 form ("bian4", "de5" or "de").
//     Heteronyms keep every reading; order follows the generator.
//
//  2. Groups: the inverse mapping from a toneless base ("bian") to the sorted
//     set of characters owning at least one reading with that base.
//
// For every character c and every reading s of c, c is a member of
// Group(Toneless(s)). [NewIndex] derives the groups from the readings so the
// property holds by construction; [Index.Verify] re-checks it for indexes
// assembled from files.
//
// An [Index] is immutable after construction and safe for concurrent use.
package phonetic

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrMissingEntry is returned when a character has no known reading. Callers
// exclude such characters from correction rather than failing.
var ErrMissingEntry = errors.New("phonetic: no reading for character")

// Toneless strips the trailing tone digits from a TONE3 syllable:
// "bian4" → "bian", "ma" → "ma".
func Toneless(syllable string) string {
	return strings.TrimRight(syllable, "0123456789")
}

// IsCJK reports whether r lies in CJK Unified Ideographs (U+4E00–U+9FFF) or
// Extension A (U+3400–U+4DBF).
func IsCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || (r >= 0x3400 && r <= 0x4DBF)
}

// Index is the immutable phonetic index.
type Index struct {
	readings map[rune][]string
	groups   map[string][]rune
}

// NewIndex builds an [Index] from a character → readings map. Empty syllables
// and duplicate readings are dropped while preserving first-seen order;
// characters left without readings are omitted. The input map is not retained.
func NewIndex(readings map[rune][]string) (*Index, error) {
	ix := &Index{
		readings: make(map[rune][]string, len(readings)),
		groups:   make(map[string][]rune),
	}
	for c, syllables := range readings {
		if !IsCJK(c) {
			return nil, fmt.Errorf("phonetic: character %q (U+%04X) is outside the CJK ranges", c, c)
		}
		clean := dedupe(syllables)
		if len(clean) == 0 {
			continue
		}
		ix.readings[c] = clean

		var seen []string
		for _, s := range clean {
			base := Toneless(s)
			if base == "" {
				return nil, fmt.Errorf("phonetic: character %q has tone-only reading %q", c, s)
			}
			if slices.Contains(seen, base) {
				continue
			}
			seen = append(seen, base)
			ix.groups[base] = append(ix.groups[base], c)
		}
	}
	for base := range ix.groups {
		slices.Sort(ix.groups[base])
	}
	return ix, nil
}

func dedupe(syllables []string) []string {
	out := make([]string, 0, len(syllables))
	for _, s := range syllables {
		s = strings.TrimSpace(s)
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Readings returns the toned readings of c. The returned slice must not be
// modified. Returns [ErrMissingEntry] when c has no entry.
func (ix *Index) Readings(c rune) ([]string, error) {
	r, ok := ix.readings[c]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingEntry, c)
	}
	return r, nil
}

// Has reports whether c has at least one reading.
func (ix *Index) Has(c rune) bool {
	_, ok := ix.readings[c]
	return ok
}

// Bases returns the distinct toneless bases of c in reading order. Returns nil
// when c has no entry.
func (ix *Index) Bases(c rune) []string {
	var bases []string
	for _, s := range ix.readings[c] {
		if b := Toneless(s); !slices.Contains(bases, b) {
			bases = append(bases, b)
		}
	}
	return bases
}

// Group returns the sorted characters sharing the toneless base. The returned
// slice must not be modified.
func (ix *Index) Group(base string) []rune {
	return ix.groups[base]
}

// HasBase reports whether any character reads as base.
func (ix *Index) HasBase(base string) bool {
	_, ok := ix.groups[base]
	return ok
}

// SharedBases returns the toneless bases that a and b have in common, in the
// reading order of a.
func (ix *Index) SharedBases(a, b rune) []string {
	bb := ix.Bases(b)
	var shared []string
	for _, base := range ix.Bases(a) {
		if slices.Contains(bb, base) {
			shared = append(shared, base)
		}
	}
	return shared
}

// Len returns the number of characters with at least one reading.
func (ix *Index) Len() int { return len(ix.readings) }

// GroupCount returns the number of distinct toneless bases.
func (ix *Index) GroupCount() int { return len(ix.groups) }

// Chars returns every indexed character in ascending code point order.
func (ix *Index) Chars() []rune {
	out := make([]rune, 0, len(ix.readings))
	for c := range ix.readings {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// BaseList returns every toneless base in ascending order.
func (ix *Index) BaseList() []string {
	out := make([]string, 0, len(ix.groups))
	for b := range ix.groups {
		out = append(out, b)
	}
	slices.Sort(out)
	return out
}

// Verify checks that every reading of every character is reflected in the
// groups and that every group member owns a matching reading. It returns a
// joined error describing each violation.
func (ix *Index) Verify() error {
	var errs []error
	for c, syllables := range ix.readings {
		for _, s := range syllables {
			if _, found := slices.BinarySearch(ix.groups[Toneless(s)], c); !found {
				errs = append(errs, fmt.Errorf("phonetic: %q reads %q but is missing from group %q", c, s, Toneless(s)))
			}
		}
	}
	for base, members := range ix.groups {
		for _, c := range members {
			if !slices.Contains(ix.Bases(c), base) {
				errs = append(errs, fmt.Errorf("phonetic: group %q lists %q which has no such reading", base, c))
			}
		}
	}
	return errors.Join(errs...)
}
