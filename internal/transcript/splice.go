package transcript

import (
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// nfcText is the NFC form of a transcript together with the normalisation
// segments it was built from. Each segment pairs a byte range of the
// original text with its normalised form, so replacements found in the
// normalised text can be written back while every untouched segment keeps
// its original bytes.
type nfcText struct {
	orig string
	text string
	segs []nfcSegment
}

type nfcSegment struct {
	start, end int // byte range in orig
	first, n   int // rune range in text
}

func normalize(s string) *nfcText {
	t := &nfcText{orig: s}
	var (
		it    norm.Iter
		b     strings.Builder
		start int
		runes int
	)
	it.InitString(norm.NFC, s)
	for !it.Done() {
		seg := it.Next()
		n := utf8.RuneCount(seg)
		b.Write(seg)
		t.segs = append(t.segs, nfcSegment{start: start, end: it.Pos(), first: runes, n: n})
		start = it.Pos()
		runes += n
	}
	t.text = b.String()

	// Invalid byte sequences may decode differently once split across
	// segments. Treat the whole text as one segment then.
	if runes != utf8.RuneCountInString(t.text) {
		t.segs = []nfcSegment{{start: 0, end: len(s), first: 0, n: utf8.RuneCountInString(t.text)}}
	}
	return t
}

// apply writes the selected replacements into the original text. Offsets
// are rune offsets into the normalised text and replacements keep their
// length. Without replacements the original string is returned as is.
func (t *nfcText) apply(sel []CandidateDecision) string {
	if len(sel) == 0 {
		return t.orig
	}
	runes := []rune(t.text)
	touched := make([]bool, len(runes))
	for _, d := range sel {
		n := copy(runes[d.Offset:], []rune(d.Candidate))
		for i := range n {
			touched[d.Offset+i] = true
		}
	}

	var b strings.Builder
	b.Grow(len(t.orig))
	for _, s := range t.segs {
		if slices.Contains(touched[s.first:s.first+s.n], true) {
			b.WriteString(string(runes[s.first : s.first+s.n]))
			continue
		}
		b.WriteString(t.orig[s.start:s.end])
	}
	return b.String()
}
