package lexicon

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// File names used by the snapshot directory layout.
const (
	WordFreqFile   = "word_freq.tsv"
	BigramFreqFile = "bigram_freq.tsv"
)

// BigramPruneCount is the inclusive count at or below which bigrams are
// dropped as noise.
const BigramPruneCount = 50

// WriteEntries writes entries as word<TAB>freq lines, each terminated by "\n".
func WriteEntries(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		bw.WriteString(e.Word)
		bw.WriteByte('\t')
		bw.WriteString(strconv.FormatInt(e.Freq, 10))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("lexicon: write: %w", err)
	}
	return nil
}

// WriteWordFreq writes f in file order.
func WriteWordFreq(w io.Writer, f *WordFreq) error {
	return WriteEntries(w, f.Entries())
}

// WriteBigramFreq writes f in file order.
func WriteBigramFreq(w io.Writer, f *BigramFreq) error {
	return WriteEntries(w, f.Entries())
}

// ReadEntries parses word<TAB>freq lines. Blank lines are skipped; negative
// counts, malformed lines, and duplicate words are rejected with the offending
// line number.
func ReadEntries(r io.Reader) (map[string]int64, error) {
	m := make(map[string]int64)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		word, count, ok := strings.Cut(text, "\t")
		if !ok || word == "" {
			return nil, fmt.Errorf("lexicon: line %d: want word<TAB>freq, got %q", line, text)
		}
		n, err := strconv.ParseInt(count, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("lexicon: line %d: parse frequency: %w", line, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("lexicon: line %d: negative frequency %d", line, n)
		}
		if _, dup := m[word]; dup {
			return nil, fmt.Errorf("lexicon: line %d: duplicate word %q", line, word)
		}
		m[word] = n
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("lexicon: read: %w", err)
	}
	return m, nil
}

// ReadWordFreq parses a word frequency file.
func ReadWordFreq(r io.Reader) (*WordFreq, error) {
	m, err := ReadEntries(r)
	if err != nil {
		return nil, err
	}
	return NewWordFreq(m), nil
}

// ReadBigramFreq parses a bigram frequency file. Every key must be exactly two
// characters and every count above [BigramPruneCount].
func ReadBigramFreq(r io.Reader) (*BigramFreq, error) {
	m, err := ReadEntries(r)
	if err != nil {
		return nil, err
	}
	out := make(map[Bigram]int64, len(m))
	for w, n := range m {
		if utf8.RuneCountInString(w) != 2 {
			return nil, fmt.Errorf("lexicon: bigram key %q is not two characters", w)
		}
		if n <= BigramPruneCount {
			return nil, fmt.Errorf("lexicon: bigram %q has count %d, want > %d", w, n, BigramPruneCount)
		}
		rs := []rune(w)
		out[Bigram{rs[0], rs[1]}] = n
	}
	return &BigramFreq{m: out}, nil
}
