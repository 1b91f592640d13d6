package lexicon

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/longbridgeapp/opencc"
)

// Converter rewrites a word into the target script variant.
type Converter interface {
	Convert(in string) (string, error)
}

// DefaultConversion is the OpenCC profile used for corpus conversion:
// Simplified to Traditional with Taiwan phrasing.
const DefaultConversion = "s2twp"

// NewOpenCC returns a [Converter] for the named OpenCC profile
// (e.g. "s2twp", "s2t").
func NewOpenCC(profile string) (Converter, error) {
	cc, err := opencc.New(profile)
	if err != nil {
		return nil, fmt.Errorf("lexicon: load opencc profile %q: %w", profile, err)
	}
	return cc, nil
}

// ParseCorpus reads a jieba-format dictionary ("word freq [pos]" per line),
// converts each word with conv, and sums the counts of words that collide
// after conversion. conv may be nil to keep words unchanged. Lines with fewer
// than two fields or a non-integer count are skipped.
func ParseCorpus(ctx context.Context, r io.Reader, conv Converter) (map[string]int64, error) {
	counts := make(map[string]int64, 600000)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if line&0x3FFF == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || n < 0 {
			continue
		}
		word := fields[0]
		if conv != nil {
			converted, err := conv.Convert(word)
			if err != nil {
				return nil, fmt.Errorf("lexicon: convert %q on line %d: %w", word, line, err)
			}
			word = converted
		}
		counts[word] += n
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read corpus: %v", ErrCorpusUnavailable, err)
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("%w: corpus contained no entries", ErrCorpusUnavailable)
	}
	return counts, nil
}

// BuildWordFreq merges corpus counts with boost entries and applies the
// single-character floor. A boost never lowers an existing count; every
// character in chars ends up with a count of at least 1.
func BuildWordFreq(corpus, boosts map[string]int64, chars []rune) *WordFreq {
	m := make(map[string]int64, len(corpus)+len(boosts)+len(chars))
	for w, n := range corpus {
		m[w] = n
	}
	for w, n := range boosts {
		m[w] = max(m[w], n)
	}
	for _, c := range chars {
		s := string(c)
		if m[s] < 1 {
			m[s] = 1
		}
	}
	return NewWordFreq(m)
}

// BuildBigrams slides a two-character window over every word of at least two
// characters in words and adds the word's count to each pair it contains.
// Two-character boost entries then raise their pair via max, and pairs with a
// count at or below [BigramPruneCount] are dropped.
func BuildBigrams(words *WordFreq, boosts map[string]int64) *BigramFreq {
	m := make(map[Bigram]int64)
	words.Range(func(w string, n int64) bool {
		if n == 0 || utf8.RuneCountInString(w) < 2 {
			return true
		}
		rs := []rune(w)
		for i := 0; i+1 < len(rs); i++ {
			m[Bigram{rs[i], rs[i+1]}] += n
		}
		return true
	})
	for w, n := range boosts {
		rs := []rune(w)
		if len(rs) != 2 {
			continue
		}
		k := Bigram{rs[0], rs[1]}
		m[k] = max(m[k], n)
	}
	for k, n := range m {
		if n <= BigramPruneCount {
			delete(m, k)
		}
	}
	return &BigramFreq{m: m}
}
