package mlm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// MapVocab is a [Vocab] backed by a token → index map.
type MapVocab struct {
	ids  map[string]int
	size int
}

var _ Vocab = (*MapVocab)(nil)

// NewMapVocab returns a vocabulary where tokens[i] has index i. Later
// duplicates do not override earlier entries.
func NewMapVocab(tokens []string) *MapVocab {
	v := &MapVocab{ids: make(map[string]int, len(tokens)), size: len(tokens)}
	for i, t := range tokens {
		if _, dup := v.ids[t]; !dup {
			v.ids[t] = i
		}
	}
	return v
}

// ID implements [Vocab].
func (v *MapVocab) ID(token string) (int, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Size implements [Vocab].
func (v *MapVocab) Size() int { return v.size }

// ReadVocab parses a BERT vocab.txt: one token per line, the line number
// being the token index.
func ReadVocab(r io.Reader) (*MapVocab, error) {
	var tokens []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		tokens = append(tokens, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("mlm: read vocab: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("mlm: read vocab: empty vocabulary")
	}
	return NewMapVocab(tokens), nil
}
