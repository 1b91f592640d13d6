// Package knowledge bundles the phonetic index and the frequency stores into
// immutable, versioned snapshots.
//
// A [Snapshot] is never mutated after construction. Rebuilding produces a new
// snapshot which a [Holder] swaps in atomically; correction passes load the
// current snapshot once and use it for the whole pass, so a swap never mixes
// data from two versions inside one pass.
//
// On disk a snapshot is a directory holding the four data files plus
// manifest.json, which records the SHA-256 of every file and a version derived
// from those hashes alone. Identical inputs therefore yield identical
// versions.
package knowledge

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/zhfix/internal/transcript/lexicon"
	"github.com/MrWong99/zhfix/internal/transcript/phonetic"
	"github.com/MrWong99/zhfix/internal/transcript/segment"
)

var (
	// ErrConstruction marks a failed snapshot build. Nothing is written when
	// a build fails with this error.
	ErrConstruction = errors.New("knowledge: snapshot construction failed")

	// ErrInvalid marks a snapshot that violates an invariant or does not
	// match its manifest.
	ErrInvalid = errors.New("knowledge: invalid snapshot")
)

// Snapshot is one immutable version of the correction knowledge base.
type Snapshot struct {
	version string
	files   map[string]string // file name → sha256 hex

	// Index maps characters to readings and back.
	Index *phonetic.Index

	// Words holds word frequencies.
	Words *lexicon.WordFreq

	// Bigrams holds adjacent-character frequencies.
	Bigrams *lexicon.BigramFreq

	// Segmenter is built from Words once per snapshot.
	Segmenter *segment.Segmenter
}

// New validates the parts and returns a snapshot whose version is derived
// from their serialized form.
func New(ix *phonetic.Index, words *lexicon.WordFreq, bigrams *lexicon.BigramFreq) (*Snapshot, error) {
	files, err := encode(ix, words, bigrams)
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]string, len(files))
	for name, data := range files {
		hashes[name] = hashBytes(data)
	}
	return assemble(ix, words, bigrams, hashes)
}

func assemble(ix *phonetic.Index, words *lexicon.WordFreq, bigrams *lexicon.BigramFreq, hashes map[string]string) (*Snapshot, error) {
	if err := CheckFloor(ix, words); err != nil {
		return nil, err
	}
	return &Snapshot{
		version:   versionOf(hashes),
		files:     hashes,
		Index:     ix,
		Words:     words,
		Bigrams:   bigrams,
		Segmenter: segment.New(words),
	}, nil
}

// Version returns the content-derived version string.
func (s *Snapshot) Version() string { return s.version }

// Manifest returns the manifest describing s.
func (s *Snapshot) Manifest() Manifest {
	files := make(map[string]string, len(s.files))
	for k, v := range s.files {
		files[k] = v
	}
	return Manifest{
		Version: s.version,
		Files:   files,
		Chars:   s.Index.Len(),
		Groups:  s.Index.GroupCount(),
		Words:   s.Words.Len(),
		Bigrams: s.Bigrams.Len(),
	}
}

// CheckFloor verifies that every indexed character has a word frequency of
// at least 1.
func CheckFloor(ix *phonetic.Index, words *lexicon.WordFreq) error {
	var missing []string
	for _, c := range ix.Chars() {
		if words.Freq(string(c)) < 1 {
			missing = append(missing, string(c))
			if len(missing) == 10 {
				break
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: characters without frequency floor: %s", ErrInvalid, strings.Join(missing, ""))
	}
	return nil
}

// encode serializes every data file.
func encode(ix *phonetic.Index, words *lexicon.WordFreq, bigrams *lexicon.BigramFreq) (map[string][]byte, error) {
	writers := []struct {
		name  string
		write func(*bytes.Buffer) error
	}{
		{phonetic.ReadingsFile, func(b *bytes.Buffer) error { return phonetic.WriteReadings(b, ix) }},
		{phonetic.GroupsFile, func(b *bytes.Buffer) error { return phonetic.WriteGroups(b, ix) }},
		{lexicon.WordFreqFile, func(b *bytes.Buffer) error { return lexicon.WriteWordFreq(b, words) }},
		{lexicon.BigramFreqFile, func(b *bytes.Buffer) error { return lexicon.WriteBigramFreq(b, bigrams) }},
	}
	out := make(map[string][]byte, len(writers))
	for _, w := range writers {
		var buf bytes.Buffer
		if err := w.write(&buf); err != nil {
			return nil, fmt.Errorf("knowledge: encode %s: %w", w.name, err)
		}
		out[w.name] = buf.Bytes()
	}
	return out, nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// versionOf hashes the sorted name/hash pairs and keeps the first 16 hex
// digits.
func versionOf(hashes map[string]string) string {
	names := make([]string, 0, len(hashes))
	for n := range hashes {
		names = append(names, n)
	}
	slices.Sort(names)
	h := sha256.New()
	for _, n := range names {
		fmt.Fprintf(h, "%s:%s\n", n, hashes[n])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
