package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/zhfix/internal/transcript/lexicon"
	"github.com/MrWong99/zhfix/internal/transcript/phonetic"
)

// CorpusSource yields the path of a local jieba-format corpus file.
// [lexicon.Fetcher] is the production implementation.
type CorpusSource interface {
	Fetch(ctx context.Context) (string, error)
}

// CorpusFile is a [CorpusSource] for a corpus already on disk.
type CorpusFile string

// Fetch returns the file path after checking that it exists.
func (f CorpusFile) Fetch(context.Context) (string, error) {
	if _, err := os.Stat(string(f)); err != nil {
		return "", fmt.Errorf("%w: %v", lexicon.ErrCorpusUnavailable, err)
	}
	return string(f), nil
}

// BuilderOption configures a [Builder].
type BuilderOption func(*Builder)

// WithCorpus sets the corpus source. Required.
func WithCorpus(src CorpusSource) BuilderOption {
	return func(b *Builder) {
		b.corpus = src
	}
}

// WithConverter sets the script converter applied to corpus words. Default:
// none (words kept as-is).
func WithConverter(c lexicon.Converter) BuilderOption {
	return func(b *Builder) {
		b.conv = c
	}
}

// WithBoosts replaces the boost table. Default: [lexicon.TaiwanBoosts].
func WithBoosts(m map[string]int64) BuilderOption {
	return func(b *Builder) {
		if m != nil {
			b.boosts = m
		}
	}
}

// WithPhoneticOptions passes options through to [phonetic.Build].
func WithPhoneticOptions(opts ...phonetic.BuildOption) BuilderOption {
	return func(b *Builder) {
		b.phoneticOpts = append(b.phoneticOpts, opts...)
	}
}

// Builder constructs snapshots offline.
type Builder struct {
	corpus       CorpusSource
	conv         lexicon.Converter
	boosts       map[string]int64
	phoneticOpts []phonetic.BuildOption
}

// NewBuilder returns a [Builder].
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{boosts: lexicon.TaiwanBoosts}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build generates the phonetic index and both frequency stores and returns
// the resulting snapshot. Any failure, including an unavailable corpus, wraps
// [ErrConstruction]; the build writes nothing itself, so a failed build
// leaves any previous snapshot untouched.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	if b.corpus == nil {
		return nil, fmt.Errorf("%w: no corpus source configured", ErrConstruction)
	}

	path, err := b.corpus.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrConstruction, lexicon.ErrCorpusUnavailable, err)
	}
	defer f.Close()

	corpus, err := lexicon.ParseCorpus(ctx, f, b.conv)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	slog.Info("corpus parsed", "path", path, "words", len(corpus))

	ix, err := phonetic.Build(ctx, b.phoneticOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: phonetic index: %w", ErrConstruction, err)
	}
	slog.Info("phonetic index built", "chars", ix.Len(), "groups", ix.GroupCount())

	words := lexicon.BuildWordFreq(corpus, b.boosts, ix.Chars())
	bigrams := lexicon.BuildBigrams(words, b.boosts)

	s, err := New(ix, words, bigrams)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	slog.Info("snapshot built",
		"version", s.Version(),
		"words", words.Len(),
		"bigrams", bigrams.Len(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return s, nil
}
