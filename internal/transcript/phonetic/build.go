package phonetic

import (
	"context"

	"github.com/mozillazg/go-pinyin"
)

// Range is an inclusive code point range scanned by [Build].
type Range struct {
	Lo, Hi rune
}

// DefaultRanges covers CJK Unified Ideographs and Extension A.
var DefaultRanges = []Range{
	{Lo: 0x4E00, Hi: 0x9FFF},
	{Lo: 0x3400, Hi: 0x4DBF},
}

// Transcriber returns the toned readings of a single character, or nil when
// the character has no known pronunciation.
type Transcriber func(c rune) []string

// PinyinTranscriber returns a [Transcriber] backed by go-pinyin in TONE3
// style with heteronyms enabled.
func PinyinTranscriber() Transcriber {
	args := pinyin.NewArgs()
	args.Style = pinyin.Tone3
	args.Heteronym = true
	return func(c rune) []string {
		return pinyin.SinglePinyin(c, args)
	}
}

// BuildOption configures [Build].
type BuildOption func(*buildConfig)

type buildConfig struct {
	transcriber Transcriber
	ranges      []Range
}

// WithTranscriber overrides the reading generator. Default: [PinyinTranscriber].
func WithTranscriber(t Transcriber) BuildOption {
	return func(c *buildConfig) {
		if t != nil {
			c.transcriber = t
		}
	}
}

// WithRanges overrides the scanned code point ranges. Default: [DefaultRanges].
func WithRanges(ranges ...Range) BuildOption {
	return func(c *buildConfig) {
		if len(ranges) > 0 {
			c.ranges = ranges
		}
	}
}

// Build generates an [Index] by transcribing every code point in the
// configured ranges. Characters without readings are skipped. The scan checks
// ctx between ranges and every 4096 code points.
func Build(ctx context.Context, opts ...BuildOption) (*Index, error) {
	cfg := buildConfig{
		ranges: DefaultRanges,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.transcriber == nil {
		cfg.transcriber = PinyinTranscriber()
	}

	readings := make(map[rune][]string, 28000)
	for _, r := range cfg.ranges {
		for c := r.Lo; c <= r.Hi; c++ {
			if c&0xFFF == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if ys := cfg.transcriber(c); len(ys) > 0 {
				readings[c] = ys
			}
		}
	}
	return NewIndex(readings)
}
