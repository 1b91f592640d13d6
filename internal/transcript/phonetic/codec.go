package phonetic

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"unicode/utf8"
)

// File names used by the snapshot directory layout.
const (
	ReadingsFile = "char_pinyin.json"
	GroupsFile   = "pinyin_chars.json"
)

// WriteReadings serialises the character → readings half of ix as compact
// UTF-8 JSON. Keys are emitted in ascending code point order, readings in
// index order, with no trailing newline.
func WriteReadings(w io.Writer, ix *Index) error {
	m := make(map[string][]string, len(ix.readings))
	for c, syllables := range ix.readings {
		m[string(c)] = syllables
	}
	return writeCompact(w, m)
}

// WriteGroups serialises the toneless base → characters half of ix as compact
// UTF-8 JSON with sorted keys and sorted member lists.
func WriteGroups(w io.Writer, ix *Index) error {
	m := make(map[string][]string, len(ix.groups))
	for base, members := range ix.groups {
		chars := make([]string, len(members))
		for i, c := range members {
			chars[i] = string(c)
		}
		m[base] = chars
	}
	return writeCompact(w, m)
}

// writeCompact relies on encoding/json sorting map keys by their UTF-8 bytes,
// which matches code point order.
func writeCompact(w io.Writer, v map[string][]string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("phonetic: encode: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("phonetic: write: %w", err)
	}
	return nil
}

// ReadIndex decodes a readings file and builds an [Index] from it. When groups
// is non-nil it is decoded too and must match the groups derived from the
// readings exactly.
func ReadIndex(readings, groups io.Reader) (*Index, error) {
	var raw map[string][]string
	if err := json.NewDecoder(readings).Decode(&raw); err != nil {
		return nil, fmt.Errorf("phonetic: decode %s: %w", ReadingsFile, err)
	}
	m := make(map[rune][]string, len(raw))
	for k, v := range raw {
		c, size := utf8.DecodeRuneInString(k)
		if size != len(k) || c == utf8.RuneError {
			return nil, fmt.Errorf("phonetic: %s key %q is not a single character", ReadingsFile, k)
		}
		m[c] = v
	}
	ix, err := NewIndex(m)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		return ix, nil
	}

	var rawGroups map[string][]string
	if err := json.NewDecoder(groups).Decode(&rawGroups); err != nil {
		return nil, fmt.Errorf("phonetic: decode %s: %w", GroupsFile, err)
	}
	if len(rawGroups) != len(ix.groups) {
		return nil, fmt.Errorf("phonetic: %s has %d groups, readings imply %d", GroupsFile, len(rawGroups), len(ix.groups))
	}
	for base, members := range rawGroups {
		want := ix.groups[base]
		got := make([]rune, 0, len(members))
		for _, s := range members {
			c, size := utf8.DecodeRuneInString(s)
			if size != len(s) {
				return nil, fmt.Errorf("phonetic: %s group %q member %q is not a single character", GroupsFile, base, s)
			}
			got = append(got, c)
		}
		if !slices.Equal(got, want) {
			return nil, fmt.Errorf("phonetic: %s group %q disagrees with %s", GroupsFile, base, ReadingsFile)
		}
	}
	return ix, nil
}
