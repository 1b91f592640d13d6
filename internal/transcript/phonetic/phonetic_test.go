package phonetic_test

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/zhfix/internal/transcript/phonetic"
)

// fixture is a small hand-written reading table covering the confusions used
// throughout the tests.
func fixture() map[rune][]string {
	return map[rune][]string{
		'銀': {"yin2"},
		'螢': {"ying2"},
		'營': {"ying2"},
		'音': {"yin1"},
		'幕': {"mu4"},
		'底': {"di3", "de5"},
		'低': {"di1"},
		'的': {"de5", "di2", "di4", "de"},
		'城': {"cheng2"},
		'程': {"cheng2"},
		'行': {"xing2", "hang2", "hang4", "xing2"},
	}
}

func mustIndex(t *testing.T) *phonetic.Index {
	t.Helper()
	ix, err := phonetic.NewIndex(fixture())
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	return ix
}

func TestToneless(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"bian4", "bian"},
		{"de5", "de"},
		{"de", "de"},
		{"lü4", "lü"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := phonetic.Toneless(tt.in); got != tt.want {
			t.Errorf("Toneless(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsCJK(t *testing.T) {
	t.Parallel()

	for _, r := range []rune{'一', '龥', '㐀', '䶿', '銀'} {
		if !phonetic.IsCJK(r) {
			t.Errorf("IsCJK(%q) = false, want true", r)
		}
	}
	for _, r := range []rune{'a', '。', 'ㄅ', 0x20000} {
		if phonetic.IsCJK(r) {
			t.Errorf("IsCJK(%q) = true, want false", r)
		}
	}
}

func TestNewIndex_ConsistencyProperty(t *testing.T) {
	t.Parallel()

	ix := mustIndex(t)
	for _, c := range ix.Chars() {
		readings, err := ix.Readings(c)
		if err != nil {
			t.Fatalf("Readings(%q): %v", c, err)
		}
		for _, s := range readings {
			if !slices.Contains(ix.Group(phonetic.Toneless(s)), c) {
				t.Errorf("%q reads %q but is not in group %q", c, s, phonetic.Toneless(s))
			}
		}
	}
	if err := ix.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestNewIndex_DeduplicatesPreservingOrder(t *testing.T) {
	t.Parallel()

	ix := mustIndex(t)
	got, err := ix.Readings('行')
	if err != nil {
		t.Fatalf("Readings: %v", err)
	}
	want := []string{"xing2", "hang2", "hang4"}
	if !slices.Equal(got, want) {
		t.Errorf("Readings('行') = %v, want %v", got, want)
	}
	if bases := ix.Bases('行'); !slices.Equal(bases, []string{"xing", "hang"}) {
		t.Errorf("Bases('行') = %v, want [xing hang]", bases)
	}
}

func TestNewIndex_GroupsSorted(t *testing.T) {
	t.Parallel()

	ix := mustIndex(t)
	for _, base := range ix.BaseList() {
		g := ix.Group(base)
		if !slices.IsSorted(g) {
			t.Errorf("group %q not sorted: %q", base, string(g))
		}
	}
	if got := string(ix.Group("ying")); got != "營螢" {
		t.Errorf("Group(ying) = %q, want %q", got, "營螢")
	}
	if got := string(ix.Group("de")); got != "底的" {
		t.Errorf("Group(de) = %q, want %q", got, "底的")
	}
}

func TestNewIndex_RejectsNonCJK(t *testing.T) {
	t.Parallel()

	_, err := phonetic.NewIndex(map[rune][]string{'a': {"a1"}})
	if err == nil {
		t.Fatal("NewIndex with non-CJK key: want error, got nil")
	}
}

func TestNewIndex_DropsEmptyReadings(t *testing.T) {
	t.Parallel()

	ix, err := phonetic.NewIndex(map[rune][]string{'銀': {"yin2"}, '螢': {"", " "}})
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	if ix.Has('螢') {
		t.Error("character with only empty readings should be omitted")
	}
	if ix.Len() != 1 {
		t.Errorf("Len = %d, want 1", ix.Len())
	}
}

func TestReadings_MissingEntry(t *testing.T) {
	t.Parallel()

	ix := mustIndex(t)
	_, err := ix.Readings('貓')
	if !errors.Is(err, phonetic.ErrMissingEntry) {
		t.Errorf("Readings(unknown) err = %v, want ErrMissingEntry", err)
	}
	if ix.Bases('貓') != nil {
		t.Error("Bases(unknown) should be nil")
	}
}

func TestSharedBases(t *testing.T) {
	t.Parallel()

	ix := mustIndex(t)
	if got := ix.SharedBases('城', '程'); !slices.Equal(got, []string{"cheng"}) {
		t.Errorf("SharedBases(城,程) = %v, want [cheng]", got)
	}
	if got := ix.SharedBases('銀', '螢'); len(got) != 0 {
		t.Errorf("SharedBases(銀,螢) = %v, want none", got)
	}
	if got := ix.SharedBases('底', '低'); !slices.Equal(got, []string{"di"}) {
		t.Errorf("SharedBases(底,低) = %v, want [di]", got)
	}
}

func TestCodec_RoundTripByteIdentical(t *testing.T) {
	t.Parallel()

	ix := mustIndex(t)

	var readings, groups bytes.Buffer
	if err := phonetic.WriteReadings(&readings, ix); err != nil {
		t.Fatalf("WriteReadings: %v", err)
	}
	if err := phonetic.WriteGroups(&groups, ix); err != nil {
		t.Fatalf("WriteGroups: %v", err)
	}

	reloaded, err := phonetic.ReadIndex(bytes.NewReader(readings.Bytes()), bytes.NewReader(groups.Bytes()))
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}

	var readings2, groups2 bytes.Buffer
	if err := phonetic.WriteReadings(&readings2, reloaded); err != nil {
		t.Fatalf("WriteReadings (reloaded): %v", err)
	}
	if err := phonetic.WriteGroups(&groups2, reloaded); err != nil {
		t.Fatalf("WriteGroups (reloaded): %v", err)
	}
	if !bytes.Equal(readings.Bytes(), readings2.Bytes()) {
		t.Errorf("readings file changed across round trip:\n%s\n%s", readings.String(), readings2.String())
	}
	if !bytes.Equal(groups.Bytes(), groups2.Bytes()) {
		t.Errorf("groups file changed across round trip:\n%s\n%s", groups.String(), groups2.String())
	}
}

func TestCodec_Format(t *testing.T) {
	t.Parallel()

	ix, err := phonetic.NewIndex(map[rune][]string{'程': {"cheng2"}, '城': {"cheng2"}})
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	var readings, groups bytes.Buffer
	_ = phonetic.WriteReadings(&readings, ix)
	_ = phonetic.WriteGroups(&groups, ix)

	if got, want := readings.String(), `{"城":["cheng2"],"程":["cheng2"]}`; got != want {
		t.Errorf("readings = %s, want %s", got, want)
	}
	if got, want := groups.String(), `{"cheng":["城","程"]}`; got != want {
		t.Errorf("groups = %s, want %s", got, want)
	}
}

func TestReadIndex_RejectsDisagreeingGroups(t *testing.T) {
	t.Parallel()

	readings := `{"城":["cheng2"],"程":["cheng2"]}`
	groups := `{"cheng":["城"]}`
	_, err := phonetic.ReadIndex(strings.NewReader(readings), strings.NewReader(groups))
	if err == nil {
		t.Fatal("ReadIndex with inconsistent groups: want error, got nil")
	}
}

func TestReadIndex_RejectsMultiCharKey(t *testing.T) {
	t.Parallel()

	_, err := phonetic.ReadIndex(strings.NewReader(`{"城市":["cheng2"]}`), nil)
	if err == nil {
		t.Fatal("ReadIndex with multi-character key: want error, got nil")
	}
}

func TestBuild_CustomTranscriber(t *testing.T) {
	t.Parallel()

	table := fixture()
	ix, err := phonetic.Build(context.Background(),
		phonetic.WithRanges(phonetic.Range{Lo: 0x4E00, Hi: 0x9FFF}),
		phonetic.WithTranscriber(func(c rune) []string { return table[c] }),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ix.Len() != len(table) {
		t.Errorf("Len = %d, want %d", ix.Len(), len(table))
	}
}

func TestBuild_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := phonetic.Build(ctx, phonetic.WithTranscriber(func(rune) []string { return nil }))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Build with cancelled ctx err = %v, want context.Canceled", err)
	}
}

func TestPinyinTranscriber_KnownConfusions(t *testing.T) {
	t.Parallel()

	tr := phonetic.PinyinTranscriber()
	ix, err := phonetic.NewIndex(map[rune][]string{
		'城': tr('城'), '程': tr('程'),
		'邊': tr('邊'), '辨': tr('辨'),
		'雨': tr('雨'), '語': tr('語'),
		'行': tr('行'),
	})
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}

	pairs := []struct {
		a, b rune
		base string
	}{
		{'城', '程', "cheng"},
		{'邊', '辨', "bian"},
		{'雨', '語', "yu"},
	}
	for _, p := range pairs {
		if !slices.Contains(ix.SharedBases(p.a, p.b), p.base) {
			t.Errorf("%q/%q should share base %q; got %v / %v", p.a, p.b, p.base, ix.Bases(p.a), ix.Bases(p.b))
		}
	}
	if bases := ix.Bases('行'); !slices.Contains(bases, "xing") || !slices.Contains(bases, "hang") {
		t.Errorf("Bases('行') = %v, want both xing and hang", bases)
	}
}
