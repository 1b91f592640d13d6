package detect

import (
	"cmp"
	"slices"

	"github.com/MrWong99/zhfix/internal/transcript/phonetic"
)

// Naive returns every CJK substring of the configured lengths whose frequency
// lies in 1..threshold, ignoring word boundaries. This is the frequency-only
// rule the segmentation-aware detector replaces; it is kept to measure the
// false positives the boundary check removes.
func (d *Detector) Naive(text string) []Span {
	runes := []rune(text)
	var spans []Span
	for i := 0; i < len(runes); {
		if !phonetic.IsCJK(runes[i]) {
			i++
			continue
		}
		j := i
		for j < len(runes) && phonetic.IsCJK(runes[j]) {
			j++
		}
		for n := d.minLen; n <= d.maxLen; n++ {
			for s := i; s+n <= j; s++ {
				w := string(runes[s : s+n])
				if f := d.words.Freq(w); f >= 1 && f <= d.threshold {
					spans = append(spans, Span{Text: w, Offset: s, Freq: f})
				}
			}
		}
		i = j
	}
	return spans
}

// AuditRow summarises one low-frequency word found by the naive rule.
type AuditRow struct {
	Word string `json:"word"`
	Freq int64  `json:"freq"`

	// Occurrences counts naive-rule hits across all audited texts.
	Occurrences int `json:"occurrences"`

	// StillFlagged counts the occurrences the segmentation-aware detector
	// also flags at the same offset.
	StillFlagged int `json:"still_flagged"`
}

// AuditReport is the result of an [Audit].
type AuditReport struct {
	Rows     []AuditRow `json:"rows"`
	Records  int        `json:"records"`
	Affected int        `json:"affected"`
}

// Occurrences returns the total naive-rule hits.
func (r AuditReport) Occurrences() int {
	n := 0
	for _, row := range r.Rows {
		n += row.Occurrences
	}
	return n
}

// Eliminated returns the naive-rule hits the detector no longer flags.
func (r AuditReport) Eliminated() int {
	n := 0
	for _, row := range r.Rows {
		n += row.Occurrences - row.StillFlagged
	}
	return n
}

// Audit compares the naive rule with the detector over a stream of
// historical transcripts. It is not safe for concurrent use.
type Audit struct {
	d        *Detector
	rows     map[string]*AuditRow
	records  int
	affected int
}

// NewAudit returns an empty [Audit] using d.
func NewAudit(d *Detector) *Audit {
	return &Audit{d: d, rows: make(map[string]*AuditRow)}
}

// Add audits one transcript text.
func (a *Audit) Add(text string) {
	a.records++
	naive := a.d.Naive(text)
	if len(naive) == 0 {
		return
	}
	a.affected++

	type key struct {
		text   string
		offset int
	}
	flagged := make(map[key]bool)
	for _, s := range a.d.Detect(text) {
		flagged[key{s.Text, s.Offset}] = true
	}
	for _, s := range naive {
		row, ok := a.rows[s.Text]
		if !ok {
			row = &AuditRow{Word: s.Text, Freq: s.Freq}
			a.rows[s.Text] = row
		}
		row.Occurrences++
		if flagged[key{s.Text, s.Offset}] {
			row.StillFlagged++
		}
	}
}

// Report returns the rows ordered by occurrences descending, then word.
func (a *Audit) Report() AuditReport {
	rows := make([]AuditRow, 0, len(a.rows))
	for _, r := range a.rows {
		rows = append(rows, *r)
	}
	slices.SortFunc(rows, func(x, y AuditRow) int {
		if c := cmp.Compare(y.Occurrences, x.Occurrences); c != 0 {
			return c
		}
		return cmp.Compare(x.Word, y.Word)
	})
	return AuditReport{Rows: rows, Records: a.records, Affected: a.affected}
}
