package knowledge

import (
	"fmt"
	"strings"
)

// Check is a known confusion: Right is the intended word, Wrong what an ASR
// system produced instead.
type Check struct {
	Wrong string
	Right string
}

// DefaultChecks are spot checks for a freshly built snapshot.
var DefaultChecks = []Check{
	{Wrong: "城市", Right: "程式"},
	{Wrong: "邊視", Right: "辨識"},
	{Wrong: "雨停", Right: "語音"},
}

// Finding is the outcome of one assertion of a [Check].
type Finding struct {
	Check   Check
	OK      bool
	Message string
}

// Validate spot-checks s: every differing character pair of a check must
// share a toneless reading, and the right word must have a word frequency.
// Failures are warnings; a confusion outside the single-group model may still
// be corrected by other means.
func Validate(s *Snapshot, checks []Check) []Finding {
	var out []Finding
	for _, c := range checks {
		w, r := []rune(c.Wrong), []rune(c.Right)
		if len(w) != len(r) {
			out = append(out, Finding{Check: c, Message: fmt.Sprintf("%s and %s differ in length", c.Wrong, c.Right)})
			continue
		}
		for i := range w {
			if w[i] == r[i] {
				continue
			}
			shared := s.Index.SharedBases(w[i], r[i])
			if len(shared) > 0 {
				out = append(out, Finding{Check: c, OK: true, Message: fmt.Sprintf("%c↔%c share %s", w[i], r[i], strings.Join(shared, ","))})
				continue
			}
			out = append(out, Finding{Check: c, Message: fmt.Sprintf("%c %v and %c %v share no reading",
				w[i], s.Index.Bases(w[i]), r[i], s.Index.Bases(r[i]))})
		}
		if n, ok := s.Words.Lookup(c.Right); ok {
			out = append(out, Finding{Check: c, OK: true, Message: fmt.Sprintf("%s has frequency %d", c.Right, n)})
		} else {
			out = append(out, Finding{Check: c, Message: fmt.Sprintf("%s missing from word frequencies", c.Right)})
		}
	}
	return out
}
