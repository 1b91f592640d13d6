// Package transcript corrects homophone errors in Chinese speech-to-text
// output.
//
// Recognisers trained on general speech often pick a character that sounds
// right but is wrong in context: 很底 for 很低, 邊視 for 辨識. The [Pipeline]
// fixes these in one pass per utterance:
//
//  1. Detection ([detect]): the text is segmented and short runs of
//     single-character tokens whose word frequency is low are flagged as
//     suspicious spans. Words the segmenter kept whole are trusted.
//
//  2. Candidates ([candidate]): every character of a span is swapped for each
//     character sharing a toneless reading.
//
//  3. Scoring ([scorer]): a masked language model rates each candidate
//     against the original in context. A frequency-ratio score is always
//     computed alongside and becomes the deciding signal, under a stricter
//     threshold, when the model is unavailable.
//
//  4. Decision ([policy]): a candidate is accepted when its score exceeds the
//     threshold of its confusion class. Front/back nasal confusions need
//     more evidence than other homophones.
//
// Every [Correction] records which signal accepted it and every evaluated
// candidate is reported as a [CandidateDecision], so callers can audit,
// calibrate, or roll back changes.
//
// Implementations must be safe for concurrent use.
package transcript

import (
	"context"

	"github.com/MrWong99/zhfix/internal/transcript/detect"
	"github.com/MrWong99/zhfix/internal/transcript/policy"
	"github.com/MrWong99/zhfix/pkg/types"
)

// Correction captures a single substitution applied by the pipeline.
type Correction struct {
	// Offset is the rune offset of the replaced word in the NFC-normalised
	// input. Replacements never change length.
	Offset int `json:"offset"`

	// Original is the word as produced by the recogniser.
	Original string `json:"original"`

	// Corrected is the replacement selected by the pipeline.
	Corrected string `json:"corrected"`

	// Score is the deciding score. It always exceeds the threshold recorded
	// in the matching [CandidateDecision].
	Score float64 `json:"score"`

	// Class is the confusion class of the substitution.
	Class policy.Class `json:"class"`

	// Method describes which signal accepted this substitution.
	// Well-known values:
	//   "contextual": accepted on the masked-LM score.
	//   "frequency":  accepted on the frequency ratio while the model was
	//                  unavailable.
	Method string `json:"method"`
}

// CandidateDecision is the full record for one evaluated candidate. Both
// signals are carried regardless of which one decided.
type CandidateDecision struct {
	// Offset is the rune offset of the span.
	Offset int `json:"offset"`

	// Original is the span text.
	Original string `json:"original"`

	// Candidate is the span text with one character substituted.
	Candidate string `json:"candidate"`

	// Position is the substituted character index within the span.
	Position int `json:"position"`

	// Frequency is the frequency-ratio score. It is -Inf when the candidate
	// has no frequency.
	Frequency float64 `json:"frequency"`

	// Contextual is the masked-LM score. Valid only when ContextualErr is nil.
	Contextual float64 `json:"contextual"`

	// ContextualErr is the reason the contextual score is missing, if any.
	ContextualErr error `json:"-"`

	// Decision is the verdict and the inputs that produced it.
	Decision policy.Decision `json:"decision"`
}

// CorrectedTranscript is the output of a [Pipeline.Correct] call.
// It pairs the original [types.Transcript] with the fully corrected text and
// an itemised record of every substitution that was applied.
type CorrectedTranscript struct {
	// Original is the raw [types.Transcript] as received from the recogniser.
	Original types.Transcript `json:"original"`

	// Corrected is the transcript text with all substitutions applied. Text
	// outside the replaced words keeps its original bytes, and it equals
	// Original.Text when Corrections is empty.
	Corrected string `json:"corrected"`

	// Corrections is the list of substitutions applied to produce Corrected,
	// ordered by offset. An empty (non-nil) slice means no corrections were
	// necessary.
	Corrections []Correction `json:"corrections"`

	// Decisions lists every evaluated candidate ordered by offset, span
	// length, position, and candidate.
	Decisions []CandidateDecision `json:"decisions,omitempty"`

	// Spans lists the suspicious spans that were evaluated.
	Spans []detect.Span `json:"spans,omitempty"`

	// SnapshotVersion identifies the knowledge snapshot used for the pass.
	// Empty for transcripts that were not corrected because they were not
	// final.
	SnapshotVersion string `json:"snapshot_version,omitempty"`

	// Fallback reports whether any candidate was decided on the frequency
	// signal because the model was unavailable.
	Fallback bool `json:"fallback,omitempty"`
}

// Pipeline applies homophone correction to a [types.Transcript].
//
// Implementations must be safe for concurrent use.
type Pipeline interface {
	// Correct processes a final transcript and returns a [CorrectedTranscript]
	// containing the corrected text and an itemised record of every
	// substitution made. Partial transcripts are returned unchanged.
	//
	// A cancelled ctx abandons the pass: the context error is returned and no
	// partial result is produced. Failures of individual spans never abort
	// the pass; such spans are left unmodified.
	Correct(ctx context.Context, transcript types.Transcript) (*CorrectedTranscript, error)
}
