// Package types defines the shared types used across zhfix packages.
//
// These types form the lingua franca between the correction engine, the
// history sources, and the HTTP surface. Each package defines its own domain
// types; only cross-cutting data structures live here to avoid circular
// imports.
package types

import "time"

// Transcript is a speech-to-text result handed to the correction engine by the
// host application. Both partial (interim) and final transcripts use this type,
// but only final transcripts are corrected.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string `json:"text"`

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) transcript.
	IsFinal bool `json:"is_final"`

	// Confidence is the overall ASR confidence score (0.0–1.0). May be zero if
	// the recogniser does not report confidence.
	Confidence float64 `json:"confidence,omitempty"`

	// Words contains per-word detail when the recogniser provides it.
	Words []WordDetail `json:"words,omitempty"`

	// Timestamp marks when the utterance started, relative to stream start.
	Timestamp time.Duration `json:"timestamp,omitempty"`

	// Duration is the length of the utterance.
	Duration time.Duration `json:"duration,omitempty"`
}

// WordDetail holds per-word metadata from recognisers that support it.
type WordDetail struct {
	Word       string        `json:"word"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Confidence float64       `json:"confidence"`
}

// TranscriptEntry is a historical transcript record read back from a host
// application's store. It is the unit consumed by offline validation runs.
type TranscriptEntry struct {
	// ID is the store-specific primary key, rendered as a string.
	ID string

	// SessionID groups entries of one recording session. Empty when the
	// store has no notion of sessions.
	SessionID string

	// Text is the transcript text as it was persisted.
	Text string

	// RawText is the recogniser output before correction, when the store
	// keeps both. Empty otherwise.
	RawText string

	// Timestamp is when the entry was recorded. Zero if the store does not
	// keep timestamps.
	Timestamp time.Time

	// Duration is the length of the utterance, if known.
	Duration time.Duration
}

// ASRText returns the uncorrected recogniser output: RawText when present,
// Text otherwise.
func (e TranscriptEntry) ASRText() string {
	if e.RawText != "" {
		return e.RawText
	}
	return e.Text
}
