// Package history defines the interfaces for stored transcript history.
//
// A [Source] reads transcripts back for offline validation runs, such as
// measuring how many low-frequency words the segmentation-aware detector
// trusts where the naive rule would have flagged them. A [Recorder] persists
// the transcripts the correction server handles, keeping both the corrected
// text and the raw recogniser output.
//
// Implementations live in sub-packages: sqlite reads a host application's
// transcription store, postgres reads and writes a session_entries table,
// and mock provides a test double.
package history

import (
	"context"
	"time"

	"github.com/MrWong99/zhfix/pkg/types"
)

// Query narrows the entries returned by [Source.Entries].
type Query struct {
	// Since, when non-zero, excludes entries recorded before it.
	Since time.Time

	// SessionID, when non-empty, restricts entries to one session. Sources
	// without sessions ignore it.
	SessionID string

	// Limit caps the number of entries. Zero means no limit.
	Limit int
}

// Source reads stored transcripts in recording order.
type Source interface {
	// Entries returns the entries matching q. Entries with empty text are
	// never returned.
	Entries(ctx context.Context, q Query) ([]types.TranscriptEntry, error)

	// Close releases the underlying connection.
	Close() error
}

// Recorder persists handled transcripts.
type Recorder interface {
	// WriteEntry appends e to the session named by e.SessionID.
	WriteEntry(ctx context.Context, e types.TranscriptEntry) error
}
