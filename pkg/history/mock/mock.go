// Package mock provides an in-memory test double for the history interfaces.
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent
// use.
//
// Typical usage:
//
//	src := &mock.Store{EntriesResult: []types.TranscriptEntry{{Text: "今天氣溫很底"}}}
//
//	// inject src into the system under test …
//
//	if got := src.CallCount("Entries"); got != 1 {
//	    t.Errorf("expected 1 Entries call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/zhfix/pkg/history"
	"github.com/MrWong99/zhfix/pkg/types"
)

var (
	_ history.Source   = (*Store)(nil)
	_ history.Recorder = (*Store)(nil)
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// Store is a configurable test double for [history.Source] and
// [history.Recorder].
type Store struct {
	mu    sync.Mutex
	calls []Call

	// EntriesResult is returned by [Store.Entries]. When nil, the entries
	// written through [Store.WriteEntry] are returned instead.
	EntriesResult []types.TranscriptEntry

	// EntriesErr is returned by [Store.Entries] when non-nil.
	EntriesErr error

	// WriteEntryErr is returned by [Store.WriteEntry] when non-nil.
	WriteEntryErr error

	// CloseErr is returned by [Store.Close].
	CloseErr error

	written []types.TranscriptEntry
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Written returns a copy of the entries accepted by [Store.WriteEntry].
func (m *Store) Written() []types.TranscriptEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.TranscriptEntry, len(m.written))
	copy(out, m.written)
	return out
}

// Reset clears recorded calls and written entries without altering response
// configuration.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.written = nil
}

// Entries implements [history.Source]. q.Limit is honoured; other filters
// are recorded but not applied.
func (m *Store) Entries(_ context.Context, q history.Query) ([]types.TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Entries", Args: []any{q}})
	if m.EntriesErr != nil {
		return nil, m.EntriesErr
	}
	src := m.EntriesResult
	if src == nil {
		src = m.written
	}
	if q.Limit > 0 && len(src) > q.Limit {
		src = src[:q.Limit]
	}
	out := make([]types.TranscriptEntry, len(src))
	copy(out, src)
	return out, nil
}

// WriteEntry implements [history.Recorder].
func (m *Store) WriteEntry(_ context.Context, e types.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "WriteEntry", Args: []any{e}})
	if m.WriteEntryErr != nil {
		return m.WriteEntryErr
	}
	m.written = append(m.written, e)
	return nil
}

// Close implements [history.Source].
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Close"})
	return m.CloseErr
}
