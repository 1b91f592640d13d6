// Package postgres provides a PostgreSQL-backed transcript history over a
// session_entries table.
//
// The correction server records every final transcript it handles, with the
// corrected text in text and the recogniser output in raw_text. Validation
// runs read the table back and audit the raw text.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.WriteEntry(ctx, entry)
//	entries, _ := store.Entries(ctx, history.Query{Limit: 1000})
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/zhfix/pkg/history"
	"github.com/MrWong99/zhfix/pkg/types"
)

var (
	_ history.Source   = (*Store)(nil)
	_ history.Recorder = (*Store)(nil)
)

// Store is a [history.Source] and [history.Recorder] backed by a single
// [pgxpool.Pool]. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres history: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres history: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres history: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WriteEntry implements [history.Recorder]. A zero timestamp is stored as
// the current time.
func (s *Store) WriteEntry(ctx context.Context, e types.TranscriptEntry) error {
	const q = `
		INSERT INTO session_entries (session_id, text, raw_text, timestamp, duration_ns)
		VALUES ($1, $2, $3, COALESCE($4, now()), $5)`

	var ts *time.Time
	if !e.Timestamp.IsZero() {
		ts = &e.Timestamp
	}
	if _, err := s.pool.Exec(ctx, q, e.SessionID, e.Text, e.RawText, ts, e.Duration.Nanoseconds()); err != nil {
		return fmt.Errorf("postgres history: write entry: %w", err)
	}
	return nil
}

// Entries implements [history.Source]. Entries are ordered by timestamp,
// then id.
func (s *Store) Entries(ctx context.Context, q history.Query) ([]types.TranscriptEntry, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"text <> ''"}
	if q.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(q.SessionID))
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, "timestamp >= "+next(q.Since))
	}

	query := "SELECT id, session_id, text, raw_text, timestamp, duration_ns\n" +
		"FROM   session_entries\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY timestamp, id"
	if q.Limit > 0 {
		query += "\nLIMIT " + next(q.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres history: entries: %w", err)
	}
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]types.TranscriptEntry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.TranscriptEntry, error) {
		var (
			e          types.TranscriptEntry
			id         int64
			durationNS int64
		)
		if err := row.Scan(&id, &e.SessionID, &e.Text, &e.RawText, &e.Timestamp, &durationNS); err != nil {
			return types.TranscriptEntry{}, err
		}
		e.ID = fmt.Sprint(id)
		e.Duration = time.Duration(durationNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres history: scan rows: %w", err)
	}
	if entries == nil {
		entries = []types.TranscriptEntry{}
	}
	return entries, nil
}

// Close implements [history.Source].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
