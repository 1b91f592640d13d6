// Package sqlite reads transcripts from a host application's Core Data
// SQLite store. Transcripts live in the ZTRANSCRIPTION table: ZTEXT holds the
// recogniser output and ZTIMESTAMP the recording time in seconds since
// 2001-01-01 UTC.
//
// The database is opened read-only; the host application may keep writing
// to it while a validation run reads.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/zhfix/pkg/history"
	"github.com/MrWong99/zhfix/pkg/types"
)

var _ history.Source = (*Store)(nil)

// coreDataEpoch is the reference date of Core Data timestamps.
var coreDataEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// Store is a read-only [history.Source] over a ZTRANSCRIPTION table.
type Store struct {
	db *sql.DB
}

// Open opens the store at path read-only and checks that the transcription
// table is present.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite history: open %q: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite history: open %q: %w", path, err)
	}
	return s, nil
}

func (s *Store) ping(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'ZTRANSCRIPTION'`).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("table ZTRANSCRIPTION not found")
	}
	return nil
}

// Entries implements [history.Source]. q.SessionID is ignored. Timestamps are
// read as plain seconds so the driver never reinterprets the column type.
func (s *Store) Entries(ctx context.Context, q history.Query) ([]types.TranscriptEntry, error) {
	var (
		conds = []string{"ZTEXT IS NOT NULL", "LENGTH(ZTEXT) > 0"}
		args  []any
	)
	if !q.Since.IsZero() {
		conds = append(conds, "ZTIMESTAMP >= ?")
		args = append(args, q.Since.Sub(coreDataEpoch).Seconds())
	}
	query := "SELECT Z_PK, ZTEXT, CAST(ZTIMESTAMP AS REAL) FROM ZTRANSCRIPTION WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY Z_PK"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite history: query: %w", err)
	}
	defer rows.Close()

	var entries []types.TranscriptEntry
	for rows.Next() {
		var (
			pk   int64
			text string
			ts   sql.NullFloat64
		)
		if err := rows.Scan(&pk, &text, &ts); err != nil {
			return nil, fmt.Errorf("sqlite history: scan: %w", err)
		}
		e := types.TranscriptEntry{ID: strconv.FormatInt(pk, 10), Text: text}
		if ts.Valid {
			e.Timestamp = fromCoreData(ts.Float64)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite history: rows: %w", err)
	}
	return entries, nil
}

// Close implements [history.Source].
func (s *Store) Close() error {
	return s.db.Close()
}

func fromCoreData(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return coreDataEpoch.Add(time.Duration(whole)*time.Second + time.Duration(frac*float64(time.Second))).UTC()
}
