package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/zhfix/pkg/history"
	"github.com/MrWong99/zhfix/pkg/history/postgres"
	"github.com/MrWong99/zhfix/pkg/types"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if ZHFIX_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("ZHFIX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ZHFIX_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a [postgres.Store] on a freshly dropped table.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS session_entries CASCADE"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_WriteAndEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	written := []types.TranscriptEntry{
		{SessionID: "s1", Text: "今天氣溫很低", RawText: "今天氣溫很底", Timestamp: now.Add(-3 * time.Minute), Duration: 2 * time.Second},
		{SessionID: "s2", Text: "搭捷運去城市", Timestamp: now.Add(-2 * time.Minute)},
		{SessionID: "s1", Text: "語音辨識很準", RawText: "語音邊視很準", Timestamp: now.Add(-time.Minute)},
	}
	for _, e := range written {
		if err := store.WriteEntry(ctx, e); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	}

	all, err := store.Entries(ctx, history.Query{})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d entries, want 3", len(all))
	}
	if all[0].ASRText() != "今天氣溫很底" || all[1].ASRText() != "搭捷運去城市" {
		t.Errorf("ASRText = %q, %q", all[0].ASRText(), all[1].ASRText())
	}
	if all[0].Duration != 2*time.Second || !all[0].Timestamp.Equal(written[0].Timestamp) {
		t.Errorf("entry[0] = %+v", all[0])
	}
	if all[0].ID == "" {
		t.Error("entry[0].ID is empty")
	}

	s1, err := store.Entries(ctx, history.Query{SessionID: "s1", Since: now.Add(-90 * time.Second)})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(s1) != 1 || s1[0].Text != "語音辨識很準" {
		t.Errorf("filtered entries = %+v", s1)
	}

	limited, err := store.Entries(ctx, history.Query{Limit: 2})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d entries with Limit 2", len(limited))
	}
}

func TestStore_ZeroTimestampDefaultsToNow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Minute)
	if err := store.WriteEntry(ctx, types.TranscriptEntry{SessionID: "s", Text: "銀幕"}); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	entries, err := store.Entries(ctx, history.Query{Since: before})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	newTestStore(t)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	for range 2 {
		if err := postgres.Migrate(ctx, pool); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
	}
}
