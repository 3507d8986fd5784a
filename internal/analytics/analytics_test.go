package analytics

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "persona.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func countEvents(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func TestSinkWritesEvents(t *testing.T) {
	db := newTestDB(t)
	sink, err := NewSQLSink(db, 16)
	if err != nil {
		t.Fatalf("NewSQLSink error: %v", err)
	}
	defer sink.Close()

	sink.Track(Event{UserID: "u1", SessionID: "s1", Kind: KindMessageProcessed, Payload: map[string]any{"topic": "travel"}})
	sink.Track(Event{UserID: "u1", Kind: KindMemoryStored})
	sink.Flush()

	if n := countEvents(t, db); n != 2 {
		t.Fatalf("expected 2 events written, got %d", n)
	}

	var id, createdAt string
	if err := db.QueryRow(`SELECT id, created_at FROM events WHERE kind = ?`, KindMemoryStored).Scan(&id, &createdAt); err != nil {
		t.Fatalf("query event: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a generated event id")
	}
	if _, err := time.Parse(time.RFC3339Nano, createdAt); err != nil {
		t.Fatalf("expected RFC3339 timestamp, got %q: %v", createdAt, err)
	}
}

func TestSinkDropsWhenFull(t *testing.T) {
	// No worker: the buffer fills and overflow must be dropped, not block.
	sink := &SQLSink{
		db:      newTestDB(t),
		events:  make(chan Event, 2),
		done:    make(chan struct{}),
		flushed: make(chan struct{}, 1),
	}

	for i := 0; i < 5; i++ {
		sink.Track(Event{UserID: "u1", Kind: KindMessageProcessed})
	}
	if got := sink.Dropped(); got != 3 {
		t.Fatalf("expected 3 dropped events, got %d", got)
	}
}

func TestSinkCloseIdempotent(t *testing.T) {
	db := newTestDB(t)
	sink, err := NewSQLSink(db, 4)
	if err != nil {
		t.Fatalf("NewSQLSink error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestNopSink(t *testing.T) {
	var sink Sink = NopSink{}
	sink.Track(Event{UserID: "u1", Kind: KindMessageProcessed})
	sink.Flush()
	if err := sink.Close(); err != nil {
		t.Fatalf("NopSink.Close error: %v", err)
	}
}
