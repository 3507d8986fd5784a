// Package analytics records interaction events on a best-effort basis.
// Recording never blocks the conversation path: events flow through a
// bounded channel and are dropped when the buffer is full.
package analytics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds emitted by the engine.
const (
	KindMessageProcessed = "message_processed"
	KindMemoryStored     = "memory_stored"
	KindCommandHandled   = "command_handled"
	KindMaintenanceRun   = "maintenance_run"
	KindProfileUpdated   = "profile_updated"
)

type Event struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId,omitempty"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink accepts events without blocking the caller.
type Sink interface {
	Track(event Event)
	Flush()
	Close() error
}

// NopSink drops everything; used when analytics is disabled.
type NopSink struct{}

func (NopSink) Track(Event) {}
func (NopSink) Flush()      {}
func (NopSink) Close() error { return nil }

// SQLSink writes events to an events table in the shared database through a
// single background worker.
type SQLSink struct {
	db      *sql.DB
	events  chan Event
	done    chan struct{}
	flushed chan struct{}
	once    sync.Once
	dropped int
	mu      sync.Mutex
}

// NewSQLSink initializes the events table and starts the worker. bufferSize
// bounds the in-flight queue; overflow is dropped and counted.
func NewSQLSink(db *sql.DB, bufferSize int) (*SQLSink, error) {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			kind       TEXT NOT NULL,
			payload    TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		)`); err != nil {
		return nil, fmt.Errorf("init events schema: %w", err)
	}

	s := &SQLSink{
		db:      db,
		events:  make(chan Event, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}, 1),
	}
	go s.worker()
	return s, nil
}

// Track enqueues the event, filling in ID and timestamp when absent. A full
// buffer drops the event rather than stalling the caller.
func (s *SQLSink) Track(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case s.events <- event:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Flush blocks until the worker has drained every event enqueued before the
// call. Intended for tests and shutdown.
func (s *SQLSink) Flush() {
	marker := Event{Kind: "__flush__"}
	select {
	case s.events <- marker:
		<-s.flushed
	case <-s.done:
	}
}

func (s *SQLSink) Close() error {
	s.once.Do(func() {
		s.Flush()
		close(s.done)
	})
	return nil
}

// Dropped reports how many events were discarded due to a full buffer.
func (s *SQLSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *SQLSink) worker() {
	for {
		select {
		case event := <-s.events:
			if event.Kind == "__flush__" {
				s.flushed <- struct{}{}
				continue
			}
			if err := s.write(event); err != nil {
				log.Printf("[analytics] write event: %v", err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *SQLSink) write(event Event) error {
	payload := []byte("{}")
	if len(event.Payload) > 0 {
		encoded, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		payload = encoded
	}
	_, err := s.db.Exec(`
		INSERT INTO events (id, user_id, session_id, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.UserID, event.SessionID, event.Kind, string(payload),
		event.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}
