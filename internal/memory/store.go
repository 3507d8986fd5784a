// Package memory implements the durable long-term memory store on sqlite:
// semantically searchable entries with an importance/decay/consolidation
// lifecycle, plus the orchestrator that decides what conversation turns
// become durable.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/stellarlinkco/persona/internal/fault"
	"github.com/stellarlinkco/persona/internal/provider"
)

const timeLayout = time.RFC3339Nano

// relatedLinkThreshold is the minimum cosine similarity for linking a new
// entry to an existing one of the same type.
const relatedLinkThreshold = 0.8

type Store struct {
	db       *sql.DB
	mu       sync.Mutex
	embedder provider.EmbeddingProvider
	now      func() time.Time
}

type StoreOption func(*Store)

// WithStoreClock overrides the time source, for tests.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(dbPath string, embedder provider.EmbeddingProvider, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db, embedder: embedder, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle so the profile store and analytics sink
// can share one database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'episodic',
			category TEXT NOT NULL DEFAULT 'general',
			content TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			entities TEXT NOT NULL DEFAULT '[]',
			keywords TEXT NOT NULL DEFAULT '[]',
			embedding BLOB,
			importance REAL NOT NULL DEFAULT 0.5,
			valence REAL NOT NULL DEFAULT 0,
			arousal REAL NOT NULL DEFAULT 0,
			access_count INTEGER NOT NULL DEFAULT 0,
			decay_factor REAL NOT NULL DEFAULT 1.0,
			state TEXT NOT NULL DEFAULT 'active',
			related_ids TEXT NOT NULL DEFAULT '[]',
			temporal_ids TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			last_accessed TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_state ON memories(user_id, state)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_type ON memories(user_id, type, state)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			content,
			summary,
			content='memories',
			tokenize='unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, content, summary) VALUES (new.rowid, new.content, new.summary);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content, summary) VALUES('delete', old.rowid, old.content, old.summary);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content, summary) VALUES('delete', old.rowid, old.content, old.summary);
			INSERT INTO memories_fts(rowid, content, summary) VALUES (new.rowid, new.content, new.summary);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// StoreMemory derives retrieval artifacts from the embedding provider,
// persists the entry with lifecycle defaults, links it temporally to the
// user's latest prior memory, and one-directionally to the most similar
// same-type entries. Provider failures degrade: the entry is stored without
// the failed artifact and retrieval falls back to lexical matching.
func (s *Store) StoreMemory(ctx context.Context, userID, raw string, typ Type, ov *Overrides) (*Entry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("store memory: empty content")
	}
	if typ == "" {
		typ = TypeEpisodic
	}

	now := s.now().UTC()
	entry := &Entry{
		ID:     uuid.NewString(),
		UserID: userID,
		Type:   typ,
		Content: Content{
			Raw: raw,
		},
		Metadata: Metadata{
			CreatedAt:      now,
			Importance:     0.5,
			DecayFactor:    1.0,
			State:          StateActive,
			Category:       "general",
			LastAccessedAt: now,
		},
	}

	s.deriveContent(ctx, entry)
	s.applyOverrides(entry, ov)

	if prev, err := s.latestMemoryID(userID); err == nil && prev != "" {
		entry.TemporalIDs = []string{prev}
	}

	if err := s.insertEntry(entry); err != nil {
		return nil, err
	}

	if len(entry.Content.Embedding) > 0 {
		if err := s.linkRelated(entry); err != nil {
			log.Printf("[memory] link related for %s: %v", entry.ID, err)
		}
	}
	return entry, nil
}

func (s *Store) deriveContent(ctx context.Context, entry *Entry) {
	if s.embedder == nil {
		entry.Content.Summary = fallbackSummary(entry.Content.Raw)
		return
	}

	if vec, err := s.embedder.Embed(ctx, entry.Content.Raw); err != nil {
		log.Printf("[memory] embed degraded for user=%s: %v", entry.UserID, err)
	} else {
		entry.Content.Embedding = vec
	}
	if entities, err := s.embedder.ExtractEntities(ctx, entry.Content.Raw); err != nil {
		log.Printf("[memory] extract entities degraded for user=%s: %v", entry.UserID, err)
	} else {
		entry.Content.Entities = entities
	}
	if keywords, err := s.embedder.ExtractKeywords(ctx, entry.Content.Raw); err != nil {
		log.Printf("[memory] extract keywords degraded for user=%s: %v", entry.UserID, err)
	} else {
		entry.Content.Keywords = keywords
	}
	if summary, err := s.embedder.Summarize(ctx, entry.Content.Raw); err != nil || strings.TrimSpace(summary) == "" {
		entry.Content.Summary = fallbackSummary(entry.Content.Raw)
	} else {
		entry.Content.Summary = summary
	}
}

func (s *Store) applyOverrides(entry *Entry, ov *Overrides) {
	if ov == nil {
		return
	}
	if ov.Importance != nil {
		entry.Metadata.Importance = clampImportance(*ov.Importance)
	}
	if ov.Valence != nil {
		entry.Metadata.Valence = *ov.Valence
	}
	if ov.Arousal != nil {
		entry.Metadata.Arousal = *ov.Arousal
	}
	if ov.Category != "" {
		entry.Metadata.Category = ov.Category
	}
}

func (s *Store) insertEntry(entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blob []byte
	if len(entry.Content.Embedding) > 0 {
		encoded, err := encodeVector(entry.Content.Embedding)
		if err != nil {
			log.Printf("[memory] encode embedding for %s: %v", entry.ID, err)
		} else {
			blob = encoded
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO memories (
			id, user_id, type, category, content, summary, entities, keywords,
			embedding, importance, valence, arousal, access_count, decay_factor,
			state, related_ids, temporal_ids, created_at, last_accessed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.UserID, string(entry.Type), entry.Metadata.Category,
		entry.Content.Raw, entry.Content.Summary,
		marshalJSON(entry.Content.Entities), marshalJSON(entry.Content.Keywords),
		blob, entry.Metadata.Importance, entry.Metadata.Valence, entry.Metadata.Arousal,
		entry.Metadata.DecayFactor, string(entry.Metadata.State),
		marshalJSON(entry.RelatedIDs), marshalJSON(entry.TemporalIDs),
		entry.Metadata.CreatedAt.Format(timeLayout), entry.Metadata.LastAccessedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// linkRelated finds the 5 most similar same-type memories and records any
// with similarity at or above the threshold on the new entry only.
func (s *Store) linkRelated(entry *Entry) error {
	candidates, err := s.vectorCandidates(entry.UserID, entry.Content.Embedding, []Type{entry.Type}, 0, false)
	if err != nil {
		return err
	}

	related := make([]string, 0, 5)
	for _, c := range candidates {
		if c.Entry.ID == entry.ID {
			continue
		}
		if c.similarity < relatedLinkThreshold {
			break
		}
		related = append(related, c.Entry.ID)
		if len(related) == 5 {
			break
		}
	}
	if len(related) == 0 {
		return nil
	}

	entry.RelatedIDs = related
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`UPDATE memories SET related_ids = ? WHERE id = ?`, marshalJSON(related), entry.ID); err != nil {
		return fmt.Errorf("update related ids: %w", err)
	}
	return nil
}

// GetMemory returns an entry by id, archived ones included.
func (s *Store) GetMemory(id string) (*Entry, error) {
	rows, err := s.db.Query(selectColumns+` FROM memories WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fault.New(fault.NotFound, "get memory").WithMemory(id)
	}
	return &entries[0], nil
}

// AccessMemory increments the access counter and refreshes lastAccessedAt.
func (s *Store) AccessMemory(id string) (*Entry, error) {
	s.mu.Lock()
	res, err := s.db.Exec(`
		UPDATE memories
		SET access_count = access_count + 1, last_accessed = ?
		WHERE id = ?
	`, s.now().UTC().Format(timeLayout), id)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("access memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fault.New(fault.NotFound, "access memory").WithMemory(id)
	}
	return s.GetMemory(id)
}

func (s *Store) DeleteMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.New(fault.NotFound, "delete memory").WithMemory(id)
	}
	return nil
}

// DeleteUserMemories hard-removes every entry for the user. Used only for
// explicit reset requests.
func (s *Store) DeleteUserMemories(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM memories WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user memories: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) CountMemories(userID string) (int, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE user_id = ?`, userID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

// AllMemories returns every entry for the user, archived included, newest
// first. Used by data export.
func (s *Store) AllMemories(userID string) ([]Entry, error) {
	rows, err := s.db.Query(selectColumns+`
		FROM memories
		WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("all memories: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// UserIDs lists every user with at least one stored memory.
func (s *Store) UserIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT user_id FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecentMemories returns the newest non-archived entries for the user.
func (s *Store) RecentMemories(userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(selectColumns+`
		FROM memories
		WHERE user_id = ? AND state != 'archived'
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent memories: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) UserStats(userID string) (*Stats, error) {
	rows, err := s.db.Query(`
		SELECT type, state, importance, decay_factor FROM memories WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{ByType: make(map[Type]int)}
	var sumImp, sumDecay float64
	for rows.Next() {
		var typ, state string
		var imp, decay float64
		if err := rows.Scan(&typ, &state, &imp, &decay); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats.Total++
		stats.ByType[Type(typ)]++
		switch ConsolidationState(state) {
		case StateActive:
			stats.Active++
		case StateConsolidated:
			stats.Consolidated++
		case StateArchived:
			stats.Archived++
		}
		sumImp += imp
		sumDecay += decay
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats rows: %w", err)
	}
	if stats.Total > 0 {
		stats.AvgImportance = sumImp / float64(stats.Total)
		stats.AvgDecay = sumDecay / float64(stats.Total)
	}
	return stats, nil
}

func (s *Store) latestMemoryID(userID string) (string, error) {
	row := s.db.QueryRow(`
		SELECT id FROM memories WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, userID)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("latest memory id: %w", err)
	}
	return id, nil
}

const selectColumns = `
	SELECT id, user_id, type, category, content, summary, entities, keywords,
	       embedding, importance, valence, arousal, access_count, decay_factor,
	       state, related_ids, temporal_ids, created_at, last_accessed`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	result := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var typ, state, entities, keywords, related, temporal, createdAt, lastAccessed string
		var blob []byte
		if err := rows.Scan(
			&e.ID, &e.UserID, &typ, &e.Metadata.Category,
			&e.Content.Raw, &e.Content.Summary, &entities, &keywords,
			&blob, &e.Metadata.Importance, &e.Metadata.Valence, &e.Metadata.Arousal,
			&e.Metadata.AccessCount, &e.Metadata.DecayFactor,
			&state, &related, &temporal, &createdAt, &lastAccessed,
		); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		e.Type = Type(typ)
		e.Metadata.State = ConsolidationState(state)
		e.Metadata.CreatedAt = parseTime(createdAt)
		e.Metadata.LastAccessedAt = parseTime(lastAccessed)
		unmarshalJSON(entities, &e.Content.Entities)
		unmarshalJSON(keywords, &e.Content.Keywords)
		unmarshalJSON(related, &e.RelatedIDs)
		unmarshalJSON(temporal, &e.TemporalIDs)
		if len(blob) > 0 {
			if vec, err := decodeVector(blob); err == nil {
				e.Content.Embedding = vec
			}
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return result, nil
}

func fallbackSummary(raw string) string {
	const maxLen = 200
	if len(raw) <= maxLen {
		return raw
	}
	return raw[:maxLen]
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil || v == nil {
		return "[]"
	}
	if string(data) == "null" {
		return "[]"
	}
	return string(data)
}

func unmarshalJSON(data string, v any) {
	if strings.TrimSpace(data) == "" {
		return
	}
	_ = json.Unmarshal([]byte(data), v)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
