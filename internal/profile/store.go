package profile

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stellarlinkco/persona/internal/fault"
	"github.com/stellarlinkco/persona/internal/provider"
)

// Store persists profiles as JSON documents in a shared SQLite database.
type Store struct {
	db        *sql.DB
	mu        sync.Mutex
	inference provider.InferenceEngine
	now       func() time.Time
}

type StoreOption func(*Store)

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore wires the profile table into an already-open database. The
// inference engine may be nil; LearnFromConversation then only updates
// statistics.
func NewStore(db *sql.DB, inference provider.InferenceEngine, opts ...StoreOption) (*Store, error) {
	s := &Store{db: db, inference: inference, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			user_id    TEXT PRIMARY KEY,
			document   TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`); err != nil {
		return nil, fmt.Errorf("init profile schema: %w", err)
	}
	return s, nil
}

// GetProfile returns the stored profile, or a not-found fault.
func (s *Store) GetProfile(userID string) (*UserProfile, error) {
	var document string
	err := s.db.QueryRow(`SELECT document FROM profiles WHERE user_id = ?`, userID).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.NotFound, "profile.get").WithUser(userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	var p UserProfile
	if err := json.Unmarshal([]byte(document), &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// GetOrCreateProfile lazily initializes a default profile on first contact.
func (s *Store) GetOrCreateProfile(userID string) (*UserProfile, error) {
	p, err := s.GetProfile(userID)
	if err == nil {
		return p, nil
	}
	if !fault.IsNotFound(err) {
		return nil, err
	}

	p = defaultProfile(userID, s.now().UTC())
	if err := s.saveProfile(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) saveProfile(p *UserProfile) error {
	p.Metadata.UpdatedAt = s.now().UTC()
	document, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO profiles (user_id, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		p.UserID, string(document), p.Metadata.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// Export returns the profile document as indented JSON.
func (s *Store) Export(userID string) ([]byte, error) {
	p, err := s.GetProfile(userID)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(p, "", "  ")
}

// Delete removes the profile. Deleting a missing profile is not an error.
func (s *Store) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM profiles WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
