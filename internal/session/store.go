// Package session implements the ephemeral working-memory store: per-session
// conversational state with a TTL window, a bounded ring buffer of recent
// turns, and an active-entity map. State lives in process memory only.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stellarlinkco/persona/internal/fault"
	"github.com/stellarlinkco/persona/internal/provider"
)

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*State
	ttl      time.Duration
	maxMsgs  int

	totalCreated int
	totalExpired int
	totalEnded   int

	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(ttl time.Duration, maxRecentMessages int, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if maxRecentMessages <= 0 {
		maxRecentMessages = 50
	}
	s := &Store{
		sessions: make(map[string]*State),
		ttl:      ttl,
		maxMsgs:  maxRecentMessages,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) CreateSession(userID string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(userID).clone()
}

// GetOrCreateSession returns the user's most recently updated live active
// session, creating one only when none exists inside the TTL window. Repeated
// calls within the window yield the same session id.
func (s *Store) GetOrCreateSession(userID string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var latest *State
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.Status != StatusActive {
			continue
		}
		if s.expiredAt(sess, now) {
			continue
		}
		if latest == nil || sess.UpdatedAt.After(latest.UpdatedAt) {
			latest = sess
		}
	}
	if latest != nil {
		return latest.clone()
	}
	return s.createLocked(userID).clone()
}

func (s *Store) GetSession(sessionID string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fault.New(fault.NotFound, "get session").WithSession(sessionID)
	}
	return sess.clone(), nil
}

// AddMessage appends a turn, evicting the oldest beyond the ring-buffer cap,
// refreshes lastMessageAt, and merges tagged entities into the active-entity
// map (most-recent-wins on duplicate names).
func (s *Store) AddMessage(sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fault.New(fault.NotFound, "add message").WithSession(sessionID)
	}

	now := s.now()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	sess.RecentMessages = append(sess.RecentMessages, msg)
	if over := len(sess.RecentMessages) - s.maxMsgs; over > 0 {
		sess.RecentMessages = append([]Message(nil), sess.RecentMessages[over:]...)
	}
	for _, ent := range msg.Entities {
		if ent.Name == "" {
			continue
		}
		sess.ActiveEntities[ent.Name] = ent
	}
	sess.LastMessageAt = now
	sess.UpdatedAt = now
	return nil
}

// UpdateContext shallow-merges the patch into the session context.
func (s *Store) UpdateContext(sessionID string, patch ContextPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fault.New(fault.NotFound, "update context").WithSession(sessionID)
	}

	ctx := &sess.Context
	if patch.CurrentTopic != nil {
		ctx.CurrentTopic = *patch.CurrentTopic
	}
	if patch.TopicTransition != nil {
		ctx.TopicHistory = append(ctx.TopicHistory, *patch.TopicTransition)
	}
	if patch.Emotion != nil {
		ctx.EmotionalJourney = append(ctx.EmotionalJourney, *patch.Emotion)
	}
	for _, q := range patch.AddUnresolved {
		if !containsString(ctx.UnresolvedQuestions, q) {
			ctx.UnresolvedQuestions = append(ctx.UnresolvedQuestions, q)
		}
	}
	for _, q := range patch.ResolveQuestions {
		ctx.UnresolvedQuestions = removeString(ctx.UnresolvedQuestions, q)
	}
	ctx.KeyPoints = append(ctx.KeyPoints, patch.AddKeyPoints...)
	ctx.Goals = append(ctx.Goals, patch.AddGoals...)

	sess.UpdatedAt = s.now()
	return nil
}

func (s *Store) EndSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fault.New(fault.NotFound, "end session").WithSession(sessionID)
	}
	if sess.Status != StatusEnded {
		sess.Status = StatusEnded
		sess.UpdatedAt = s.now()
		s.totalEnded++
	}
	return nil
}

// CleanupExpiredSessions drops every session outside the TTL window plus any
// already ended. Returns the number removed.
func (s *Store) CleanupExpiredSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if sess.Status == StatusEnded || s.expiredAt(sess, now) {
			if sess.Status != StatusEnded {
				s.totalExpired++
			}
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// ActiveUserIDs lists users with a live session, for the maintenance sweep.
func (s *Store) ActiveUserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, sess := range s.sessions {
		if sess.Status != StatusActive {
			continue
		}
		if _, ok := seen[sess.UserID]; ok {
			continue
		}
		seen[sess.UserID] = struct{}{}
		out = append(out, sess.UserID)
	}
	return out
}

func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	totalMsgs := 0
	for _, sess := range s.sessions {
		if sess.Status == StatusActive {
			active++
		}
		totalMsgs += len(sess.RecentMessages)
	}
	avg := 0.0
	if len(s.sessions) > 0 {
		avg = float64(totalMsgs) / float64(len(s.sessions))
	}
	return Stats{
		ActiveSessions:  active,
		TotalCreated:    s.totalCreated,
		TotalExpired:    s.totalExpired,
		TotalEnded:      s.totalEnded,
		AverageMessages: avg,
	}
}

func (s *Store) createLocked(userID string) *State {
	now := s.now()
	sess := &State{
		SessionID:      uuid.NewString(),
		UserID:         userID,
		Status:         StatusActive,
		ActiveEntities: make(map[string]provider.Entity),
		CreatedAt:      now,
		LastMessageAt:  now,
		UpdatedAt:      now,
	}
	s.sessions[sess.SessionID] = sess
	s.totalCreated++
	return sess
}

func (s *Store) expiredAt(sess *State, now time.Time) bool {
	return now.Sub(sess.UpdatedAt) > s.ttl
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}
