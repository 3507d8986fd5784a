package session

import (
	"time"

	"github.com/stellarlinkco/persona/internal/provider"
)

type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusEnded  Status = "ended"
)

// Message is one turn held in the session ring buffer.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
	Entities  []provider.Entity
}

// Topic is the conversation's current subject with tracking scalars.
type Topic struct {
	Name       string
	Depth      int
	Engagement float64
}

// TopicTransition records a topic switch inside the session.
type TopicTransition struct {
	From string
	To   string
	At   time.Time
}

// EmotionSample is one point on the session's emotional journey.
type EmotionSample struct {
	Label   string
	Valence float64
	Arousal float64
	At      time.Time
}

// Context is the evolving conversational context of a session.
type Context struct {
	CurrentTopic        Topic
	TopicHistory        []TopicTransition
	EmotionalJourney    []EmotionSample
	UnresolvedQuestions []string
	KeyPoints           []string
	Goals               []string
}

// ContextPatch is a shallow merge applied by UpdateContext. Nil and empty
// fields leave the corresponding context field untouched.
type ContextPatch struct {
	CurrentTopic       *Topic
	TopicTransition    *TopicTransition
	Emotion            *EmotionSample
	AddUnresolved      []string
	ResolveQuestions   []string
	AddKeyPoints       []string
	AddGoals           []string
}

// State is the full working-memory record for one session. Never persisted
// beyond the TTL window.
type State struct {
	SessionID      string
	UserID         string
	Status         Status
	Context        Context
	RecentMessages []Message
	ActiveEntities map[string]provider.Entity
	CreatedAt      time.Time
	LastMessageAt  time.Time
	UpdatedAt      time.Time
}

// Stats is a snapshot of store activity.
type Stats struct {
	ActiveSessions  int
	TotalCreated    int
	TotalExpired    int
	TotalEnded      int
	AverageMessages float64
}

func (s *State) clone() *State {
	out := *s
	out.RecentMessages = append([]Message(nil), s.RecentMessages...)
	out.Context.TopicHistory = append([]TopicTransition(nil), s.Context.TopicHistory...)
	out.Context.EmotionalJourney = append([]EmotionSample(nil), s.Context.EmotionalJourney...)
	out.Context.UnresolvedQuestions = append([]string(nil), s.Context.UnresolvedQuestions...)
	out.Context.KeyPoints = append([]string(nil), s.Context.KeyPoints...)
	out.Context.Goals = append([]string(nil), s.Context.Goals...)
	out.ActiveEntities = make(map[string]provider.Entity, len(s.ActiveEntities))
	for k, v := range s.ActiveEntities {
		out.ActiveEntities[k] = v
	}
	return &out
}
