// Package profile maintains the durable per-user profile: identity facts,
// preferences, personality estimates, and the relationship state the
// conversation layer conditions on.
package profile

import (
	"time"
)

// Relationship levels, ordered from least to most established.
const (
	RelationshipNew          = "new"
	RelationshipFamiliar     = "familiar"
	RelationshipFriend       = "friend"
	RelationshipCollaborator = "collaborator"
)

// InferredFact is a field value the inference engine guessed rather than the
// user stating it outright. Higher-confidence observations replace it.
type InferredFact struct {
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Identity struct {
	ConfirmedInfo map[string]string       `json:"confirmedInfo"`
	InferredInfo  map[string]InferredFact `json:"inferredInfo"`
}

// TopicInterest tracks how engaged the user is with one topic over time.
type TopicInterest struct {
	Topic         string    `json:"topic"`
	Score         float64   `json:"score"`
	Mentions      int       `json:"mentions"`
	Sentiment     float64   `json:"sentiment"`
	LastMentioned time.Time `json:"lastMentioned"`
}

type Preferences struct {
	Style          map[string]float64 `json:"style"`
	TopicInterests []TopicInterest    `json:"topicInterests"`
	AvoidedTopics  []string           `json:"avoidedTopics"`
}

// SentimentSample is one observation of conversation sentiment; samples
// older than the rolling window age out.
type SentimentSample struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

type Statistics struct {
	TotalInteractions int               `json:"totalInteractions"`
	ResponseRate      float64           `json:"responseRate"`
	SentimentHistory  []SentimentSample `json:"sentimentHistory"`
}

type Meta struct {
	RelationshipLevel string    `json:"relationshipLevel"`
	TrustScore        float64   `json:"trustScore"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// UserProfile is the full document persisted per user.
type UserProfile struct {
	UserID      string             `json:"userId"`
	Identity    Identity           `json:"identity"`
	Preferences Preferences        `json:"preferences"`
	Personality map[string]float64 `json:"personality"`
	Statistics  Statistics         `json:"statistics"`
	Metadata    Meta               `json:"metadata"`
}

func defaultProfile(userID string, now time.Time) *UserProfile {
	return &UserProfile{
		UserID: userID,
		Identity: Identity{
			ConfirmedInfo: map[string]string{},
			InferredInfo:  map[string]InferredFact{},
		},
		Preferences: Preferences{
			Style: map[string]float64{
				"formality": 0.5,
				"humor":     0.5,
				"verbosity": 0.5,
			},
			TopicInterests: []TopicInterest{},
			AvoidedTopics:  []string{},
		},
		Personality: map[string]float64{
			"openness":          0.5,
			"conscientiousness": 0.5,
			"extraversion":      0.5,
			"agreeableness":     0.5,
			"neuroticism":       0.5,
		},
		Statistics: Statistics{SentimentHistory: []SentimentSample{}},
		Metadata: Meta{
			RelationshipLevel: RelationshipNew,
			TrustScore:        0.5,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
