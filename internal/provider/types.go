package provider

import "time"

// Entity is a named thing mentioned in conversation, tagged by the analyzer
// or the embedding provider.
type Entity struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// Emotion is the analyzer's read of a single message.
type Emotion struct {
	Label   string  `json:"label"`
	Valence float64 `json:"valence"`
	Arousal float64 `json:"arousal"`
}

// Analysis is the per-message signal set driving memory ingestion and
// context tracking.
type Analysis struct {
	Intent               string   `json:"intent"`
	Topic                string   `json:"topic"`
	Emotion              Emotion  `json:"emotion"`
	Entities             []Entity `json:"entities"`
	Sentiment            float64  `json:"sentiment"`
	EmotionalIntensity   float64  `json:"emotionalIntensity"`
	TopicChange          bool     `json:"topicChange"`
	EmotionChange        bool     `json:"emotionChange"`
	ShouldSaveToLongTerm bool     `json:"shouldSaveToLongTerm"`
	IsKeyPoint           bool     `json:"isKeyPoint"`
	HasPersonalInfo      bool     `json:"hasPersonalInfo"`
	IsUnresolved         bool     `json:"isUnresolved"`
	IsFactual            bool     `json:"isFactual"`
	IsProcedural         bool     `json:"isProcedural"`
}

// NeutralAnalysis is the degraded default applied when the analyzer is
// unreachable: nothing saved, nothing flagged, neutral emotion.
func NeutralAnalysis() *Analysis {
	return &Analysis{
		Intent:  "statement",
		Emotion: Emotion{Label: "neutral"},
	}
}

// ConversationEvent is one turn handed to the inference engine.
type ConversationEvent struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// InferredFact is a profile fact the inference engine derived rather than
// the user stating outright.
type InferredFact struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// TopicSignal is one observed topic-interest sample.
type TopicSignal struct {
	Topic     string  `json:"topic"`
	Score     float64 `json:"score"`
	Sentiment float64 `json:"sentiment"`
}

// Insights is the structured output of the inference engine over a batch of
// conversation events. All fields are optional; absent fields leave the
// profile untouched.
type Insights struct {
	ConfirmedInfo     map[string]string  `json:"confirmedInfo,omitempty"`
	InferredInfo      []InferredFact     `json:"inferredInfo,omitempty"`
	Preferences       map[string]float64 `json:"preferences,omitempty"`
	PersonalityTraits map[string]float64 `json:"personalityTraits,omitempty"`
	TopicInterests    []TopicSignal      `json:"topicInterests,omitempty"`
	Sentiment         *float64           `json:"sentiment,omitempty"`
}

// GenerateOptions carries per-call sampling constraints.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}
