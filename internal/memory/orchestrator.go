package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/stellarlinkco/persona/internal/provider"
	"github.com/stellarlinkco/persona/internal/session"
)

const workingMemoryOverlap = 0.5

// Orchestrator routes each incoming message through analysis, working
// memory, and long-term storage, and answers retrieval requests that blend
// both tiers.
type Orchestrator struct {
	sessions *session.Store
	store    *Store
	analyzer provider.MessageAnalyzer
}

func NewOrchestrator(sessions *session.Store, store *Store, analyzer provider.MessageAnalyzer) *Orchestrator {
	return &Orchestrator{sessions: sessions, store: store, analyzer: analyzer}
}

// ProcessResult reports what ingestion did with a message.
type ProcessResult struct {
	SessionID string
	Analysis  *provider.Analysis
	Stored    *Entry
}

// ProcessMessage analyzes one message, appends it to the session's working
// memory, folds the analysis into the session context, and promotes the
// message to long-term storage when the analyzer marks it durable. An empty
// sessionID resolves to the user's live session (creating one if needed);
// an explicit unknown sessionID is an error.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userID, sessionID, role, text string) (*ProcessResult, error) {
	var state *session.State
	if sessionID == "" {
		state = o.sessions.GetOrCreateSession(userID)
	} else {
		var err error
		state, err = o.sessions.GetSession(sessionID)
		if err != nil {
			return nil, err
		}
	}

	analysis, err := o.analyzer.Analyze(ctx, text, recentContext(state.RecentMessages))
	if err != nil {
		log.Printf("[orchestrator] analysis degraded for user=%s: %v", userID, err)
		analysis = provider.NeutralAnalysis()
	}

	msg := session.Message{
		Role:      role,
		Content:   text,
		Timestamp: time.Now().UTC(),
		Entities:  analysis.Entities,
	}
	if err := o.sessions.AddMessage(state.SessionID, msg); err != nil {
		return nil, err
	}
	if err := o.sessions.UpdateContext(state.SessionID, contextPatch(state, analysis, text)); err != nil {
		return nil, err
	}

	result := &ProcessResult{SessionID: state.SessionID, Analysis: analysis}
	if analysis.ShouldSaveToLongTerm {
		entry, err := o.promote(ctx, userID, text, analysis)
		if err != nil {
			log.Printf("[orchestrator] long-term promotion failed for user=%s: %v", userID, err)
		} else {
			result.Stored = entry
		}
	}
	return result, nil
}

// promote derives the entry type and importance from the analysis and
// stores the message. Importance starts at a 0.5 baseline and accumulates
// signal bonuses, capped at 1.0.
func (o *Orchestrator) promote(ctx context.Context, userID, text string, analysis *provider.Analysis) (*Entry, error) {
	typ := TypeEpisodic
	if analysis.IsFactual {
		typ = TypeSemantic
	} else if analysis.IsProcedural {
		typ = TypeProcedural
	}

	importance := 0.5
	if analysis.IsKeyPoint {
		importance += 0.2
	}
	if analysis.EmotionalIntensity > 0.7 {
		importance += 0.1
	}
	if analysis.HasPersonalInfo {
		importance += 0.15
	}
	if analysis.IsUnresolved {
		importance += 0.1
	}
	if len(analysis.Entities) > 3 {
		importance += 0.05
	}
	importance = clampImportance(importance)

	category := strings.TrimSpace(analysis.Topic)
	if category == "" {
		category = "general"
	}
	valence := analysis.Emotion.Valence
	arousal := analysis.Emotion.Arousal
	return o.store.StoreMemory(ctx, userID, text, typ, &Overrides{
		Importance: &importance,
		Valence:    &valence,
		Arousal:    &arousal,
		Category:   category,
	})
}

// SearchRelevantMemories merges long-term search results with working-memory
// hits from the session's recent messages. A recent message counts as a hit
// when more than half of the query's tokens appear in it.
func (o *Orchestrator) SearchRelevantMemories(ctx context.Context, userID, sessionID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	resp, err := o.store.SearchMemories(ctx, SearchQuery{UserID: userID, Text: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("search long-term memories: %w", err)
	}
	merged := append([]SearchResult(nil), resp.Results...)

	if sessionID != "" {
		if state, err := o.sessions.GetSession(sessionID); err == nil {
			merged = append(merged, workingMemoryHits(state, query)...)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Relevance > merged[j].Relevance
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func workingMemoryHits(state *session.State, query string) []SearchResult {
	queryTokens := extractTokens(query)
	if len(queryTokens) == 0 {
		return nil
	}

	hits := make([]SearchResult, 0)
	for _, msg := range state.RecentMessages {
		msgTokens := map[string]struct{}{}
		for _, t := range extractTokens(msg.Content) {
			msgTokens[t] = struct{}{}
		}
		matched := 0
		for _, t := range queryTokens {
			if _, ok := msgTokens[t]; ok {
				matched++
			}
		}
		overlap := float64(matched) / float64(len(queryTokens))
		if overlap <= workingMemoryOverlap {
			continue
		}
		hits = append(hits, SearchResult{
			Entry: Entry{
				UserID: state.UserID,
				Type:   TypeWorking,
				Content: Content{
					Raw:     msg.Content,
					Summary: fallbackSummary(msg.Content),
				},
				Metadata: Metadata{
					CreatedAt:      msg.Timestamp,
					LastAccessedAt: msg.Timestamp,
					Importance:     0.5,
					DecayFactor:    1.0,
					State:          StateActive,
					Category:       "working",
				},
			},
			Relevance: overlap,
		})
	}
	return hits
}

// ConversationContext is the snapshot handed to response generation.
type ConversationContext struct {
	SessionID           string
	RecentMessages      []session.Message
	ActiveEntities      map[string]provider.Entity
	CurrentTopic        *session.Topic
	LatestEmotion       *session.EmotionSample
	UnresolvedQuestions []string
	KeyPoints           []string
	Goals               []string
}

func (o *Orchestrator) ConversationContext(sessionID string) (*ConversationContext, error) {
	state, err := o.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	cc := &ConversationContext{
		SessionID:           state.SessionID,
		RecentMessages:      state.RecentMessages,
		ActiveEntities:      state.ActiveEntities,
		UnresolvedQuestions: state.Context.UnresolvedQuestions,
		KeyPoints:           state.Context.KeyPoints,
		Goals:               state.Context.Goals,
	}
	if state.Context.CurrentTopic.Name != "" {
		topic := state.Context.CurrentTopic
		cc.CurrentTopic = &topic
	}
	if n := len(state.Context.EmotionalJourney); n > 0 {
		sample := state.Context.EmotionalJourney[n-1]
		cc.LatestEmotion = &sample
	}
	return cc, nil
}

func contextPatch(state *session.State, analysis *provider.Analysis, text string) session.ContextPatch {
	patch := session.ContextPatch{}
	now := time.Now().UTC()

	if analysis.Topic != "" && (analysis.TopicChange || state.Context.CurrentTopic.Name == "") {
		patch.CurrentTopic = &session.Topic{Name: analysis.Topic, Depth: 1, Engagement: analysis.EmotionalIntensity}
		if state.Context.CurrentTopic.Name != "" && state.Context.CurrentTopic.Name != analysis.Topic {
			patch.TopicTransition = &session.TopicTransition{
				From: state.Context.CurrentTopic.Name,
				To:   analysis.Topic,
				At:   now,
			}
		}
	}
	if analysis.Emotion.Label != "" {
		patch.Emotion = &session.EmotionSample{
			Label:   analysis.Emotion.Label,
			Valence: analysis.Emotion.Valence,
			Arousal: analysis.Emotion.Arousal,
			At:      now,
		}
	}
	if analysis.IsUnresolved {
		patch.AddUnresolved = []string{fallbackSummary(text)}
	}
	if analysis.IsKeyPoint {
		patch.AddKeyPoints = []string{fallbackSummary(text)}
	}
	return patch
}

func recentContext(messages []session.Message) string {
	if len(messages) == 0 {
		return ""
	}
	start := 0
	if len(messages) > 5 {
		start = len(messages) - 5
	}
	lines := make([]string, 0, len(messages)-start)
	for _, m := range messages[start:] {
		lines = append(lines, fmt.Sprintf("[%s] %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}
