// Package persona is the top-level engine: it owns the stores and
// orchestrators and exposes the operations the CLI and scheduler call.
package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/stellarlinkco/persona/internal/analytics"
	"github.com/stellarlinkco/persona/internal/convo"
	"github.com/stellarlinkco/persona/internal/memory"
	"github.com/stellarlinkco/persona/internal/profile"
	"github.com/stellarlinkco/persona/internal/provider"
	"github.com/stellarlinkco/persona/internal/session"
)

type Engine struct {
	sessions     *session.Store
	memories     *memory.Store
	orchestrator *memory.Orchestrator
	profiles     *profile.Store
	convo        *convo.Orchestrator
	sink         analytics.Sink

	consolidationThreshold int
}

// Deps carries the engine's collaborators; all are required except Sink,
// which defaults to a no-op.
type Deps struct {
	Sessions               *session.Store
	Memories               *memory.Store
	Orchestrator           *memory.Orchestrator
	Profiles               *profile.Store
	Conversation           *convo.Orchestrator
	Sink                   analytics.Sink
	ConsolidationThreshold int
}

func NewEngine(deps Deps) *Engine {
	sink := deps.Sink
	if sink == nil {
		sink = analytics.NopSink{}
	}
	threshold := deps.ConsolidationThreshold
	if threshold <= 0 {
		threshold = 100
	}
	return &Engine{
		sessions:               deps.Sessions,
		memories:               deps.Memories,
		orchestrator:           deps.Orchestrator,
		profiles:               deps.Profiles,
		convo:                  deps.Conversation,
		sink:                   sink,
		consolidationThreshold: threshold,
	}
}

// Reply is the outcome of one ProcessMessage call.
type Reply struct {
	Text      string
	SessionID string
	Command   bool
}

// ProcessMessage runs the full personalization pipeline for one user turn.
// Special commands are intercepted before any ingestion or generation
// happens, so "reset memories" never becomes a memory itself. A normal turn
// is ingested, relevant memories retrieved, a response generated, the
// assistant turn ingested back, and profile learning applied.
func (e *Engine) ProcessMessage(ctx context.Context, userID, sessionID, text string) (*Reply, error) {
	if reply, name, handled, err := e.handleCommand(ctx, userID, sessionID, text); handled {
		if err != nil {
			return nil, err
		}
		e.sink.Track(analytics.Event{
			UserID:    userID,
			SessionID: sessionID,
			Kind:      analytics.KindCommandHandled,
			Payload:   map[string]any{"command": name},
		})
		return &Reply{Text: reply, SessionID: sessionID, Command: true}, nil
	}

	ingested, err := e.orchestrator.ProcessMessage(ctx, userID, sessionID, "user", text)
	if err != nil {
		return nil, err
	}
	sessionID = ingested.SessionID
	if ingested.Stored != nil {
		e.sink.Track(analytics.Event{
			UserID:    userID,
			SessionID: sessionID,
			Kind:      analytics.KindMemoryStored,
			Payload:   map[string]any{"memoryId": ingested.Stored.ID, "type": string(ingested.Stored.Type)},
		})
	}

	p, err := e.profiles.GetOrCreateProfile(userID)
	if err != nil {
		return nil, err
	}
	memories, err := e.orchestrator.SearchRelevantMemories(ctx, userID, sessionID, text, 5)
	if err != nil {
		log.Printf("[engine] retrieval degraded for user=%s: %v", userID, err)
		memories = nil
	}
	cc, err := e.orchestrator.ConversationContext(sessionID)
	if err != nil {
		return nil, err
	}

	response, err := e.convo.GenerateResponse(ctx, convo.Request{
		Profile:  p,
		Context:  cc,
		Memories: memories,
		Message:  text,
	})
	if err != nil {
		return nil, err
	}

	if _, err := e.orchestrator.ProcessMessage(ctx, userID, sessionID, "assistant", response); err != nil {
		log.Printf("[engine] assistant ingestion degraded for user=%s: %v", userID, err)
	}

	e.learn(ctx, userID, text, response)
	e.sink.Track(analytics.Event{
		UserID:    userID,
		SessionID: sessionID,
		Kind:      analytics.KindMessageProcessed,
		Payload:   map[string]any{"intent": ingested.Analysis.Intent, "topic": ingested.Analysis.Topic},
	})
	return &Reply{Text: response, SessionID: sessionID}, nil
}

func (e *Engine) learn(ctx context.Context, userID, userText, assistantText string) {
	now := time.Now().UTC()
	events := []provider.ConversationEvent{
		{Role: "user", Content: userText, Timestamp: now},
		{Role: "assistant", Content: assistantText, Timestamp: now},
	}
	if _, err := e.profiles.LearnFromConversation(ctx, userID, events); err != nil {
		log.Printf("[engine] profile learning degraded for user=%s: %v", userID, err)
		return
	}
	e.sink.Track(analytics.Event{UserID: userID, Kind: analytics.KindProfileUpdated})
}

// MaintenanceReport summarizes one maintenance pass.
type MaintenanceReport struct {
	Users           int
	DecayUpdated    int
	Archived        int
	Consolidated    int
	ExpiredSessions int
}

// RunMaintenance applies temporal decay and consolidation to every user
// with stored memories, then drops expired sessions. One user failing does
// not stop the pass.
func (e *Engine) RunMaintenance(ctx context.Context) (*MaintenanceReport, error) {
	userIDs, err := e.memories.UserIDs()
	if err != nil {
		return nil, fmt.Errorf("list maintenance users: %w", err)
	}

	report := &MaintenanceReport{Users: len(userIDs)}
	for _, userID := range userIDs {
		updated, err := e.memories.ApplyTemporalDecay(userID)
		if err != nil {
			log.Printf("[engine] decay failed for user=%s: %v", userID, err)
			continue
		}
		report.DecayUpdated += updated

		result, err := e.memories.ConsolidateMemories(ctx, userID, e.consolidationThreshold)
		if err != nil {
			log.Printf("[engine] consolidation failed for user=%s: %v", userID, err)
			continue
		}
		report.Archived += result.Archived
		report.Consolidated += result.Created
	}

	report.ExpiredSessions = e.sessions.CleanupExpiredSessions()
	e.sink.Track(analytics.Event{
		Kind:   analytics.KindMaintenanceRun,
		UserID: "system",
		Payload: map[string]any{
			"users":        report.Users,
			"decayUpdated": report.DecayUpdated,
			"archived":     report.Archived,
			"consolidated": report.Consolidated,
			"expired":      report.ExpiredSessions,
		},
	})
	return report, nil
}

// UserExport bundles everything stored about one user.
type UserExport struct {
	Profile  *profile.UserProfile `json:"profile"`
	Memories []memory.Entry       `json:"memories"`
}

// ExportUserData returns the user's profile and full memory log as JSON.
func (e *Engine) ExportUserData(userID string) ([]byte, error) {
	p, err := e.profiles.GetOrCreateProfile(userID)
	if err != nil {
		return nil, err
	}
	entries, err := e.memories.AllMemories(userID)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(UserExport{Profile: p, Memories: entries}, "", "  ")
}

// ResetUser deletes the user's memories and profile. Returns the number of
// memories removed.
func (e *Engine) ResetUser(userID string) (int, error) {
	deleted, err := e.memories.DeleteUserMemories(userID)
	if err != nil {
		return 0, err
	}
	if err := e.profiles.Delete(userID); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// Flush drains pending analytics. Used at shutdown.
func (e *Engine) Flush() {
	e.sink.Flush()
}
