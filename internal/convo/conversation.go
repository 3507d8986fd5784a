// Package convo turns a profile, session context, and retrieved memories
// into a personalized response: it picks the tone, assembles the system
// prompt, and drives the generation backend.
package convo

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellarlinkco/persona/internal/fault"
	"github.com/stellarlinkco/persona/internal/memory"
	"github.com/stellarlinkco/persona/internal/profile"
	"github.com/stellarlinkco/persona/internal/provider"
	"github.com/stellarlinkco/persona/internal/session"
)

// Response length caps by relationship stage, in tokens.
const (
	maxLengthNew          = 150
	maxLengthCollaborator = 500
	maxLengthDefault      = 300
)

const empathyValenceThreshold = -0.3

// Constraints shape one response: the tone to strike, supporting qualities,
// and a length cap.
type Constraints struct {
	Tone      string
	Qualities []string
	MaxLength int
}

// Request carries everything response generation needs.
type Request struct {
	Profile  *profile.UserProfile
	Context  *memory.ConversationContext
	Memories []memory.SearchResult
	Message  string
}

type Orchestrator struct {
	backend provider.GenerationBackend
}

func NewOrchestrator(backend provider.GenerationBackend) *Orchestrator {
	return &Orchestrator{backend: backend}
}

// DetermineResponseConstraints derives tone and length from the relationship
// stage and the user's style preferences. A clearly negative emotional state
// overrides everything with an empathetic, supportive tone.
func DetermineResponseConstraints(p *profile.UserProfile, emotion *session.EmotionSample) Constraints {
	c := Constraints{MaxLength: maxLengthDefault}

	switch p.Metadata.RelationshipLevel {
	case profile.RelationshipNew:
		c.Tone = "friendly and professional"
		c.MaxLength = maxLengthNew
	case profile.RelationshipFamiliar:
		c.Tone = "warm"
	case profile.RelationshipFriend:
		c.Tone = "casual and warm"
	case profile.RelationshipCollaborator:
		if p.Preferences.Style["formality"] > 0.7 {
			c.Tone = "professional"
		} else {
			c.Tone = "casual"
		}
		c.MaxLength = maxLengthCollaborator
	default:
		c.Tone = "friendly and professional"
		c.MaxLength = maxLengthNew
	}

	if p.Preferences.Style["humor"] > 0.6 {
		c.Qualities = append(c.Qualities, "playful")
	}

	if emotion != nil && emotion.Valence < empathyValenceThreshold {
		c.Tone = "empathetic"
		c.Qualities = []string{"supportive"}
	}
	return c
}

// BuildSystemPrompt renders the persona instructions for one turn.
func BuildSystemPrompt(p *profile.UserProfile, cc *memory.ConversationContext, c Constraints) string {
	var b strings.Builder

	b.WriteString("You are a personal assistant that adapts to the user.\n")
	switch p.Metadata.RelationshipLevel {
	case profile.RelationshipNew:
		b.WriteString("You are just getting to know this user. Be welcoming and do not assume shared context.\n")
	case profile.RelationshipFamiliar:
		b.WriteString("You have talked with this user before. Build on what you already know about them.\n")
	case profile.RelationshipFriend:
		b.WriteString("You know this user well. Speak naturally, reference shared history when relevant.\n")
	case profile.RelationshipCollaborator:
		b.WriteString("You are a trusted collaborator of this user. Be direct and skip pleasantries.\n")
	}

	tone := c.Tone
	if len(c.Qualities) > 0 {
		tone += ", " + strings.Join(c.Qualities, ", ")
	}
	fmt.Fprintf(&b, "Tone: %s. Keep the response under %d tokens.\n", tone, c.MaxLength)

	if formality := p.Preferences.Style["formality"]; formality > 0.7 {
		b.WriteString("Maintain a formal register.\n")
	} else if formality < 0.3 {
		b.WriteString("Keep the register relaxed and informal.\n")
	}

	if p.Personality["openness"] > 0.7 {
		b.WriteString("The user enjoys exploring ideas; tangents and analogies are welcome.\n")
	}
	if p.Personality["conscientiousness"] > 0.7 {
		b.WriteString("The user values precision; be structured and concrete.\n")
	}
	if p.Personality["extraversion"] > 0.7 {
		b.WriteString("The user is energized by engagement; match their energy.\n")
	}

	if name, ok := p.Identity.ConfirmedInfo["name"]; ok {
		fmt.Fprintf(&b, "The user's name is %s.\n", name)
	}
	if len(p.Preferences.TopicInterests) > 0 {
		top := p.Preferences.TopicInterests
		if len(top) > 3 {
			top = top[:3]
		}
		names := make([]string, len(top))
		for i, t := range top {
			names[i] = t.Topic
		}
		fmt.Fprintf(&b, "Known interests: %s.\n", strings.Join(names, ", "))
	}
	if cc != nil && cc.CurrentTopic != nil {
		fmt.Fprintf(&b, "Current topic: %s.\n", cc.CurrentTopic.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

// GenerateResponse assembles the full prompt (system instructions, relevant
// memories, recent turns, the current message) and calls the backend.
func (o *Orchestrator) GenerateResponse(ctx context.Context, req Request) (string, error) {
	var emotion *session.EmotionSample
	if req.Context != nil {
		emotion = req.Context.LatestEmotion
	}
	constraints := DetermineResponseConstraints(req.Profile, emotion)

	var b strings.Builder
	b.WriteString(BuildSystemPrompt(req.Profile, req.Context, constraints))
	b.WriteString("\n\n")

	if len(req.Memories) > 0 {
		b.WriteString("Relevant memories:\n")
		for _, m := range req.Memories {
			summary := m.Entry.Content.Summary
			if strings.TrimSpace(summary) == "" {
				summary = m.Entry.Content.Raw
			}
			fmt.Fprintf(&b, "- %s\n", summary)
		}
		b.WriteString("\n")
	}

	if req.Context != nil && len(req.Context.RecentMessages) > 0 {
		b.WriteString("Recent conversation:\n")
		recent := req.Context.RecentMessages
		if len(recent) > 5 {
			recent = recent[len(recent)-5:]
		}
		for _, m := range recent {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User: %s\nAssistant:", req.Message)

	reply, err := o.backend.Generate(ctx, b.String(), provider.GenerateOptions{
		MaxTokens: constraints.MaxLength,
	})
	if err != nil {
		return "", fault.Wrap(fault.GenerationFailure, "convo.generate", err).WithUser(req.Profile.UserID)
	}
	return strings.TrimSpace(reply), nil
}
