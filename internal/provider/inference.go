package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stellarlinkco/persona/internal/config"
)

const inferencePrompt = `You are a profile inference engine. Derive durable user insights from the conversation events.

Rules:
1. confirmedInfo holds only facts the user stated outright (e.g. "my name is ...")
2. inferredInfo carries a confidence in [0.0, 1.0] and a short source note
3. preferences and personalityTraits are scalars in [0.0, 1.0]; include only traits the events actually support
4. topicInterests score and sentiment reflect this batch only
5. sentiment is the overall batch sentiment in [-1.0, 1.0]

Return strict JSON object:
{"confirmedInfo":{},"inferredInfo":[{"field":"...","value":"...","confidence":0.0,"source":"..."}],"preferences":{},"personalityTraits":{},"topicInterests":[{"topic":"...","score":0.0,"sentiment":0.0}],"sentiment":0.0}

Current profile:
%s

Events:
%s`

type inferenceClient struct {
	chat *chatClient
}

// NewInferenceEngine builds the production inference engine on the shared
// chat completion client.
func NewInferenceEngine(cfg *config.Config) InferenceEngine {
	return &inferenceClient{
		chat: newChatClient(cfg, time.Duration(config.DefaultAnalyzerTimeout)*time.Millisecond),
	}
}

func (c *inferenceClient) AnalyzeEvents(ctx context.Context, events []ConversationEvent, profileDigest string) (*Insights, error) {
	if len(events) == 0 {
		return &Insights{}, nil
	}
	if strings.TrimSpace(profileDigest) == "" {
		profileDigest = "(empty profile)"
	}

	var sb strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&sb, "[%s] %s\n", ev.Role, ev.Content)
	}

	resp, err := c.chat.completeJSON(ctx, fmt.Sprintf(inferencePrompt, profileDigest, strings.TrimSpace(sb.String())))
	if err != nil {
		return nil, fmt.Errorf("analyze events: %w", err)
	}
	var out Insights
	if err := json.Unmarshal([]byte(resp), &out); err != nil {
		return nil, fmt.Errorf("parse insights result: %w", err)
	}
	return &out, nil
}
