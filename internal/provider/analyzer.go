package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stellarlinkco/persona/internal/config"
)

const analyzePrompt = `You are a conversation analyzer. Classify the message against the recent context.

Rules:
1. intent is one of: question/statement/request/greeting/farewell/feedback
2. valence and sentiment are in [-1.0, 1.0]; arousal and emotionalIntensity in [0.0, 1.0]
3. shouldSaveToLongTerm is true only for durable facts, plans, preferences, or personal information
4. isKeyPoint marks decisions, deadlines, and commitments
5. topicChange is true when the message departs from the current topic

Return strict JSON object:
{"intent":"...","topic":"...","emotion":{"label":"...","valence":0.0,"arousal":0.0},"entities":[{"name":"...","type":"...","value":"..."}],"sentiment":0.0,"emotionalIntensity":0.0,"topicChange":false,"emotionChange":false,"shouldSaveToLongTerm":false,"isKeyPoint":false,"hasPersonalInfo":false,"isUnresolved":false,"isFactual":false,"isProcedural":false}

Recent context:
%s

Message:
%s`

type analyzerClient struct {
	chat *chatClient
}

// NewMessageAnalyzer builds the production analyzer on the shared chat
// completion client.
func NewMessageAnalyzer(cfg *config.Config) MessageAnalyzer {
	return &analyzerClient{
		chat: newChatClient(cfg, time.Duration(config.DefaultAnalyzerTimeout)*time.Millisecond),
	}
}

func (c *analyzerClient) Analyze(ctx context.Context, text, recentContext string) (*Analysis, error) {
	if recentContext == "" {
		recentContext = "(none)"
	}
	resp, err := c.chat.completeJSON(ctx, fmt.Sprintf(analyzePrompt, recentContext, text))
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	var out Analysis
	if err := json.Unmarshal([]byte(resp), &out); err != nil {
		return nil, fmt.Errorf("parse analysis result: %w", err)
	}
	return &out, nil
}
