// Package provider defines the external capability contracts the
// personalization pipeline consumes (embedding, message analysis, profile
// inference, response generation) together with OpenAI-compatible HTTP
// implementations. Orchestrators receive these as constructor-injected
// interfaces so tests can substitute fakes.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stellarlinkco/persona/internal/config"
)

// EmbeddingProvider turns raw text into retrieval artifacts.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ExtractEntities(ctx context.Context, text string) ([]Entity, error)
	ExtractKeywords(ctx context.Context, text string) ([]string, error)
	Summarize(ctx context.Context, text string) (string, error)
}

// MessageAnalyzer classifies a single inbound message against recent
// conversation context.
type MessageAnalyzer interface {
	Analyze(ctx context.Context, text, recentContext string) (*Analysis, error)
}

// InferenceEngine derives profile updates from a batch of conversation
// events plus a digest of the current profile.
type InferenceEngine interface {
	AnalyzeEvents(ctx context.Context, events []ConversationEvent, profileDigest string) (*Insights, error)
}

// GenerationBackend produces the user-visible response text.
type GenerationBackend interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

type chatClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func newChatClient(cfg *config.Config, timeout time.Duration) *chatClient {
	return &chatClient{
		apiKey:     cfg.MemoryProviderAPIKey(),
		baseURL:    cfg.MemoryProviderBaseURL(),
		model:      cfg.Memory.Model,
		maxTokens:  cfg.Memory.MaxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// completeJSON sends a chat completion expecting a strict JSON object reply.
func (c *chatClient) completeJSON(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, 0.3, c.maxTokens, true)
}

func (c *chatClient) complete(ctx context.Context, prompt string, temperature float64, maxTokens int, jsonObject bool) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("missing provider api key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	if baseURL == "" {
		return "", fmt.Errorf("missing provider base url")
	}
	if c.model == "" {
		return "", fmt.Errorf("missing provider model")
	}
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{{
			"role":    "user",
			"content": prompt,
		}},
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}
	if jsonObject {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("provider http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty content in response")
	}
	return content, nil
}
