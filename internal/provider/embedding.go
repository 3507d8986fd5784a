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

const (
	entitiesPrompt = `Extract named entities from the text.
Return strict JSON object: {"entities":[{"name":"...","type":"person|place|organization|project|topic|other","value":"..."}]}

Text:
%s`

	keywordsPrompt = `Extract up to 8 retrieval keywords from the text.
Return strict JSON object: {"keywords":["..."]}

Text:
%s`

	summarizePrompt = `Summarize the text in one or two sentences, keeping concrete facts.
Return strict JSON object: {"summary":"..."}

Text:
%s`
)

type embeddingClient struct {
	chat        *chatClient
	model       string
	expectedDim int
	httpClient  *http.Client
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewEmbeddingProvider builds the production EmbeddingProvider against an
// OpenAI-compatible embeddings endpoint plus chat completions for the text
// extraction helpers.
func NewEmbeddingProvider(cfg *config.Config) EmbeddingProvider {
	timeout := time.Duration(cfg.Memory.Embedding.TimeoutMs) * time.Millisecond
	return &embeddingClient{
		chat:        newChatClient(cfg, time.Duration(config.DefaultAnalyzerTimeout)*time.Millisecond),
		model:       cfg.Memory.Embedding.Model,
		expectedDim: cfg.Memory.Embedding.Dimension,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *embeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("embed: empty text")
	}
	if c.model == "" {
		return nil, fmt.Errorf("embed: missing embedding model")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(c.chat.baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("embed: missing embedding base url")
	}

	payload, err := json.Marshal(embeddingRequest{Model: c.model, Input: trimmed})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embed: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.chat.apiKey) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.chat.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embed: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed: empty embedding data")
	}
	vector := decoded.Data[0].Embedding
	if c.expectedDim > 0 && len(vector) != c.expectedDim {
		return nil, fmt.Errorf("embed: dimension mismatch: got %d want %d", len(vector), c.expectedDim)
	}

	copied := make([]float32, len(vector))
	copy(copied, vector)
	return copied, nil
}

func (c *embeddingClient) ExtractEntities(ctx context.Context, text string) ([]Entity, error) {
	resp, err := c.chat.completeJSON(ctx, fmt.Sprintf(entitiesPrompt, text))
	if err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}
	var out struct {
		Entities []Entity `json:"entities"`
	}
	if err := json.Unmarshal([]byte(resp), &out); err != nil {
		return nil, fmt.Errorf("parse entities result: %w", err)
	}
	return out.Entities, nil
}

func (c *embeddingClient) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	resp, err := c.chat.completeJSON(ctx, fmt.Sprintf(keywordsPrompt, text))
	if err != nil {
		return nil, fmt.Errorf("extract keywords: %w", err)
	}
	var out struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(resp), &out); err != nil {
		return nil, fmt.Errorf("parse keywords result: %w", err)
	}
	return out.Keywords, nil
}

func (c *embeddingClient) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := c.chat.completeJSON(ctx, fmt.Sprintf(summarizePrompt, text))
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(resp), &out); err != nil {
		return "", fmt.Errorf("parse summary result: %w", err)
	}
	return strings.TrimSpace(out.Summary), nil
}
