package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/stellarlinkco/persona/internal/config"
)

type generationClient struct {
	chat *chatClient
}

// NewGenerationBackend builds the production generation backend. Unlike the
// JSON-mode providers it passes the caller's sampling options through
// per call.
func NewGenerationBackend(cfg *config.Config) GenerationBackend {
	return &generationClient{
		chat: newChatClient(cfg, time.Duration(config.DefaultGenerationTimeout)*time.Millisecond),
	}
}

func (c *generationClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = config.DefaultTemperature
	}
	content, err := c.chat.complete(ctx, prompt, temperature, opts.MaxTokens, false)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return content, nil
}
