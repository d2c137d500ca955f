package inference

import (
	"context"
	"strings"

	"vigil/internal/config"
	"vigil/internal/services/llm"
)

// Describer produces a one-sentence description of a frame.
type Describer interface {
	Describe(ctx context.Context, jpeg []byte, labels []string) (string, error)
}

// LLMDescriber adapts the chat-completions client.
type LLMDescriber struct {
	client *llm.Client
	prompt string
}

// NewLLMDescriber returns nil when descriptions are disabled.
func NewLLMDescriber(cfg config.Describer, opts ...llm.Option) *LLMDescriber {
	if !cfg.Enabled {
		return nil
	}
	client := llm.NewClient(llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, opts...)
	return &LLMDescriber{client: client, prompt: cfg.Prompt}
}

// Describe implements Describer.
func (d *LLMDescriber) Describe(ctx context.Context, jpeg []byte, labels []string) (string, error) {
	return d.client.DescribeImage(ctx, d.prompt, jpeg, strings.Join(labels, ", "))
}

// HealthCheck verifies the API key and model.
func (d *LLMDescriber) HealthCheck(ctx context.Context) error {
	return d.client.HealthCheck(ctx)
}
