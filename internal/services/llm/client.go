package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout    = 15 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 3
	defaultMaxTokens      = 120
)

// Config captures the runtime settings required to talk to the model.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Client wraps an OpenAI-compatible chat completion endpoint that accepts
// image inputs.
type Client struct {
	cfg  Config
	http *resty.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithRetryMaxAttempts overrides the default attempt count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retryMaxAttempts = attempts }
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper replaces the retry sleep, letting tests record delays.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.sleeper = sleeper }
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Referer:        strings.TrimSpace(cfg.Referer),
			Title:          strings.TrimSpace(cfg.Title),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultBaseURL
	}
	c.http = resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if c.cfg.APIKey != "" {
		c.http.SetAuthToken(c.cfg.APIKey)
	}
	if c.cfg.Referer != "" {
		c.http.SetHeader("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		c.http.SetHeader("X-Title", c.cfg.Title)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DescribeImage asks the model for a short natural-language description of a
// JPEG image. hint is appended to the prompt (typically the detected labels).
func (c *Client) DescribeImage(ctx context.Context, prompt string, jpeg []byte, hint string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	switch {
	case prompt == "":
		return "", errors.New("llm describe: prompt required")
	case len(jpeg) == 0:
		return "", errors.New("llm describe: image required")
	case c.cfg.APIKey == "":
		return "", errors.New("llm describe: api key required")
	}
	text := prompt
	if hint = strings.TrimSpace(hint); hint != "" {
		text += "\nObjects detected: " + hint
	}
	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: text},
				{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)}},
			},
		}},
		Temperature: 0.2,
		MaxTokens:   defaultMaxTokens,
	}
	content, err := c.complete(ctx, req, "llm describe")
	if err != nil {
		return "", err
	}
	return collapseWhitespace(content), nil
}

// HealthCheck issues a tiny JSON-mode completion to verify the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("llm health: api key required")
	}
	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You must respond with JSON only."},
			{Role: "user", Content: `Respond with {"ok":true}`},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	content, err := c.complete(ctx, req, "llm health")
	if err != nil {
		return err
	}
	var reply struct {
		OK bool `json:"ok"`
	}
	if err := decodeJSONReply(content, &reply); err != nil {
		return errors.New("llm health: parse payload: " + err.Error())
	}
	if !reply.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}
