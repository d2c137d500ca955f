package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

// Content is a plain string or a []contentPart for multimodal requests.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
		// Some providers answer with the streaming schema even when stream=false.
		Delta        completionMessage `json:"delta"`
		Text         string            `json:"text"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type completionMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

// content returns the first non-empty completion text, the first finish
// reason and the first refusal.
func (r chatResponse) content() (text, finish, refusal string) {
	for _, choice := range r.Choices {
		if finish == "" {
			finish = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal)
		}
		if text == "" {
			text = firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text)
		}
	}
	return text, finish, refusal
}

type statusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.Code, strings.TrimSpace(e.Body))
}

type emptyContentError struct {
	Op           string
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("%s: empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.Op, e.FinishReason, e.Refusal, e.Snippet)
}

// post performs one request. A non-nil body is returned whenever the server
// answered, for error snippets.
func (c *Client) post(ctx context.Context, req chatRequest) (chatResponse, []byte, error) {
	var reply chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.cfg.BaseURL)
	if err != nil {
		return reply, nil, fmt.Errorf("llm request: %w", err)
	}
	body := resp.Body()
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return reply, body, &statusError{
			Code:       resp.StatusCode(),
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After")),
		}
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return reply, body, fmt.Errorf("llm request: decode response: %w", err)
	}
	if reply.Error != nil {
		return reply, body, fmt.Errorf("llm request: api error: %s", strings.TrimSpace(reply.Error.Message))
	}
	return reply, body, nil
}

// complete sends req until a non-empty completion arrives or the retry policy
// gives up.
func (c *Client) complete(ctx context.Context, req chatRequest, op string) (string, error) {
	attempts := max(c.retryMaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		reply, body, err := c.post(ctx, req)
		if err == nil {
			text, finish, refusal := reply.content()
			if text != "" {
				return text, nil
			}
			if len(reply.Choices) == 0 {
				err = fmt.Errorf("%s: empty choices", op)
			} else {
				err = &emptyContentError{Op: op, FinishReason: finish, Refusal: refusal, Snippet: snippet(string(body))}
			}
		}
		lastErr = err
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			if attempt < attempts {
				return "", err
			}
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(max(seconds, 0)) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}

// decodeJSONReply decodes a JSON-mode reply, tolerating code fences and
// surrounding prose.
func decodeJSONReply(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	if err := json.Unmarshal([]byte(trimmed), target); err == nil {
		return nil
	}
	body := stripFence(trimmed)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}
	if err := json.Unmarshal([]byte(body), target); err != nil {
		return fmt.Errorf("%w (payload snippet: %s)", err, snippet(trimmed))
	}
	return nil
}

func stripFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	body := strings.TrimLeft(content[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func collapseWhitespace(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

func snippet(content string) string {
	clean := collapseWhitespace(content)
	if clean == "" {
		return "<empty>"
	}
	if runes := []rune(clean); len(runes) > 160 {
		clean = string(runes[:160]) + "..."
	}
	return clean
}
