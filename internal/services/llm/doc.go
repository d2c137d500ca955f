// Package llm is a resty-based chat-completions client for OpenAI-compatible
// vision models (OpenRouter by default).
//
// The inference coordinator uses it to turn an admitted frame plus its
// detected labels into a one-sentence description. Requests embed the JPEG as
// a base64 data URI.
//
// Requests are retried on HTTP 408, 429 and 5xx, on empty completions and on
// network timeouts, with exponential backoff honouring Retry-After.
// Cancellation aborts retries at once, so the caller's description timeout
// always wins.
package llm
