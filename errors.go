package maestro

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrLLM reports a provider-level failure that is not a plain HTTP error
// (marshalling, malformed responses, transport setup).
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP reports a non-200 provider response. RetryAfter is the parsed
// Retry-After header when the server supplied one (429/503).
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// Auth reports whether the error is an authentication failure. Auth
// failures are fatal: retrying with the same credentials cannot succeed.
func (e *ErrHTTP) Auth() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// ParseRetryAfter parses a Retry-After header value (delta-seconds form).
// Returns 0 for empty or unparseable input.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// ErrTokenLimit signals that a request would exceed the configured input
// token budget. It must never be retried; the agent handles it by noting
// the limit and finishing gracefully.
type ErrTokenLimit struct {
	Current int
	Needed  int
	Max     int
}

func (e *ErrTokenLimit) Error() string {
	return fmt.Sprintf("request may exceed input token limit (current: %d, needed: %d, max: %d)",
		e.Current, e.Needed, e.Max)
}

// ToolError reports a validation or execution failure inside a tool. It is
// an observation-level error: the agent records it as the tool's output and
// keeps running.
type ToolError struct {
	Message string
}

func (e *ToolError) Error() string {
	return e.Message
}

// NewToolError builds a ToolError with a formatted message.
func NewToolError(format string, args ...any) *ToolError {
	return &ToolError{Message: fmt.Sprintf(format, args...)}
}
