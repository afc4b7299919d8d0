package maestro

import "context"

// ChatRequest is the provider-agnostic request shape. Messages are assumed
// to be already normalized (tool responses paired, images trimmed).
type ChatRequest struct {
	Messages []Message
	// Images are raw base64 payloads attached to the last user message at
	// the wire layer, in addition to any Base64Image carried on messages.
	Images      []string
	Tools       []ToolDefinition
	ToolChoice  ToolChoice
	Temperature *float64
	MaxTokens   int
}

// ChatResponse is a complete assistant turn with usage stats.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Provider abstracts the LLM backend.
type Provider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// ChatStream streams events into ch, then returns the final assembled
	// response. Partial tool calls arriving as deltas are reassembled by
	// the provider; the returned response carries the complete calls.
	// ch is closed before returning.
	ChatStream(ctx context.Context, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai").
	Name() string
}
