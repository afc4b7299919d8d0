package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	maestro "github.com/maestroflow/maestro"
)

// Provider implements maestro.Provider for any OpenAI-compatible API.
// It uses the shared helpers in this package (BuildBody, StreamSSE,
// ParseResponse) for body building, streaming, and response parsing.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	opts    []Option
}

// NewProvider creates an OpenAI-compatible chat provider.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "http://localhost:11434/v1"). The /chat/completions path is appended
// automatically.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name (default "openai", configurable via WithName).
func (p *Provider) Name() string { return p.name }

// Chat sends a non-streaming chat request and returns the complete
// response. When req.Tools is non-empty, the response may contain
// ToolCalls.
func (p *Provider) Chat(ctx context.Context, req maestro.ChatRequest) (maestro.ChatResponse, error) {
	body := BuildBody(req, p.model, p.opts...)

	resp, err := p.sendHTTP(ctx, body)
	if err != nil {
		return maestro.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return maestro.ChatResponse{}, p.httpErr(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return maestro.ChatResponse{}, &maestro.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return ParseResponse(chatResp)
}

// ChatStream streams delta events into ch, then returns the final
// accumulated response. The channel is closed when streaming completes
// (via StreamSSE) or on error.
func (p *Provider) ChatStream(ctx context.Context, req maestro.ChatRequest, ch chan<- maestro.StreamEvent) (maestro.ChatResponse, error) {
	body := BuildBody(req, p.model, p.opts...)
	body.Stream = true
	body.StreamOptions = &StreamOptions{IncludeUsage: true}

	resp, err := p.sendHTTP(ctx, body)
	if err != nil {
		close(ch)
		return maestro.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		close(ch)
		return maestro.ChatResponse{}, p.httpErr(resp)
	}

	// StreamSSE closes ch when done.
	return StreamSSE(ctx, resp.Body, ch)
}

// sendHTTP marshals the request body and sends it to the chat completions endpoint.
func (p *Provider) sendHTTP(ctx context.Context, body ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &maestro.ErrLLM{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &maestro.ErrLLM{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &maestro.ErrLLM{Provider: p.name, Message: fmt.Sprintf("send request: %v", err)}
	}
	return resp, nil
}

// httpErr reads the response body and returns an ErrHTTP for retry
// middleware. Parses the Retry-After header when present (429/503).
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &maestro.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: maestro.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// Compile-time interface check.
var _ maestro.Provider = (*Provider)(nil)
