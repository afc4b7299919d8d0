package maestro

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Gateway shapes conversations for the provider and accounts for tokens.
// It owns message normalization (tool-call/response pairing, image history
// trimming, repeated-prompt dedup), the input token gate, and usage
// accounting. One in-flight call per conversation is assumed; independent
// sessions may use separate gateways in parallel.
type Gateway struct {
	provider Provider
	counter  *TokenCounter
	bus      *Bus
	logger   *slog.Logger

	model       string
	multimodal  map[string]bool
	maxInput    int // 0 = no limit
	maxTokens   int
	temperature *float64

	mu               sync.Mutex
	inputTokens      int
	completionTokens int
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// GatewayMaxInputTokens caps the estimated input size per request. Requests
// over the cap fail with *ErrTokenLimit before reaching the provider.
func GatewayMaxInputTokens(n int) GatewayOption {
	return func(g *Gateway) { g.maxInput = n }
}

// GatewayMaxTokens sets the completion token cap sent to the provider.
func GatewayMaxTokens(n int) GatewayOption {
	return func(g *Gateway) { g.maxTokens = n }
}

// GatewayTemperature sets the sampling temperature sent to the provider.
func GatewayTemperature(t float64) GatewayOption {
	return func(g *Gateway) { g.temperature = &t }
}

// GatewayMultimodal declares which models accept image content. Images are
// silently stripped when the active model is not in the set.
func GatewayMultimodal(models ...string) GatewayOption {
	return func(g *Gateway) {
		for _, m := range models {
			g.multimodal[m] = true
		}
	}
}

// GatewayBus sets the output bus for streaming/chat envelopes.
func GatewayBus(b *Bus) GatewayOption {
	return func(g *Gateway) { g.bus = b }
}

// GatewayLogger sets the structured logger.
func GatewayLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway builds a gateway over p for the given model. Compose retry
// behavior on the provider itself:
//
//	g := maestro.NewGateway(maestro.WithRetry(p), "gpt-4o")
func NewGateway(p Provider, model string, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		provider:   p,
		counter:    NewTokenCounter(model),
		model:      model,
		multimodal: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = nopLogger
	}
	return g
}

// Usage returns the accumulated token usage across all calls.
func (g *Gateway) Usage() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Usage{InputTokens: g.inputTokens, CompletionTokens: g.completionTokens}
}

// Model returns the configured model name.
func (g *Gateway) Model() string { return g.model }

func (g *Gateway) account(input, completion int) {
	g.mu.Lock()
	g.inputTokens += input
	g.completionTokens += completion
	total := g.inputTokens + g.completionTokens
	g.mu.Unlock()
	g.logger.Info("token usage",
		"input", input,
		"completion", completion,
		"cumulative", total)
}

// Ask sends a plain text conversation and streams the answer back,
// emitting a streaming envelope per chunk and one chat envelope with the
// full text when the stream ends.
func (g *Gateway) Ask(ctx context.Context, msgs []Message, system []Message) (string, error) {
	return g.ask(ctx, msgs, system, nil)
}

// AskWithImages is Ask with base64 images attached to the last user message.
func (g *Gateway) AskWithImages(ctx context.Context, msgs []Message, images []string, system []Message) (string, error) {
	return g.ask(ctx, msgs, system, images)
}

func (g *Gateway) ask(ctx context.Context, msgs, system []Message, images []string) (string, error) {
	prepared, images, err := g.prepare(msgs, system, images)
	if err != nil {
		return "", err
	}
	req := ChatRequest{
		Messages:    prepared,
		Images:      images,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	ch := make(chan StreamEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			if ev.Type == EventTextDelta && ev.Content != "" {
				g.bus.Emit(EnvStreaming, ev.Content, nil)
			}
		}
	}()
	resp, err := g.provider.ChatStream(ctx, req, ch)
	<-done
	if err != nil {
		return "", err
	}
	g.bus.Emit(EnvChat, resp.Content, map[string]any{"sender": "assistant"})

	input := resp.Usage.InputTokens
	if input == 0 {
		input = g.counter.CountMessages(prepared)
	}
	completion := resp.Usage.CompletionTokens
	if completion == 0 {
		completion = g.counter.CountText(resp.Content)
	}
	g.account(input, completion)
	return resp.Content, nil
}

// AskTool sends a tool-augmented conversation and returns the assistant
// turn, which may carry tool calls.
func (g *Gateway) AskTool(ctx context.Context, msgs, system []Message, tools []ToolDefinition, choice ToolChoice) (ChatResponse, error) {
	return g.askTool(ctx, msgs, system, nil, tools, choice)
}

// AskToolWithImages is AskTool with base64 images attached to the last
// user message.
func (g *Gateway) AskToolWithImages(ctx context.Context, msgs []Message, images []string, system []Message, tools []ToolDefinition, choice ToolChoice) (ChatResponse, error) {
	return g.askTool(ctx, msgs, system, images, tools, choice)
}

func (g *Gateway) askTool(ctx context.Context, msgs, system []Message, images []string, tools []ToolDefinition, choice ToolChoice) (ChatResponse, error) {
	if !ValidToolChoice(choice) {
		choice = ToolChoiceAuto
	}
	prepared, images, err := g.prepare(msgs, system, images)
	if err != nil {
		return ChatResponse{}, err
	}
	req := ChatRequest{
		Messages:    prepared,
		Images:      images,
		Tools:       tools,
		ToolChoice:  choice,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
	resp, err := g.provider.Chat(ctx, req)
	if err != nil {
		return ChatResponse{}, err
	}
	input := resp.Usage.InputTokens
	if input == 0 {
		input = g.counter.CountMessages(prepared)
	}
	g.account(input, resp.Usage.CompletionTokens)
	return resp, nil
}

// prepare runs the full normalization pipeline: system prepend, image
// stripping for non-multimodal models, tool-call/response reconstruction,
// history image trim, repeated-prompt dedup, and the input token gate.
func (g *Gateway) prepare(msgs, system []Message, images []string) ([]Message, []string, error) {
	out := make([]Message, 0, len(system)+len(msgs))
	out = append(out, system...)
	out = append(out, msgs...)

	if !g.multimodal[g.model] {
		images = nil
		for i := range out {
			out[i].Base64Image = ""
		}
	}

	out = reconstructToolHistory(out)
	trimHistoryImages(out)
	out = dedupRepeatedPrompt(out)

	if g.maxInput > 0 {
		need := g.counter.CountMessages(out)
		if len(images) > 0 {
			need += len(images) * g.counter.CountImage(DetailHigh, 0, 0)
		}
		g.mu.Lock()
		current := g.inputTokens
		g.mu.Unlock()
		if need > g.maxInput {
			return nil, nil, &ErrTokenLimit{Current: current, Needed: need, Max: g.maxInput}
		}
	}
	return out, images, nil
}

// reconstructToolHistory repairs tool-call/response pairing in a partial
// history. For each assistant message with tool calls, the matching tool
// responses are placed immediately after it in call order; a missing
// response becomes a synthetic empty tool message. Tool messages whose id
// has no assistant origin are dropped.
func reconstructToolHistory(msgs []Message) []Message {
	byID := make(map[string]Message)
	for _, m := range msgs {
		if m.Role == RoleTool && m.ToolCallID != "" {
			if _, seen := byID[m.ToolCallID]; !seen {
				byID[m.ToolCallID] = m
			}
		}
	}

	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case m.Role == RoleTool:
			// re-emitted next to its assistant origin, or dropped
		case m.Role == RoleAssistant && len(m.ToolCalls) > 0:
			out = append(out, m)
			for _, tc := range m.ToolCalls {
				if resp, ok := byID[tc.ID]; ok {
					out = append(out, resp)
				} else {
					out = append(out, ToolMessage(tc.ID, tc.Function.Name, ""))
				}
			}
		default:
			out = append(out, m)
		}
	}
	return out
}

// trimHistoryImages drops image payloads from every message except the
// last, keeping long histories within provider limits.
func trimHistoryImages(msgs []Message) {
	for i := range msgs {
		if i < len(msgs)-1 {
			msgs[i].Base64Image = ""
		}
	}
}

// dedupRepeatedPrompt removes earlier copies of the final user prompt.
// Loop-driven prompts (a fixed "next step" instruction reinjected every
// turn) would otherwise pile up in the history. Comparison is NFC-normalized.
func dedupRepeatedPrompt(msgs []Message) []Message {
	if len(msgs) == 0 {
		return msgs
	}
	last := msgs[len(msgs)-1]
	if last.Role != RoleUser || last.Content == "" {
		return msgs
	}
	target := norm.NFC.String(strings.TrimSpace(last.Content))
	out := msgs[:0]
	for i, m := range msgs {
		if i < len(msgs)-1 && m.Role == RoleUser && len(m.ToolCalls) == 0 &&
			norm.NFC.String(strings.TrimSpace(m.Content)) == target {
			continue
		}
		out = append(out, m)
	}
	return out
}
