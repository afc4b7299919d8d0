package maestro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestReconstructToolHistory(t *testing.T) {
	msgs := []Message{
		UserMessage("analyze the data"),
		FromToolCalls("", []ToolCall{
			callTool("a", "python_execute", `{"code":"1"}`),
			callTool("b", "query_data", `{"query":"select 1"}`),
		}),
		ToolMessage("b", "query_data", "rows"),
		ToolMessage("stray", "ghost", "no origin"),
	}

	out := reconstructToolHistory(msgs)
	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d: %+v", len(out), out)
	}
	if out[0].Role != RoleUser {
		t.Errorf("message 0: expected user, got %s", out[0].Role)
	}
	if out[1].Role != RoleAssistant || len(out[1].ToolCalls) != 2 {
		t.Errorf("message 1: expected assistant with 2 calls")
	}
	// missing response for "a" becomes a synthetic empty tool message
	if out[2].Role != RoleTool || out[2].ToolCallID != "a" || out[2].Content != "" {
		t.Errorf("message 2: expected synthetic tool response for a, got %+v", out[2])
	}
	if out[3].ToolCallID != "b" || out[3].Content != "rows" {
		t.Errorf("message 3: expected real response for b, got %+v", out[3])
	}
}

func TestReconstructKeepsCallOrder(t *testing.T) {
	msgs := []Message{
		FromToolCalls("", []ToolCall{
			callTool("x", "echo", `{}`),
			callTool("y", "echo", `{}`),
		}),
		ToolMessage("y", "echo", "second"),
		ToolMessage("x", "echo", "first"),
	}
	out := reconstructToolHistory(msgs)
	if out[1].ToolCallID != "x" || out[2].ToolCallID != "y" {
		t.Errorf("responses not in call order: %s then %s", out[1].ToolCallID, out[2].ToolCallID)
	}
}

func TestDedupRepeatedPrompt(t *testing.T) {
	msgs := []Message{
		UserMessage("What is the next step?"),
		AssistantMessage("working"),
		UserMessage("  What is the next step?  "),
	}
	out := dedupRepeatedPrompt(msgs)
	if len(out) != 2 {
		t.Fatalf("expected earlier duplicate removed, got %d messages", len(out))
	}
	if out[0].Role != RoleAssistant || out[1].Role != RoleUser {
		t.Errorf("unexpected order after dedup: %s, %s", out[0].Role, out[1].Role)
	}
}

func TestDedupLeavesDistinctPrompts(t *testing.T) {
	msgs := []Message{
		UserMessage("first question"),
		AssistantMessage("answer"),
		UserMessage("second question"),
	}
	if out := dedupRepeatedPrompt(msgs); len(out) != 3 {
		t.Errorf("distinct prompts must survive, got %d messages", len(out))
	}
}

func TestTrimHistoryImages(t *testing.T) {
	msgs := []Message{
		{Role: RoleTool, Content: "old", Base64Image: "aaa"},
		{Role: RoleAssistant, Content: "mid", Base64Image: "bbb"},
		{Role: RoleTool, Content: "new", Base64Image: "ccc"},
	}
	trimHistoryImages(msgs)
	if msgs[0].Base64Image != "" || msgs[1].Base64Image != "" {
		t.Error("older images should be dropped")
	}
	if msgs[2].Base64Image != "ccc" {
		t.Error("last image must survive")
	}
}

func TestTokenGateBlocksBeforeProvider(t *testing.T) {
	p := &scriptedProvider{}
	g := NewGateway(p, "test-model", GatewayMaxInputTokens(1))

	_, err := g.AskTool(context.Background(), []Message{UserMessage("a long request")}, nil, nil, ToolChoiceAuto)
	var limit *ErrTokenLimit
	if !errors.As(err, &limit) {
		t.Fatalf("expected ErrTokenLimit, got %v", err)
	}
	if limit.Max != 1 || limit.Needed <= 1 {
		t.Errorf("unexpected limit fields: %+v", limit)
	}
	if len(p.requests()) != 0 {
		t.Error("provider must not be called when the gate trips")
	}
}

func TestAskStreamsEnvelopes(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(&buf)
	p := &scriptedProvider{responses: []ChatResponse{{Content: "hi"}}}
	g := NewGateway(p, "test-model", GatewayBus(bus))

	out, err := g.Ask(context.Background(), []Message{UserMessage("greet")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "hi" {
		t.Fatalf("expected hi, got %q", out)
	}

	var types []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var env Envelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			t.Fatalf("bad envelope line %q: %v", line, err)
		}
		types = append(types, env.Type)
	}
	// one streaming envelope per chunk, then the complete chat message
	want := []string{EnvStreaming, EnvStreaming, EnvChat}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("envelope %d: expected %s, got %s", i, want[i], types[i])
		}
	}
}

func TestImagesStrippedForNonMultimodalModel(t *testing.T) {
	p := &scriptedProvider{responses: []ChatResponse{{Content: "ok"}}}
	g := NewGateway(p, "text-only")

	msg := UserMessage("look")
	msg.Base64Image = "zzz"
	_, err := g.AskToolWithImages(context.Background(), []Message{msg}, []string{"img"}, nil, nil, ToolChoiceAuto)
	if err != nil {
		t.Fatal(err)
	}

	req := p.requests()[0]
	if len(req.Images) != 0 {
		t.Error("ad-hoc images must be stripped for a text-only model")
	}
	for _, m := range req.Messages {
		if m.Base64Image != "" {
			t.Error("message images must be stripped for a text-only model")
		}
	}
}

func TestImagesKeptForMultimodalModel(t *testing.T) {
	p := &scriptedProvider{responses: []ChatResponse{{Content: "ok"}}}
	g := NewGateway(p, "vision-model", GatewayMultimodal("vision-model"))

	_, err := g.AskToolWithImages(context.Background(), []Message{UserMessage("look")}, []string{"img"}, nil, nil, ToolChoiceAuto)
	if err != nil {
		t.Fatal(err)
	}
	if req := p.requests()[0]; len(req.Images) != 1 || req.Images[0] != "img" {
		t.Errorf("image should ride the request, got %v", req.Images)
	}
}

func TestUsageAccounting(t *testing.T) {
	p := &scriptedProvider{responses: []ChatResponse{
		{Content: "a", Usage: Usage{InputTokens: 10, CompletionTokens: 5}},
		{Content: "b", Usage: Usage{InputTokens: 7, CompletionTokens: 3}},
	}}
	g := NewGateway(p, "test-model")

	ctx := context.Background()
	if _, err := g.AskTool(ctx, []Message{UserMessage("one")}, nil, nil, ToolChoiceAuto); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AskTool(ctx, []Message{UserMessage("two")}, nil, nil, ToolChoiceAuto); err != nil {
		t.Fatal(err)
	}
	u := g.Usage()
	if u.InputTokens != 17 || u.CompletionTokens != 8 {
		t.Errorf("unexpected cumulative usage: %+v", u)
	}
}

func TestInvalidToolChoiceFallsBackToAuto(t *testing.T) {
	p := &scriptedProvider{responses: []ChatResponse{{Content: "ok"}}}
	g := NewGateway(p, "test-model")
	if _, err := g.AskTool(context.Background(), []Message{UserMessage("x")}, nil, nil, ToolChoice("bogus")); err != nil {
		t.Fatal(err)
	}
	if got := p.requests()[0].ToolChoice; got != ToolChoiceAuto {
		t.Errorf("expected auto fallback, got %s", got)
	}
}
