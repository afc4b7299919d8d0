package openaicompat

import (
	"context"
	"strings"
	"testing"

	maestro "github.com/maestroflow/maestro"
)

func runStream(t *testing.T, sse string) (maestro.ChatResponse, []maestro.StreamEvent) {
	t.Helper()
	ch := make(chan maestro.StreamEvent, 64)
	resp, err := StreamSSE(context.Background(), strings.NewReader(sse), ch)
	if err != nil {
		t.Fatal(err)
	}
	var events []maestro.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return resp, events
}

func TestStreamSSEAccumulatesText(t *testing.T) {
	sse := `data: {"choices":[{"delta":{"content":"Hel"}}]}
data: {"choices":[{"delta":{"content":"lo"}}]}
data: {"choices":[{"delta":{}}],"usage":null}
data: {"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":2}}
data: [DONE]
`
	resp, events := runStream(t, sse)
	if resp.Content != "Hello" {
		t.Errorf("content: %q", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.CompletionTokens != 2 {
		t.Errorf("usage: %+v", resp.Usage)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 text deltas, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Type != maestro.EventTextDelta {
			t.Errorf("unexpected event type %s", ev.Type)
		}
	}
}

func TestStreamSSEReassemblesToolCallsByIndex(t *testing.T) {
	// ids and names arrive only in the first delta of each call; later
	// deltas carry argument fragments keyed by index.
	sse := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"query_data","arguments":""}}]}}]}
data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"query\":"}}]}}]}
data: {"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"file_saver","arguments":"{}"}}]}}]}
data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"select 1\"}"}}]}}]}
data: [DONE]
`
	resp, events := runStream(t, sse)
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(resp.ToolCalls))
	}
	a := resp.ToolCalls[0]
	if a.ID != "call_a" || a.Function.Name != "query_data" {
		t.Errorf("call 0: %+v", a)
	}
	if a.Function.Arguments != `{"query":"select 1"}` {
		t.Errorf("call 0 arguments not reassembled: %q", a.Function.Arguments)
	}
	b := resp.ToolCalls[1]
	if b.ID != "call_b" || b.Function.Name != "file_saver" || b.Function.Arguments != "{}" {
		t.Errorf("call 1: %+v", b)
	}

	var toolDeltas int
	for _, ev := range events {
		if ev.Type == maestro.EventToolCallDelta {
			toolDeltas++
		}
	}
	if toolDeltas != 3 {
		t.Errorf("expected 3 tool-call deltas, got %d", toolDeltas)
	}
}

func TestStreamSSEDefaultsToolCallType(t *testing.T) {
	sse := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c","function":{"name":"echo","arguments":"{}"}}]}}]}
data: [DONE]
`
	resp, _ := runStream(t, sse)
	if resp.ToolCalls[0].Type != "function" {
		t.Errorf("type should default to function, got %q", resp.ToolCalls[0].Type)
	}
}

func TestStreamSSESkipsMalformedChunks(t *testing.T) {
	sse := `data: {not json at all
data: {"choices":[{"delta":{"content":"ok"}}]}
: comment line
data: [DONE]
`
	resp, _ := runStream(t, sse)
	if resp.Content != "ok" {
		t.Errorf("content: %q", resp.Content)
	}
}
