package maestro

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func summarizableHistory() []Message {
	return []Message{
		UserMessage("analyze sales data"),
		FromToolCalls("", []ToolCall{
			callTool("py1", "python_execute", `{"code":"..."}`),
			callTool("web1", "web_content", `{"url":"http://x"}`),
		}),
		ToolMessage("py1", "python_execute", pythonObservation(true, []string{"totals.csv"})),
		ToolMessage("web1", "web_content", "Observed output of cmd `web_content` executed:\nsome page text"),
		FromToolCalls("", []ToolCall{callTool("ds1", "query_data", `{"query":"select *"}`)}),
		ToolMessage("ds1", "query_data", queryObservation("query_result_1.csv")),
		AssistantMessage("intermediate reasoning"),
	}
}

func TestSummarizePreservesArtifactPairs(t *testing.T) {
	p := &scriptedProvider{responses: []ChatResponse{{Content: "the digest"}}}
	g := NewGateway(p, "test-model")
	mem := NewMemory()
	mem.AddAll(summarizableHistory())

	summarizeMemory(context.Background(), g, mem, nopLogger)

	msgs := mem.Messages()
	if len(msgs) != 6 {
		t.Fatalf("expected 6 messages, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "analyze sales data" {
		t.Errorf("original request must come first: %+v", msgs[0])
	}
	// python pair, with the non-artifact call pruned from the assistant turn
	if msgs[1].Role != RoleAssistant || len(msgs[1].ToolCalls) != 1 || msgs[1].ToolCalls[0].ID != "py1" {
		t.Errorf("python assistant turn wrong: %+v", msgs[1])
	}
	if msgs[2].ToolCallID != "py1" {
		t.Errorf("python response wrong: %+v", msgs[2])
	}
	// datasource pair
	if msgs[3].Role != RoleAssistant || msgs[3].ToolCalls[0].ID != "ds1" {
		t.Errorf("datasource assistant turn wrong: %+v", msgs[3])
	}
	if msgs[4].ToolCallID != "ds1" {
		t.Errorf("datasource response wrong: %+v", msgs[4])
	}
	// fresh summary last
	last := msgs[5]
	if last.Role != RoleSummary {
		t.Errorf("expected summary last, got %s", last.Role)
	}
	if !strings.Contains(last.Content, "Summary of previous partial execution") ||
		!strings.Contains(last.Content, "=============\nthe digest\n=============") {
		t.Errorf("summary format wrong:\n%s", last.Content)
	}
}

func TestSummarizeDropsFailedAndArtifactFreeRuns(t *testing.T) {
	p := &scriptedProvider{responses: []ChatResponse{{Content: "digest"}}}
	g := NewGateway(p, "test-model")
	mem := NewMemory()
	mem.AddAll([]Message{
		UserMessage("task"),
		FromToolCalls("", []ToolCall{callTool("py1", "python_execute", `{}`)}),
		ToolMessage("py1", "python_execute", pythonObservation(false, []string{"ignored.csv"})),
		FromToolCalls("", []ToolCall{callTool("py2", "python_execute", `{}`)}),
		ToolMessage("py2", "python_execute", pythonObservation(true, nil)),
	})

	summarizeMemory(context.Background(), g, mem, nopLogger)

	msgs := mem.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected only request + summary, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleSummary {
		t.Errorf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestSummarizeStacksOldSummaries(t *testing.T) {
	p := &scriptedProvider{responses: []ChatResponse{{Content: "newer digest"}}}
	g := NewGateway(p, "test-model")
	mem := NewMemory()
	mem.AddAll([]Message{
		UserMessage("task"),
		SummaryMessage("older digest"),
		AssistantMessage("noise"),
	})

	summarizeMemory(context.Background(), g, mem, nopLogger)

	msgs := mem.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Role != RoleSummary || msgs[1].Content != "older digest" {
		t.Errorf("older summary must survive: %+v", msgs[1])
	}
	if msgs[2].Role != RoleSummary || !strings.Contains(msgs[2].Content, "newer digest") {
		t.Errorf("new summary must come last: %+v", msgs[2])
	}
}

func TestSummarizeKeepsHistoryOnLLMError(t *testing.T) {
	p := &scriptedProvider{errs: []error{errors.New("provider down")}}
	g := NewGateway(p, "test-model")
	mem := NewMemory()
	mem.AddAll(summarizableHistory())
	before := mem.Len()

	summarizeMemory(context.Background(), g, mem, nopLogger)

	if mem.Len() != before {
		t.Errorf("memory must be untouched on error: %d -> %d", before, mem.Len())
	}
}
