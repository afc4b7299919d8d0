package openaicompat

import (
	"strings"
	"testing"

	maestro "github.com/maestroflow/maestro"
)

func TestBuildBodyRolesAndToolPairs(t *testing.T) {
	req := maestro.ChatRequest{
		Messages: []maestro.Message{
			maestro.SystemMessage("be useful"),
			maestro.UserMessage("run it"),
			maestro.FromToolCalls("thinking", []maestro.ToolCall{{
				ID: "c1", Function: maestro.Function{Name: "echo", Arguments: `{"text":"x"}`},
			}}),
			maestro.ToolMessage("c1", "echo", "x"),
			maestro.SummaryMessage("digest of earlier work"),
		},
		Tools:      []maestro.ToolDefinition{{Name: "echo", Description: "d"}},
		ToolChoice: maestro.ToolChoiceAuto,
		MaxTokens:  100,
	}
	body := BuildBody(req, "gpt-4o")

	if body.Model != "gpt-4o" || body.MaxTokens != 100 {
		t.Errorf("body head: %+v", body)
	}
	roles := make([]string, len(body.Messages))
	for i, m := range body.Messages {
		roles[i] = m.Role
	}
	want := []string{"system", "user", "assistant", "tool", "user"}
	for i := range want {
		if roles[i] != want[i] {
			t.Errorf("message %d role: %q, want %q", i, roles[i], want[i])
		}
	}

	asst := body.Messages[2]
	if len(asst.ToolCalls) != 1 || asst.ToolCalls[0].ID != "c1" || asst.ToolCalls[0].Type != "function" {
		t.Errorf("assistant tool calls: %+v", asst.ToolCalls)
	}
	toolMsg := body.Messages[3]
	if toolMsg.ToolCallID != "c1" || toolMsg.Name != "echo" {
		t.Errorf("tool message: %+v", toolMsg)
	}
	if body.ToolChoice != "auto" {
		t.Errorf("tool choice: %v", body.ToolChoice)
	}
}

func TestBuildBodyAttachesImagesToLastUserMessage(t *testing.T) {
	req := maestro.ChatRequest{
		Messages: []maestro.Message{
			maestro.UserMessage("earlier question"),
			maestro.AssistantMessage("earlier answer"),
			maestro.UserMessage("describe this chart"),
		},
		Images: []string{"AAAA"},
	}
	body := BuildBody(req, "gpt-4o")

	if _, ok := body.Messages[0].Content.(string); !ok {
		t.Error("earlier user message must stay plain text")
	}
	blocks, ok := body.Messages[2].Content.([]ContentBlock)
	if !ok {
		t.Fatalf("last user message should carry blocks, got %T", body.Messages[2].Content)
	}
	if len(blocks) != 2 || blocks[0].Type != "text" || blocks[0].Text != "describe this chart" {
		t.Errorf("text block wrong: %+v", blocks)
	}
	if blocks[1].Type != "image_url" || !strings.HasPrefix(blocks[1].ImageURL.URL, "data:image/png;base64,AAAA") {
		t.Errorf("image block wrong: %+v", blocks[1])
	}
}

func TestBuildBodyMessageLevelImage(t *testing.T) {
	msg := maestro.UserMessage("see attachment")
	msg.Base64Image = "BBBB"
	body := BuildBody(maestro.ChatRequest{Messages: []maestro.Message{msg}}, "gpt-4o")

	blocks, ok := body.Messages[0].Content.([]ContentBlock)
	if !ok || len(blocks) != 2 {
		t.Fatalf("expected text+image blocks, got %+v", body.Messages[0].Content)
	}
}

func TestBuildToolDefsFillsEmptyParameters(t *testing.T) {
	defs := BuildToolDefs([]maestro.ToolDefinition{{Name: "bare", Description: "no params"}})
	if string(defs[0].Function.Parameters) != `{"type":"object","properties":{}}` {
		t.Errorf("empty parameters not defaulted: %s", defs[0].Function.Parameters)
	}
	if defs[0].Type != "function" {
		t.Errorf("tool type: %q", defs[0].Type)
	}
}

func TestBuildBodyRequestOptions(t *testing.T) {
	body := BuildBody(maestro.ChatRequest{Messages: []maestro.Message{maestro.UserMessage("x")}},
		"m", WithTemperature(0.2), WithSeed(7), WithStop("END"))
	if body.Temperature == nil || *body.Temperature != 0.2 {
		t.Errorf("temperature: %v", body.Temperature)
	}
	if body.Seed == nil || *body.Seed != 7 {
		t.Errorf("seed: %v", body.Seed)
	}
	if len(body.Stop) != 1 || body.Stop[0] != "END" {
		t.Errorf("stop: %v", body.Stop)
	}
}
