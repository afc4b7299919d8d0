package maestro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// --- Provider mocks (shared across llm_test.go, agent_test.go, flow_test.go) ---

// scriptedProvider replays a fixed sequence of responses. Chat and
// ChatStream consume from the same script; requests are recorded for
// assertions.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []ChatResponse
	errs      []error
	reqs      []ChatRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) next(req ChatRequest) (ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	i := len(p.reqs) - 1
	if i < len(p.errs) && p.errs[i] != nil {
		return ChatResponse{}, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return ChatResponse{}, errors.New("script exhausted")
}

func (p *scriptedProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	return p.next(req)
}

func (p *scriptedProvider) ChatStream(_ context.Context, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error) {
	resp, err := p.next(req)
	if err == nil {
		for _, r := range resp.Content {
			ch <- StreamEvent{Type: EventTextDelta, Content: string(r)}
		}
	}
	close(ch)
	return resp, err
}

func (p *scriptedProvider) requests() []ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reqs
}

// callTool builds a tool call with JSON-encoded arguments.
func callTool(id, name, args string) ToolCall {
	return ToolCall{ID: id, Type: "function", Function: Function{Name: name, Arguments: args}}
}

// --- Tool mocks ---

type echoTool struct{}

func (echoTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "echo", Description: "Echo back the input"}}
}

func (echoTool) Execute(_ context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	var params struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	return ToolResult{Output: params.Text}, nil
}

type errorTool struct{}

func (errorTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "broken", Description: "Always fails"}}
}

func (errorTool) Execute(context.Context, string, json.RawMessage) (ToolResult, error) {
	return ToolResult{}, errors.New("tool broken")
}

type imageTool struct{}

func (imageTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "plot", Description: "Draw a chart"}}
}

func (imageTool) Execute(context.Context, string, json.RawMessage) (ToolResult, error) {
	return ToolResult{Output: "chart drawn", Base64Image: "aW1hZ2U="}, nil
}

// pythonObservation renders the observation content an agent records for a
// python_execute result.
func pythonObservation(success bool, files []string) string {
	body, _ := json.Marshal(map[string]any{
		"observation":  "ran",
		"success":      success,
		"output_files": files,
		"charts":       []any{},
	})
	return fmt.Sprintf("Observed output of cmd `python_execute` executed:\n%s", body)
}

// queryObservation renders the observation content for a query_data result.
func queryObservation(csvName string) string {
	body, _ := json.Marshal(map[string]any{
		"error": false,
		"data":  map[string]any{"csv_filename": csvName, "total_rows": 3},
	})
	return fmt.Sprintf("Observed output of cmd `query_data` executed:\n%s", body)
}

// --- Tracer mock ---

// recordingTracer captures spans in creation order.
type recordingTracer struct {
	spans []*recordedSpan
}

func (r *recordingTracer) Start(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span) {
	s := &recordedSpan{name: name, attrs: attrs}
	r.spans = append(r.spans, s)
	return ctx, s
}

type recordedSpan struct {
	name  string
	attrs []SpanAttr
	err   error
	ended bool
}

func (s *recordedSpan) SetAttr(attrs ...SpanAttr) { s.attrs = append(s.attrs, attrs...) }
func (s *recordedSpan) Event(string, ...SpanAttr) {}
func (s *recordedSpan) Error(err error)           { s.err = err }
func (s *recordedSpan) End()                      { s.ended = true }
