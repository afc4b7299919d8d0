package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	maestro "github.com/maestroflow/maestro"
)

// StreamSSE reads an SSE stream from body, sends text-delta events to ch,
// and returns the fully accumulated response (content + tool calls +
// usage).
//
// Tool calls stream incrementally: the accumulator is keyed by each
// chunk's index field, since ids and names arrive only in the first delta
// of a call and later deltas carry argument fragments.
//
// The channel is closed when streaming completes. Callers should read
// from ch in a separate goroutine. The context cancels channel sends when
// the consumer is no longer interested.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	data: [DONE]\n
func StreamSSE(ctx context.Context, body io.Reader, ch chan<- maestro.StreamEvent) (maestro.ChatResponse, error) {
	defer close(ch)

	scanner := bufio.NewScanner(body)
	// Increase buffer for large SSE payloads.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var fullContent strings.Builder
	var usage maestro.Usage

	type partialToolCall struct {
		ID   string
		Type string
		Name string
		Args strings.Builder
	}
	var toolCalls []*partialToolCall

	for scanner.Scan() {
		line := scanner.Text()

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		// End-of-stream sentinel.
		if data == "[DONE]" {
			break
		}

		var chunk ChatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}

		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.CompletionTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta == nil {
			continue
		}

		if delta.Content != "" {
			fullContent.WriteString(delta.Content)
			select {
			case ch <- maestro.StreamEvent{Type: maestro.EventTextDelta, Content: delta.Content}:
			case <-ctx.Done():
				return maestro.ChatResponse{}, ctx.Err()
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			for len(toolCalls) <= idx {
				toolCalls = append(toolCalls, &partialToolCall{})
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			if tc.Type != "" {
				toolCalls[idx].Type = tc.Type
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Args.WriteString(tc.Function.Arguments)
				select {
				case ch <- maestro.StreamEvent{
					Type:    maestro.EventToolCallDelta,
					Name:    toolCalls[idx].Name,
					Content: tc.Function.Arguments,
				}:
				case <-ctx.Done():
					return maestro.ChatResponse{}, ctx.Err()
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return maestro.ChatResponse{}, err
	}

	var calls []maestro.ToolCall
	for _, tc := range toolCalls {
		typ := tc.Type
		if typ == "" {
			typ = "function"
		}
		calls = append(calls, maestro.ToolCall{
			ID:   tc.ID,
			Type: typ,
			Function: maestro.Function{
				Name:      tc.Name,
				Arguments: tc.Args.String(),
			},
		})
	}

	return maestro.ChatResponse{
		Content:   fullContent.String(),
		ToolCalls: calls,
		Usage:     usage,
	}, nil
}
