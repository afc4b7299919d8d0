package openaicompat

import (
	maestro "github.com/maestroflow/maestro"
)

// ParseResponse converts an OpenAI-format ChatResponse to a maestro
// ChatResponse. It extracts content, tool calls, and usage from choices[0].
func ParseResponse(resp ChatResponse) (maestro.ChatResponse, error) {
	var out maestro.ChatResponse

	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
	}

	if resp.Usage != nil {
		out.Usage = maestro.Usage{
			InputTokens:      resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
	}
	return out, nil
}

// ParseToolCalls converts OpenAI tool call requests to maestro ToolCalls.
// Arguments stay a raw string: the agent parses them lazily at dispatch,
// so malformed arguments surface as an observation there, not as a
// transport failure here.
func ParseToolCalls(tcs []ToolCallRequest) []maestro.ToolCall {
	if len(tcs) == 0 {
		return nil
	}
	out := make([]maestro.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		typ := tc.Type
		if typ == "" {
			typ = "function"
		}
		out = append(out, maestro.ToolCall{
			ID:   tc.ID,
			Type: typ,
			Function: maestro.Function{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}
