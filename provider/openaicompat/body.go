package openaicompat

import (
	"encoding/json"
	"fmt"

	maestro "github.com/maestroflow/maestro"
)

// BuildBody converts a maestro ChatRequest and model name into the
// OpenAI-format wire body. Base64 images carried on messages become
// image_url data-URI blocks; req.Images are attached to the last user
// message. Summary messages travel as user messages: the downstream API
// has no summary role, and the content is addressed to the model anyway.
func BuildBody(req maestro.ChatRequest, model string, opts ...Option) ChatRequest {
	var msgs []Message

	lastUser := -1
	for i, m := range req.Messages {
		if m.Role == maestro.RoleUser {
			lastUser = i
		}
	}

	for i, m := range req.Messages {
		switch {
		case m.Role == maestro.RoleAssistant && len(m.ToolCalls) > 0:
			var tcs []ToolCallRequest
			for _, tc := range m.ToolCalls {
				tcs = append(tcs, ToolCallRequest{
					ID:       tc.ID,
					Type:     "function",
					Function: FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
				})
			}
			msg := Message{Role: "assistant", ToolCalls: tcs}
			if m.Content != "" {
				msg.Content = m.Content
			}
			msgs = append(msgs, msg)

		case m.Role == maestro.RoleTool:
			msgs = append(msgs, Message{
				Role:       "tool",
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
				Name:       m.Name,
			})

		default:
			role := string(m.Role)
			if m.Role == maestro.RoleSummary {
				role = "user"
			}
			var images []string
			if m.Base64Image != "" {
				images = append(images, m.Base64Image)
			}
			if i == lastUser {
				images = append(images, req.Images...)
			}
			if len(images) > 0 {
				blocks := []ContentBlock{{Type: "text", Text: m.Content}}
				for _, img := range images {
					blocks = append(blocks, ContentBlock{
						Type:     "image_url",
						ImageURL: &ImageURL{URL: fmt.Sprintf("data:image/png;base64,%s", img)},
					})
				}
				msgs = append(msgs, Message{Role: role, Content: blocks})
			} else {
				msgs = append(msgs, Message{Role: role, Content: m.Content})
			}
		}
	}

	body := ChatRequest{
		Model:    model,
		Messages: msgs,
	}
	body.Temperature = req.Temperature
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		body.Tools = BuildToolDefs(req.Tools)
		if req.ToolChoice != "" {
			body.ToolChoice = string(req.ToolChoice)
		}
	}

	for _, opt := range opts {
		opt(&body)
	}
	return body
}

// BuildToolDefs converts maestro ToolDefinitions to OpenAI tool format.
func BuildToolDefs(tools []maestro.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out = append(out, Tool{
			Type: "function",
			Function: Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
