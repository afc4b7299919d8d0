package maestro

import (
	"context"
	"encoding/json"
	"fmt"
)

// TerminateTool is the built-in special tool: the model calls it to end
// the current step. The agent's special-tool handling flips its state to
// finished when the call completes.
type TerminateTool struct{}

// NewTerminateTool creates the terminate tool.
func NewTerminateTool() *TerminateTool { return &TerminateTool{} }

func (t *TerminateTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{
		Name: TerminateToolName,
		Description: "Terminate the interaction when the request is met OR if the assistant cannot proceed further with the task. " +
			"When you have finished all the tasks, call this tool to end the work.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"status": {
					"type": "string",
					"enum": ["success", "failure"],
					"description": "The finish status of the interaction."
				}
			},
			"required": ["status"]
		}`),
	}}
}

func (t *TerminateTool) Execute(_ context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	var params struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	return ToolResult{Output: fmt.Sprintf("The interaction has been completed with status: %s", params.Status)}, nil
}

// compile-time check
var _ Tool = (*TerminateTool)(nil)
