// Package humaninput lets an agent ask the user a question mid-step. The
// question and answer travel as chat envelopes on the bus; the answer is
// read from one line of input.
package humaninput

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	maestro "github.com/maestroflow/maestro"
)

// Tool prompts the user and blocks on one line of input.
type Tool struct {
	in  *bufio.Reader
	bus *maestro.Bus
}

// New creates the tool reading from in (pass nil for stdin).
func New(in io.Reader, bus *maestro.Bus) *Tool {
	if in == nil {
		in = os.Stdin
	}
	return &Tool{in: bufio.NewReader(in), bus: bus}
}

func (t *Tool) Definitions() []maestro.ToolDefinition {
	return []maestro.ToolDefinition{{
		Name: "human_input",
		Description: "Ask the user a question and wait for their answer. Use when a decision, missing detail, " +
			"or confirmation is needed that only the user can provide.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"inquire": {"type": "string", "description": "The question to ask the user."},
				"default": {"type": "string", "description": "Answer to use when the user just presses enter."}
			},
			"required": ["inquire"]
		}`),
	}}
}

func (t *Tool) Execute(_ context.Context, _ string, args json.RawMessage) (maestro.ToolResult, error) {
	var params struct {
		Inquire string `json:"inquire"`
		Default string `json:"default"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return maestro.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.Inquire == "" {
		return maestro.ToolResult{Error: "inquire is required"}, nil
	}

	t.bus.Emit(maestro.EnvChat, params.Inquire, map[string]any{"sender": "assistant"})

	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return maestro.ToolResult{Error: "no input available: " + err.Error()}, nil
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		answer = params.Default
	}
	t.bus.Emit(maestro.EnvChat, answer, map[string]any{"sender": "user"})
	return maestro.ToolResult{Output: answer}, nil
}

// compile-time check
var _ maestro.Tool = (*Tool)(nil)
