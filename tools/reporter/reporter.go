// Package reporter records the run's final deliverables. The flow hands
// this tool to the model at finalization; whatever the model reports here
// becomes the finalResult payload.
package reporter

import (
	"context"
	"encoding/json"
	"fmt"

	maestro "github.com/maestroflow/maestro"
)

// Deliverable describes one produced artifact.
type Deliverable struct {
	Filename    string `json:"filename"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsMain      bool   `json:"is_main"`
	Type        string `json:"type"`
}

var validTypes = map[string]bool{
	"webpage":  true,
	"chart":    true,
	"markdown": true,
	"pdf":      true,
	"data":     true,
	"other":    true,
}

// Tool validates and stores reported deliverables.
type Tool struct {
	deliverables []Deliverable
}

// New creates an empty reporter.
func New() *Tool { return &Tool{} }

// Deliverables returns everything reported so far.
func (t *Tool) Deliverables() []Deliverable { return t.deliverables }

func (t *Tool) Definitions() []maestro.ToolDefinition {
	return []maestro.ToolDefinition{{
		Name: "result_reporter",
		Description: "Report the final deliverables of the completed task: every file produced for the user, " +
			"with a title and description, marking the main deliverable.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"deliverables": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"filename": {"type": "string"},
							"title": {"type": "string"},
							"description": {"type": "string"},
							"is_main": {"type": "boolean"},
							"type": {"type": "string", "enum": ["webpage", "chart", "markdown", "pdf", "data", "other"]}
						},
						"required": ["filename", "title", "type"]
					}
				}
			},
			"required": ["deliverables"]
		}`),
	}}
}

func (t *Tool) Execute(_ context.Context, _ string, args json.RawMessage) (maestro.ToolResult, error) {
	var params struct {
		Deliverables []Deliverable `json:"deliverables"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return maestro.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if len(params.Deliverables) == 0 {
		return maestro.ToolResult{Error: "at least one deliverable is required"}, nil
	}
	for i, d := range params.Deliverables {
		if d.Filename == "" {
			return maestro.ToolResult{Error: fmt.Sprintf("deliverable %d: filename is required", i)}, nil
		}
		if !validTypes[d.Type] {
			return maestro.ToolResult{Error: fmt.Sprintf("deliverable %d: invalid type '%s'", i, d.Type)}, nil
		}
	}
	t.deliverables = append(t.deliverables, params.Deliverables...)
	return maestro.ToolResult{Output: fmt.Sprintf("%d deliverable(s) recorded", len(params.Deliverables))}, nil
}

// compile-time check
var _ maestro.Tool = (*Tool)(nil)
