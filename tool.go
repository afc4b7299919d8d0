package maestro

import (
	"context"
	"encoding/json"
)

// Tool defines an agent capability with one or more tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolDefinition describes one callable function exposed to the model.
// Parameters is a JSON-Schema object (type, properties, required).
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult is the outcome of a tool execution. At most one of Output and
// Error is set; System carries out-of-band notes and Base64Image an inline
// rendering the agent may attach to the tool response message.
type ToolResult struct {
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	System      string `json:"system,omitempty"`
	Base64Image string `json:"base64_image,omitempty"`
}

// String renders the result the way it is shown to the model.
func (r ToolResult) String() string {
	if r.Error != "" {
		return "Error: " + r.Error
	}
	return r.Output
}

// Empty reports whether the result carries no observable output at all.
func (r ToolResult) Empty() bool {
	return r.Output == "" && r.Error == "" && r.System == "" && r.Base64Image == ""
}

// ToolRegistry holds registered tools and dispatches execution by name.
type ToolRegistry struct {
	tools  []Tool
	byName map[string]Tool
}

// NewToolRegistry creates a registry holding the given tools.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{byName: make(map[string]Tool)}
	for _, t := range tools {
		r.Add(t)
	}
	return r
}

// Add registers a tool. Later registrations win on name collision.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
	for _, d := range t.Definitions() {
		r.byName[d.Name] = t
	}
}

// Has reports whether a tool function with the given name is registered.
func (r *ToolRegistry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Get returns the tool providing the named function.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Definitions returns the definitions of all registered tools, in
// registration order.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Execute dispatches a tool call by name. Unknown names yield an
// error-shaped result, not a Go error: the model can recover from them.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t, ok := r.byName[name]
	if !ok {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	return t.Execute(ctx, name, args)
}
