// Package filesaver writes model-produced text content into the workspace.
package filesaver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	maestro "github.com/maestroflow/maestro"
)

// Tool writes files under a workspace root.
type Tool struct {
	workspace string
}

// New creates a file saver restricted to workspace.
func New(workspace string) *Tool {
	return &Tool{workspace: workspace}
}

func (t *Tool) Definitions() []maestro.ToolDefinition {
	return []maestro.ToolDefinition{{
		Name: "file_saver",
		Description: "Save text content to a file in the workspace. Creates parent directories if needed. " +
			"Use mode \"a\" to append instead of overwrite.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {"type": "string", "description": "The content to save."},
				"file_path": {"type": "string", "description": "Workspace-relative path of the file."},
				"mode": {"type": "string", "enum": ["w", "a"], "description": "Write mode: w = overwrite (default), a = append."}
			},
			"required": ["content", "file_path"]
		}`),
	}}
}

func (t *Tool) Execute(_ context.Context, _ string, args json.RawMessage) (maestro.ToolResult, error) {
	var params struct {
		Content  string `json:"content"`
		FilePath string `json:"file_path"`
		Mode     string `json:"mode"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return maestro.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.FilePath == "" {
		return maestro.ToolResult{Error: "file_path is required"}, nil
	}

	resolved, err := t.resolve(params.FilePath)
	if err != nil {
		return maestro.ToolResult{Error: err.Error()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return maestro.ToolResult{Error: "create directories: " + err.Error()}, nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if params.Mode == "a" {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return maestro.ToolResult{Error: "open file: " + err.Error()}, nil
	}
	defer f.Close()
	if _, err := f.WriteString(params.Content); err != nil {
		return maestro.ToolResult{Error: "write file: " + err.Error()}, nil
	}
	return maestro.ToolResult{Output: fmt.Sprintf("Content saved to %s", params.FilePath)}, nil
}

func (t *Tool) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", path)
	}
	resolved := filepath.Join(t.workspace, path)
	if !strings.HasPrefix(resolved, filepath.Clean(t.workspace)+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}

// compile-time check
var _ maestro.Tool = (*Tool)(nil)
