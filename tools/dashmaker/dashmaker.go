// Package dashmaker renders markdown into a self-contained HTML page in
// the workspace, the deliverable format for report steps.
package dashmaker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	maestro "github.com/maestroflow/maestro"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 960px; margin: 2rem auto; padding: 0 1rem; color: #1f2328; line-height: 1.6; }
h1, h2, h3 { border-bottom: 1px solid #d1d9e0; padding-bottom: .3em; }
table { border-collapse: collapse; width: 100%%; margin: 1em 0; }
th, td { border: 1px solid #d1d9e0; padding: 6px 13px; text-align: left; }
th { background: #f6f8fa; }
img { max-width: 100%%; }
code { background: #f6f8fa; padding: .2em .4em; border-radius: 6px; }
pre code { display: block; padding: 1em; overflow-x: auto; }
</style>
</head>
<body>
%s
</body>
</html>
`

// Tool renders markdown dashboards.
type Tool struct {
	workspace string
	md        goldmark.Markdown
}

// New creates the tool writing pages under workspace.
func New(workspace string) *Tool {
	return &Tool{
		workspace: workspace,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
		),
	}
}

func (t *Tool) Definitions() []maestro.ToolDefinition {
	return []maestro.ToolDefinition{{
		Name: "dash_maker",
		Description: "Render markdown into a standalone HTML page saved in the workspace. " +
			"Use for the final report or dashboard deliverable; referenced images must already exist in the workspace.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "Page title."},
				"markdown": {"type": "string", "description": "Markdown source of the page."},
				"filename": {"type": "string", "description": "Workspace-relative output filename, e.g. report.html."}
			},
			"required": ["title", "markdown", "filename"]
		}`),
	}}
}

func (t *Tool) Execute(_ context.Context, _ string, args json.RawMessage) (maestro.ToolResult, error) {
	var params struct {
		Title    string `json:"title"`
		Markdown string `json:"markdown"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return maestro.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.Markdown == "" || params.Filename == "" {
		return maestro.ToolResult{Error: "markdown and filename are required"}, nil
	}
	if filepath.IsAbs(params.Filename) || strings.Contains(params.Filename, "..") {
		return maestro.ToolResult{Error: "invalid filename: " + params.Filename}, nil
	}

	var body bytes.Buffer
	if err := t.md.Convert([]byte(params.Markdown), &body); err != nil {
		return maestro.ToolResult{Error: "render markdown: " + err.Error()}, nil
	}
	page := fmt.Sprintf(pageTemplate, html.EscapeString(params.Title), body.String())

	if err := os.MkdirAll(t.workspace, 0o755); err != nil {
		return maestro.ToolResult{Error: "create workspace: " + err.Error()}, nil
	}
	out := filepath.Join(t.workspace, params.Filename)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return maestro.ToolResult{Error: "create directories: " + err.Error()}, nil
	}
	if err := os.WriteFile(out, []byte(page), 0o644); err != nil {
		return maestro.ToolResult{Error: "write page: " + err.Error()}, nil
	}

	result, _ := json.Marshal(map[string]any{"filename": params.Filename, "title": params.Title})
	return maestro.ToolResult{Output: string(result)}, nil
}

// compile-time check
var _ maestro.Tool = (*Tool)(nil)
