// Package webcontent fetches a URL and extracts the readable article text,
// dropping navigation, ads, and boilerplate.
package webcontent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"
	maestro "github.com/maestroflow/maestro"
)

const maxContentChars = 8000

// Tool fetches and extracts web pages.
type Tool struct {
	client *http.Client
}

// New creates the tool with a 30s fetch timeout.
func New() *Tool {
	return &Tool{client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *Tool) Definitions() []maestro.ToolDefinition {
	return []maestro.ToolDefinition{{
		Name:        "web_content",
		Description: "Fetch a web page and return its readable text content (title plus extracted article body).",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "description": "The http(s) URL to fetch."}
			},
			"required": ["url"]
		}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (maestro.ToolResult, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return maestro.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	parsed, err := url.Parse(params.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return maestro.ToolResult{Error: "invalid url: " + params.URL}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, params.URL, nil)
	if err != nil {
		return maestro.ToolResult{Error: "build request: " + err.Error()}, nil
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return maestro.ToolResult{Error: "fetch failed: " + err.Error()}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return maestro.ToolResult{Error: fmt.Sprintf("fetch failed: status %d", resp.StatusCode)}, nil
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return maestro.ToolResult{Error: "extract content: " + err.Error()}, nil
	}

	content := article.TextContent
	if len(content) > maxContentChars {
		content = content[:maxContentChars] + "\n... (truncated)"
	}
	return maestro.ToolResult{Output: fmt.Sprintf("Title: %s\n\n%s", article.Title, content)}, nil
}

// compile-time check
var _ maestro.Tool = (*Tool)(nil)
