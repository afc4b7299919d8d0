// Package pythonexec runs model-written Python code as a subprocess inside
// the workspace, with a hard timeout and a declared-artifact contract: the
// model names the files and charts a run is expected to produce, and the
// observation reports which of them actually appeared.
package pythonexec

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	maestro "github.com/maestroflow/maestro"
)

const defaultTimeout = 150 * time.Second

// Chart declares one expected chart artifact: a rendered image plus the
// config that produced it.
type Chart struct {
	Name       string `json:"name"`
	ImageFile  string `json:"image_file"`
	ConfigFile string `json:"config_file"`
}

// Tool executes Python code via a python3 subprocess.
type Tool struct {
	workspace string
	python    string
	timeout   time.Duration
	bus       *maestro.Bus
}

// Option configures the tool.
type Option func(*Tool)

// WithPython overrides the interpreter binary (default "python3").
func WithPython(bin string) Option {
	return func(t *Tool) { t.python = bin }
}

// WithTimeout overrides the default 150s run timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Tool) { t.timeout = d }
}

// WithBus streams subprocess output lines to the bus as they appear.
func WithBus(b *maestro.Bus) Option {
	return func(t *Tool) { t.bus = b }
}

// New creates the tool. Code runs with workspace as working directory and
// all declared artifacts resolve relative to it.
func New(workspace string, opts ...Option) *Tool {
	t := &Tool{workspace: workspace, python: "python3", timeout: defaultTimeout}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Definitions() []maestro.ToolDefinition {
	return []maestro.ToolDefinition{{
		Name: "python_execute",
		Description: "Execute Python code in the workspace and observe its output. " +
			"Declare every file and chart the code is expected to produce so they can be verified and referenced by later steps. " +
			"Print anything you need to observe: only stdout/stderr is captured.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"code": {"type": "string", "description": "The Python code to execute."},
				"output_files": {
					"type": "array", "items": {"type": "string"},
					"description": "Workspace-relative paths of files the code will produce."
				},
				"charts": {
					"type": "array",
					"description": "Charts the code will produce.",
					"items": {
						"type": "object",
						"properties": {
							"name": {"type": "string"},
							"image_file": {"type": "string"},
							"config_file": {"type": "string"}
						},
						"required": ["name", "image_file"]
					}
				},
				"timeout": {"type": "integer", "description": "Timeout in seconds (default 150)."}
			},
			"required": ["code"]
		}`),
	}}
}

// observation is the JSON body recorded for the model.
type observation struct {
	Observation string   `json:"observation"`
	Success     bool     `json:"success"`
	OutputFiles []string `json:"output_files"`
	Charts      []Chart  `json:"charts"`
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (maestro.ToolResult, error) {
	var params struct {
		Code        string   `json:"code"`
		OutputFiles []string `json:"output_files"`
		Charts      []Chart  `json:"charts"`
		Timeout     int      `json:"timeout"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return maestro.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.Code == "" {
		return maestro.ToolResult{Error: "code is required"}, nil
	}

	timeout := t.timeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
	}

	output, runErr := t.run(ctx, params.Code, timeout)

	obs := observation{Observation: output, Success: runErr == nil}
	if runErr != nil {
		obs.Observation = strings.TrimSpace(output + "\n" + runErr.Error())
	}

	// Only report artifacts that actually materialized.
	for _, f := range params.OutputFiles {
		if t.exists(f) {
			obs.OutputFiles = append(obs.OutputFiles, f)
		}
	}
	var image string
	for _, c := range params.Charts {
		if !t.exists(c.ImageFile) {
			continue
		}
		obs.Charts = append(obs.Charts, c)
		if image == "" {
			if data, err := os.ReadFile(filepath.Join(t.workspace, c.ImageFile)); err == nil {
				image = base64.StdEncoding.EncodeToString(data)
			}
		}
	}

	body, err := json.Marshal(obs)
	if err != nil {
		return maestro.ToolResult{Error: "encode observation: " + err.Error()}, nil
	}
	return maestro.ToolResult{Output: string(body), Base64Image: image}, nil
}

// run writes the code to a temp script and executes it, streaming output
// lines to the bus and returning the combined output.
func (t *Tool) run(ctx context.Context, code string, timeout time.Duration) (string, error) {
	if err := os.MkdirAll(t.workspace, 0o755); err != nil {
		return "", err
	}
	script, err := os.CreateTemp(t.workspace, "exec_*.py")
	if err != nil {
		return "", err
	}
	defer os.Remove(script.Name())
	if _, err := script.WriteString(code); err != nil {
		script.Close()
		return "", err
	}
	script.Close()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.python, script.Name())
	cmd.Dir = t.workspace

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return "", err
	}

	var out strings.Builder
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		out.WriteString(line)
		out.WriteByte('\n')
		t.bus.Emit(maestro.EnvPythonStreaming, line, nil)
	}

	err = cmd.Wait()
	if runCtx.Err() == context.DeadlineExceeded {
		return out.String(), fmt.Errorf("execution timed out after %s", timeout)
	}
	if err != nil {
		return out.String(), fmt.Errorf("python exited with error: %w", err)
	}
	return out.String(), nil
}

func (t *Tool) exists(rel string) bool {
	if rel == "" || filepath.IsAbs(rel) || strings.Contains(rel, "..") {
		return false
	}
	_, err := os.Stat(filepath.Join(t.workspace, rel))
	return err == nil
}

// compile-time check
var _ maestro.Tool = (*Tool)(nil)
