package maestro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// AgentState is the lifecycle state of an agent across one step.
type AgentState string

const (
	StateIdle     AgentState = "idle"
	StateRunning  AgentState = "running"
	StateFinished AgentState = "finished"
	StateError    AgentState = "error"
)

// TerminateToolName is the built-in special tool name. Executing it moves
// the owning agent to StateFinished.
const TerminateToolName = "terminate"

const maxTokenLimitNote = "Maximum token limit reached, cannot continue execution: "

// ToolCallAgent runs the think/act loop for one plan step: compose
// messages, ask the LLM with tools attached, dispatch the returned tool
// calls, and decide when to stop. Memory is usually lent by the flow so
// both see the same ordered log.
type ToolCallAgent struct {
	name           string
	gateway        *Gateway
	registry       *ToolRegistry
	memory         *Memory
	bus            *Bus
	logger         *slog.Logger
	tracer         Tracer
	systemPrompt   string
	nextStepPrompt string
	toolChoice     ToolChoice
	specialTools   map[string]bool
	maxSteps       int
	maxObserve     int // 0 = unbounded observation length

	state        AgentState
	currentStep  int
	tokenLimited bool

	// transient per-turn products of think()
	pendingCalls   []ToolCall
	pendingContent string
}

// AgentOption configures a ToolCallAgent.
type AgentOption func(*ToolCallAgent)

// AgentSystemPrompt sets the system message sent on every LLM call.
func AgentSystemPrompt(p string) AgentOption {
	return func(a *ToolCallAgent) { a.systemPrompt = p }
}

// AgentNextStepPrompt sets a user message appended before every think turn.
func AgentNextStepPrompt(p string) AgentOption {
	return func(a *ToolCallAgent) { a.nextStepPrompt = p }
}

// AgentToolChoice sets the tool-choice mode (default: auto).
func AgentToolChoice(c ToolChoice) AgentOption {
	return func(a *ToolCallAgent) { a.toolChoice = c }
}

// AgentMaxSteps bounds think/act iterations per run (default: 30).
func AgentMaxSteps(n int) AgentOption {
	return func(a *ToolCallAgent) { a.maxSteps = n }
}

// AgentMaxObserve truncates recorded tool observations to n characters.
func AgentMaxObserve(n int) AgentOption {
	return func(a *ToolCallAgent) { a.maxObserve = n }
}

// AgentSpecialTools marks extra tool names as run-terminating, in addition
// to the built-in terminate tool.
func AgentSpecialTools(names ...string) AgentOption {
	return func(a *ToolCallAgent) {
		for _, n := range names {
			a.specialTools[n] = true
		}
	}
}

// AgentBus sets the output bus for execute envelopes.
func AgentBus(b *Bus) AgentOption {
	return func(a *ToolCallAgent) { a.bus = b }
}

// AgentLogger sets the structured logger.
func AgentLogger(l *slog.Logger) AgentOption {
	return func(a *ToolCallAgent) { a.logger = l }
}

// AgentTracer sets the tracer that wraps each think/act iteration in a
// span.
func AgentTracer(t Tracer) AgentOption {
	return func(a *ToolCallAgent) { a.tracer = t }
}

// NewToolCallAgent builds an agent over a gateway and a tool registry.
func NewToolCallAgent(name string, g *Gateway, reg *ToolRegistry, opts ...AgentOption) *ToolCallAgent {
	a := &ToolCallAgent{
		name:         name,
		gateway:      g,
		registry:     reg,
		memory:       NewMemory(),
		toolChoice:   ToolChoiceAuto,
		specialTools: map[string]bool{TerminateToolName: true},
		maxSteps:     30,
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = nopLogger
	}
	if a.tracer == nil {
		a.tracer = nopTracer{}
	}
	return a
}

// Name returns the agent name.
func (a *ToolCallAgent) Name() string { return a.name }

// State returns the current lifecycle state.
func (a *ToolCallAgent) State() AgentState { return a.state }

// CurrentStep returns the loop iteration count of the current or last run.
func (a *ToolCallAgent) CurrentStep() int { return a.currentStep }

// Memory returns the agent's message log.
func (a *ToolCallAgent) Memory() *Memory { return a.memory }

// SetMemory replaces the agent's message log, typically to share the flow's.
func (a *ToolCallAgent) SetMemory(m *Memory) { a.memory = m }

// TokenLimited reports whether the last run stopped because the input
// token gate rejected a request.
func (a *ToolCallAgent) TokenLimited() bool { return a.tokenLimited }

// Restore resets loop position and state from a session snapshot.
func (a *ToolCallAgent) Restore(step int, state AgentState) {
	a.currentStep = step
	a.state = state
}

// Run executes the think/act loop until the agent finishes, errors, or
// hits maxSteps. A non-empty prompt is appended to memory first. Returns
// the step observations joined by blank lines.
func (a *ToolCallAgent) Run(ctx context.Context, prompt string) (string, error) {
	if prompt != "" {
		a.memory.Add(UserMessage(prompt))
	}
	a.state = StateRunning
	a.currentStep = 0
	a.tokenLimited = false

	var results []string
	for a.state == StateRunning && a.currentStep < a.maxSteps {
		a.currentStep++
		a.logger.Info("agent step", "agent", a.name, "step", a.currentStep)

		stepCtx, span := a.tracer.Start(ctx, "agent.step",
			StringAttr("agent.name", a.name), IntAttr("agent.step", a.currentStep))
		proceed, err := a.think(stepCtx)
		if err != nil {
			span.Error(err)
			span.End()
			a.state = StateError
			return strings.Join(results, "\n\n"), err
		}
		if !proceed {
			span.End()
			break
		}
		res, err := a.act(stepCtx)
		if err != nil {
			span.Error(err)
			span.End()
			a.state = StateError
			return strings.Join(results, "\n\n"), err
		}
		span.End()
		if res != "" {
			results = append(results, res)
		}
	}
	if a.currentStep >= a.maxSteps && a.state == StateRunning {
		a.state = StateIdle
		results = append(results, fmt.Sprintf("Terminated: Reached max steps (%d)", a.maxSteps))
	}
	return strings.Join(results, "\n\n"), nil
}

// think asks the LLM for the next move and records the assistant turn.
// Returns false when there is nothing to act on.
func (a *ToolCallAgent) think(ctx context.Context) (bool, error) {
	if a.nextStepPrompt != "" {
		a.memory.Add(UserMessage(a.nextStepPrompt))
	}

	var system []Message
	if a.systemPrompt != "" {
		system = []Message{SystemMessage(a.systemPrompt)}
	}

	// Route through the multimodal variant when the previous tool turn
	// produced an image, so the model can see what it just made.
	var resp ChatResponse
	var err error
	if img, ok := a.lastToolImage(); ok {
		resp, err = a.gateway.AskToolWithImages(ctx, a.memory.Messages(), []string{img}, system, a.registry.Definitions(), a.toolChoice)
	} else {
		resp, err = a.gateway.AskTool(ctx, a.memory.Messages(), system, a.registry.Definitions(), a.toolChoice)
	}
	if err != nil {
		var limit *ErrTokenLimit
		if errors.As(err, &limit) {
			a.logger.Warn("token limit reached", "agent", a.name, "error", err)
			a.memory.Add(AssistantMessage(maxTokenLimitNote + err.Error()))
			a.state = StateFinished
			a.tokenLimited = true
			return false, nil
		}
		return false, err
	}

	a.pendingCalls = resp.ToolCalls
	a.pendingContent = resp.Content

	switch a.toolChoice {
	case ToolChoiceNone:
		if len(resp.ToolCalls) > 0 {
			a.logger.Warn("ignoring tool calls in none mode", "agent", a.name, "count", len(resp.ToolCalls))
		}
		a.pendingCalls = nil
		if resp.Content != "" {
			a.memory.Add(AssistantMessage(resp.Content))
			return true, nil
		}
		return false, nil
	case ToolChoiceRequired:
		a.recordAssistantTurn(resp)
		// act() raises when no calls arrived
		return true, nil
	default:
		a.recordAssistantTurn(resp)
		return len(resp.ToolCalls) > 0 || resp.Content != "", nil
	}
}

func (a *ToolCallAgent) recordAssistantTurn(resp ChatResponse) {
	if len(resp.ToolCalls) > 0 {
		a.memory.Add(FromToolCalls(resp.Content, resp.ToolCalls))
	} else {
		a.memory.Add(AssistantMessage(resp.Content))
	}
}

// lastToolImage returns the image of the most recent memory message when
// it is a tool response carrying one.
func (a *ToolCallAgent) lastToolImage() (string, bool) {
	last, ok := a.memory.Last()
	if !ok || last.Role != RoleTool || last.Base64Image == "" {
		return "", false
	}
	return last.Base64Image, true
}

// act dispatches the pending tool calls in order and records each
// observation as a tool message. Special tools finish the run.
func (a *ToolCallAgent) act(ctx context.Context) (string, error) {
	if len(a.pendingCalls) == 0 {
		if a.toolChoice == ToolChoiceRequired {
			return "", errors.New("Tool calls required but none provided")
		}
		return a.pendingContent, nil
	}

	var results []string
	for _, call := range a.pendingCalls {
		name := call.Function.Name
		a.bus.Emit(EnvExecute, name, map[string]any{
			"status": "executing",
			"name":   name,
			"args":   call.Function.Arguments,
		})

		result, image, failed := a.executeCall(ctx, call)
		if a.maxObserve > 0 && len(result) > a.maxObserve {
			result = result[:a.maxObserve]
		}

		observation := fmt.Sprintf("Observed output of cmd `%s` executed:\n%s", name, result)
		if result == "" {
			observation = fmt.Sprintf("Cmd `%s` completed with no output", name)
		}
		toolMsg := ToolMessage(call.ID, name, observation)
		toolMsg.Base64Image = image
		a.memory.Add(toolMsg)

		status := "completed"
		if failed {
			status = "error"
		}
		a.bus.Emit(EnvExecute, name, map[string]any{
			"status": status,
			"name":   name,
			"result": result,
		})
		results = append(results, observation)

		a.handleSpecialTool(name)
		if a.state != StateRunning {
			break
		}
	}
	return strings.Join(results, "\n\n"), nil
}

// executeCall parses arguments and runs one tool call. All failures come
// back as observation strings with failed set; nothing here stops the
// loop.
func (a *ToolCallAgent) executeCall(ctx context.Context, call ToolCall) (result, image string, failed bool) {
	name := call.Function.Name
	if name == "" || !a.registry.Has(name) {
		return fmt.Sprintf("Error: Unknown tool '%s'", name), "", true
	}

	args := json.RawMessage(call.Function.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		a.logger.Warn("malformed tool arguments", "tool", name, "args", call.Function.Arguments)
		return fmt.Sprintf("Error parsing arguments for %s: Invalid JSON format", name), "", true
	}

	res, err := a.registry.Execute(ctx, name, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return "Error: " + toolErr.Message, "", true
		}
		return fmt.Sprintf("Error: %s", err), "", true
	}
	return res.String(), res.Base64Image, res.Error != ""
}

// handleSpecialTool is the single place that flips state when a
// run-terminating tool completes.
func (a *ToolCallAgent) handleSpecialTool(name string) {
	if !a.specialTools[strings.ToLower(name)] {
		return
	}
	a.logger.Info("special tool finished run", "agent", a.name, "tool", name)
	a.state = StateFinished
}

// nopLogger is a logger that discards all output. Used when a Logger
// option is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
