package maestro

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// AnswerbotType is the lightweight step kind. When every step of a plan is
// this kind, the flow skips the finalization pass: the answering agent
// already produced the deliverable.
const AnswerbotType = "answerbot"

// AgentSnapshot is the durable state of one agent.
type AgentSnapshot struct {
	CurrentStep int        `json:"current_step"`
	State       AgentState `json:"state"`
	Messages    []Message  `json:"messages"`
}

// Snapshot is the durable state of a whole session: plan registry, flow
// cursor, flow memory, and per-agent state.
type Snapshot struct {
	ActivePlanID     string                   `json:"active_plan_id"`
	CurrentStepIndex *int                     `json:"current_step_index"`
	Plans            map[string]*Plan         `json:"plans"`
	Memory           []Message                `json:"memory"`
	Agents           map[string]AgentSnapshot `json:"agents"`
}

// SnapshotStore persists session snapshots.
type SnapshotStore interface {
	Has(id string) bool
	Save(id string, snap Snapshot) error
	Load(id string) (Snapshot, error)
}

// stepInfo describes the step the flow is about to execute.
type stepInfo struct {
	index        int
	sectionTitle string
	text         string
	status       string
	stepType     string
}

// PlanningFlow is the main controller: it creates or resumes a plan,
// selects an executor per step, drives the step loop with optional
// history summarization, and finalizes deliverables.
type PlanningFlow struct {
	gateway      *Gateway
	planning     *PlanningTool
	agents       map[string]*ToolCallAgent
	executorKeys []string
	planningKey  string
	memory       *Memory
	bus          *Bus
	store        SnapshotStore
	sessionID    string
	autoSummary  bool
	reporter     Tool
	logger       *slog.Logger
}

// FlowOption configures a PlanningFlow.
type FlowOption func(*PlanningFlow)

// FlowExecutors sets the ordered executor preference list. Without it,
// every agent key is an executor in map-iteration order.
func FlowExecutors(keys ...string) FlowOption {
	return func(f *PlanningFlow) { f.executorKeys = keys }
}

// FlowPlanningAgent names the agent used for initial plan creation.
func FlowPlanningAgent(key string) FlowOption {
	return func(f *PlanningFlow) { f.planningKey = key }
}

// FlowSession enables durable snapshots for the given session id.
func FlowSession(store SnapshotStore, id string) FlowOption {
	return func(f *PlanningFlow) {
		f.store = store
		f.sessionID = id
	}
}

// FlowAutoSummary enables history summarization before each non-first step.
func FlowAutoSummary(on bool) FlowOption {
	return func(f *PlanningFlow) { f.autoSummary = on }
}

// FlowReporter sets the deliverables-reporting tool used at finalization.
func FlowReporter(t Tool) FlowOption {
	return func(f *PlanningFlow) { f.reporter = t }
}

// FlowBus sets the output bus.
func FlowBus(b *Bus) FlowOption {
	return func(f *PlanningFlow) { f.bus = b }
}

// FlowLogger sets the structured logger.
func FlowLogger(l *slog.Logger) FlowOption {
	return func(f *PlanningFlow) { f.logger = l }
}

// NewPlanningFlow builds a flow over a gateway, a plan registry, and a set
// of named agents.
func NewPlanningFlow(g *Gateway, planning *PlanningTool, agents map[string]*ToolCallAgent, opts ...FlowOption) *PlanningFlow {
	f := &PlanningFlow{
		gateway:  g,
		planning: planning,
		agents:   agents,
		memory:   NewMemory(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = nopLogger
	}
	if len(f.executorKeys) == 0 {
		for k := range agents {
			f.executorKeys = append(f.executorKeys, k)
		}
	}
	return f
}

// Memory returns the flow-level message log.
func (f *PlanningFlow) Memory() *Memory { return f.memory }

// SessionID returns the configured session id, or "".
func (f *PlanningFlow) SessionID() string { return f.sessionID }

// Execute runs the plan lifecycle for one user input: resolve or create a
// plan, loop over its steps, and finalize. The returned string is the
// concatenation of step results. A snapshot is written on every exit path.
func (f *PlanningFlow) Execute(ctx context.Context, input string) (result string, err error) {
	defer func() {
		f.snapshot()
		if err != nil {
			result = fmt.Sprintf("Execution failed: %s", err)
		}
	}()

	if err := f.resolvePlan(ctx, input); err != nil {
		return "", err
	}
	f.snapshot()

	var results []string
	first := true
	for {
		if ctx.Err() != nil {
			return strings.Join(results, "\n\n"), ctx.Err()
		}

		info, ok := f.currentStepInfo()
		if !ok {
			if !f.allAnswerbot() {
				fin, ferr := f.finalize(ctx)
				if ferr != nil {
					f.logger.Error("finalization failed", "error", ferr)
				} else if fin != "" {
					results = append(results, fin)
				}
			}
			break
		}

		plan, _ := f.planning.Get("")
		f.bus.Emit(EnvLiveStatus,
			fmt.Sprintf("Executing plan step %d/%d", info.index+1, plan.TotalSteps()), nil)

		executor := f.executorFor(info.stepType)
		if executor == nil {
			return strings.Join(results, "\n\n"), fmt.Errorf("no executor available for step type %q", info.stepType)
		}

		if f.autoSummary && !first {
			summarizeMemory(ctx, f.gateway, f.memory, f.logger)
		}
		first = false

		executor.SetMemory(f.memory)
		prompt := stepPrompt(plan.Render(), info.index, info.text)
		stepResult, stepErr := executor.Run(ctx, prompt)
		if stepErr != nil {
			f.logger.Error("step execution failed",
				"step", info.index, "agent", executor.Name(), "error", stepErr)
			f.memory.Add(AssistantMessage(
				fmt.Sprintf("Error executing step %d: %s", info.index, stepErr)))
		} else {
			if stepResult != "" {
				results = append(results, stepResult)
			}
			// A token-limited run stopped mid-step; leave the step open so
			// a resumed session picks it up again.
			if executor.TokenLimited() {
				f.logger.Warn("step interrupted by token limit", "step", info.index)
			} else {
				f.markStepCompleted(info.index)
			}
		}

		if executor.State() == StateFinished {
			break
		}
		f.snapshot()
	}

	f.bus.Emit(EnvLiveStatus, "Plan completed", nil)
	return strings.Join(results, "\n\n"), nil
}

// resolvePlan decides between resuming the active plan and creating a new
// one. A resume appends the new input to flow memory; everything else goes
// through the planning agent, with a single-step fallback plan when the
// planner produced nothing.
func (f *PlanningFlow) resolvePlan(ctx context.Context, input string) error {
	if active := f.planning.ActivePlanID(); active != "" {
		if _, ok := f.currentStepPeek(); ok {
			f.logger.Info("resuming active plan", "plan_id", active)
			if input != "" {
				f.memory.Add(UserMessage(input))
			}
			return nil
		}
	}
	return f.createInitialPlan(ctx, input)
}

// createInitialPlan delegates plan creation to the planning agent. The plan
// registry, not the planner conversation, is the source of truth: whatever
// plan id the tool holds afterwards becomes the active plan. When the
// planner produced no plan at all, a single-step answerbot plan wrapping
// the raw input is synthesized.
func (f *PlanningFlow) createInitialPlan(ctx context.Context, input string) error {
	if input != "" {
		f.memory.Add(UserMessage(input))
	}

	if planner, ok := f.agents[f.planningKey]; ok {
		planner.SetMemory(f.memory)
		prompt := fmt.Sprintf("Create a reasonable plan with clear steps to accomplish the task: %s", input)
		if _, err := planner.Run(ctx, prompt); err != nil {
			f.logger.Error("planning agent failed", "error", err)
		}
	}

	if f.planning.ActivePlanID() != "" {
		return nil
	}

	f.logger.Warn("planner produced no plan, using fallback")
	fallbackID := fmt.Sprintf("plan_%d", time.Now().Unix())
	_, err := f.planning.Create(fallbackID, input, []Section{{
		Title: input,
		Steps: []string{input},
		Types: []string{AnswerbotType},
	}})
	return err
}

// currentStepPeek returns the first non-completed step without mutating
// plan state.
func (f *PlanningFlow) currentStepPeek() (stepInfo, bool) {
	plan, err := f.planning.Get("")
	if err != nil {
		return stepInfo{}, false
	}
	for i := 0; i < plan.TotalSteps(); i++ {
		status := StepNotStarted
		if i < len(plan.StepStatuses) {
			status = plan.StepStatuses[i]
		}
		if status == StepCompleted {
			continue
		}
		section, text, typ, _ := plan.StepAt(i)
		return stepInfo{index: i, sectionTitle: section, text: text, status: status, stepType: typ}, true
	}
	return stepInfo{}, false
}

// currentStepInfo selects the next step to run and marks it in_progress.
func (f *PlanningFlow) currentStepInfo() (stepInfo, bool) {
	info, ok := f.currentStepPeek()
	if !ok {
		return stepInfo{}, false
	}
	if info.status != StepInProgress {
		if _, err := f.planning.MarkStep("", info.index, StepInProgress, ""); err != nil {
			f.logger.Warn("could not mark step in progress", "step", info.index, "error", err)
		}
	}
	return info, true
}

func (f *PlanningFlow) markStepCompleted(index int) {
	if _, err := f.planning.MarkStep("", index, StepCompleted, ""); err != nil {
		f.logger.Warn("could not mark step completed", "step", index, "error", err)
	}
}

// executorFor routes a step type to an agent: exact key match first, then
// the configured executor order, then the primary agent.
func (f *PlanningFlow) executorFor(stepType string) *ToolCallAgent {
	if a, ok := f.agents[stepType]; ok {
		return a
	}
	for _, k := range f.executorKeys {
		if a, ok := f.agents[k]; ok {
			return a
		}
	}
	return nil
}

// allAnswerbot reports whether every step of the active plan is the
// lightweight answering kind.
func (f *PlanningFlow) allAnswerbot() bool {
	plan, err := f.planning.Get("")
	if err != nil {
		return false
	}
	for _, sec := range plan.Sections {
		for _, t := range sec.Types {
			if t != AnswerbotType {
				return false
			}
		}
	}
	return true
}

const finalizePrompt = "All plan steps are complete. Review the work above and " +
	"report the final deliverables using the result_reporter tool, then provide " +
	"a closing summary for the user."

// finalize asks the LLM to report deliverables through the reporter tool
// and emits the finalResult envelope when it does.
func (f *PlanningFlow) finalize(ctx context.Context) (string, error) {
	if f.reporter == nil {
		return "Plan execution completed.", nil
	}
	msgs := append(append([]Message{}, f.memory.Messages()...), UserMessage(finalizePrompt))
	resp, err := f.gateway.AskTool(ctx, msgs, nil, f.reporter.Definitions(), ToolChoiceAuto)
	if err != nil {
		return "", err
	}
	for _, tc := range resp.ToolCalls {
		if tc.Function.Name != "result_reporter" {
			continue
		}
		var args struct {
			Deliverables []map[string]any `json:"deliverables"`
		}
		if jerr := json.Unmarshal([]byte(tc.Function.Arguments), &args); jerr != nil || len(args.Deliverables) == 0 {
			continue
		}
		if _, xerr := f.reporter.Execute(ctx, tc.Function.Name, json.RawMessage(tc.Function.Arguments)); xerr != nil {
			f.logger.Warn("reporter execution failed", "error", xerr)
		}
		f.bus.Emit(EnvFinalResult, resp.Content, map[string]any{"deliverables": args.Deliverables})
		if resp.Content != "" {
			return resp.Content, nil
		}
		return "Plan execution completed.", nil
	}
	if resp.Content != "" {
		return resp.Content, nil
	}
	return "Plan execution completed.", nil
}

// stepPrompt renders the fixed step prompt handed to an executor.
func stepPrompt(planText string, index int, stepText string) string {
	return fmt.Sprintf(`CURRENT PLAN STATUS:
%s

YOUR CURRENT TASK:
You are now working on step %d: "%s"

Please execute this step using the appropriate tools. When you're done, provide a summary of what you accomplished.`, planText, index, stepText)
}

// Snapshot captures the full durable state of the flow.
func (f *PlanningFlow) Snapshot() Snapshot {
	snap := Snapshot{
		ActivePlanID: f.planning.ActivePlanID(),
		Plans:        f.planning.Plans(),
		Memory:       append([]Message{}, f.memory.Messages()...),
		Agents:       make(map[string]AgentSnapshot, len(f.agents)),
	}
	if info, ok := f.currentStepPeek(); ok {
		idx := info.index
		snap.CurrentStepIndex = &idx
	}
	for name, a := range f.agents {
		snap.Agents[name] = AgentSnapshot{
			CurrentStep: a.CurrentStep(),
			State:       a.State(),
			Messages:    append([]Message{}, a.Memory().Messages()...),
		}
	}
	return snap
}

// RestoreSnapshot rebuilds flow and agent state from a snapshot. Agent
// memories are aliased to the flow memory, matching the lending contract
// used during execution.
func (f *PlanningFlow) RestoreSnapshot(snap Snapshot) {
	f.planning.Restore(snap.Plans, snap.ActivePlanID)
	f.memory.Replace(snap.Memory)
	for name, as := range snap.Agents {
		a, ok := f.agents[name]
		if !ok {
			continue
		}
		a.Restore(as.CurrentStep, as.State)
		a.SetMemory(f.memory)
	}
}

// snapshot persists the current state when a store and session are set.
// Failures are logged, never fatal.
func (f *PlanningFlow) snapshot() {
	if f.store == nil || f.sessionID == "" {
		return
	}
	if err := f.store.Save(f.sessionID, f.Snapshot()); err != nil {
		f.logger.Error("session snapshot failed", "session", f.sessionID, "error", err)
	}
}
