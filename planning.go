package maestro

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Step statuses. Transitions usually move toward completed, but MarkStep
// may set any value for recovery flows.
const (
	StepNotStarted = "not_started"
	StepInProgress = "in_progress"
	StepCompleted  = "completed"
	StepBlocked    = "blocked"
)

// ValidStepStatus reports whether s is a recognized step status.
func ValidStepStatus(s string) bool {
	switch s {
	case StepNotStarted, StepInProgress, StepCompleted, StepBlocked:
		return true
	}
	return false
}

func statusGlyph(status string) string {
	switch status {
	case StepInProgress:
		return "[→]"
	case StepCompleted:
		return "[✓]"
	case StepBlocked:
		return "[!]"
	default:
		return "[ ]"
	}
}

// Section groups steps under a title. Types is parallel to Steps and
// labels each step with the executor kind that should run it.
type Section struct {
	Title string   `json:"title"`
	Steps []string `json:"steps"`
	Types []string `json:"types"`
}

// Plan is the unit of orchestration: ordered sections of steps with
// parallel per-step status and notes arrays, indexed globally across
// sections in declaration order.
type Plan struct {
	ID           string    `json:"plan_id"`
	Title        string    `json:"title"`
	Sections     []Section `json:"sections"`
	StepStatuses []string  `json:"step_statuses"`
	StepNotes    []string  `json:"step_notes"`
}

// TotalSteps returns the global step count across all sections.
func (p *Plan) TotalSteps() int {
	n := 0
	for _, s := range p.Sections {
		n += len(s.Steps)
	}
	return n
}

// StepAt resolves a global step index into its section title, step text,
// and step type. The boolean is false when the index is out of range.
func (p *Plan) StepAt(index int) (sectionTitle, step, stepType string, ok bool) {
	i := index
	for _, s := range p.Sections {
		if i < len(s.Steps) {
			t := ""
			if i < len(s.Types) {
				t = s.Types[i]
			}
			return s.Title, s.Steps[i], t, true
		}
		i -= len(s.Steps)
	}
	return "", "", "", false
}

// Render produces the canonical text report of the plan: title, progress
// summary, and per-section step lines with status glyphs.
func (p *Plan) Render() string {
	var b strings.Builder
	header := fmt.Sprintf("Plan: %s (ID: %s)", p.Title, p.ID)
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("=", len(header)) + "\n\n")

	total := p.TotalSteps()
	counts := map[string]int{}
	for _, s := range p.StepStatuses {
		counts[s]++
	}
	pct := 0.0
	if total > 0 {
		pct = float64(counts[StepCompleted]) / float64(total) * 100
	}
	fmt.Fprintf(&b, "Progress: %d/%d steps completed (%.1f%%)\n", counts[StepCompleted], total, pct)
	fmt.Fprintf(&b, "Status: %d completed, %d in progress, %d blocked, %d not started\n",
		counts[StepCompleted], counts[StepInProgress], counts[StepBlocked], counts[StepNotStarted])

	idx := 0
	for _, sec := range p.Sections {
		fmt.Fprintf(&b, "\nSection: %s\n", sec.Title)
		for _, step := range sec.Steps {
			status, notes := StepNotStarted, ""
			if idx < len(p.StepStatuses) {
				status = p.StepStatuses[idx]
			}
			if idx < len(p.StepNotes) {
				notes = p.StepNotes[idx]
			}
			fmt.Fprintf(&b, "%d. %s %s\n", idx, statusGlyph(status), step)
			if notes != "" {
				fmt.Fprintf(&b, "   Notes: %s\n", notes)
			}
			idx++
		}
	}
	return b.String()
}

// PlanningTool is the in-memory plan registry, exposed both as a Tool for
// the planner agent and as a direct API for the flow.
type PlanningTool struct {
	plans  map[string]*Plan
	active string
	bus    *Bus
}

// NewPlanningTool creates an empty plan registry. The bus is optional.
func NewPlanningTool(bus *Bus) *PlanningTool {
	return &PlanningTool{plans: make(map[string]*Plan), bus: bus}
}

// ActivePlanID returns the current plan pointer, or "".
func (t *PlanningTool) ActivePlanID() string { return t.active }

// Plan returns the plan with the given id.
func (t *PlanningTool) Plan(id string) (*Plan, bool) {
	p, ok := t.plans[id]
	return p, ok
}

// Plans returns the full registry, for snapshotting.
func (t *PlanningTool) Plans() map[string]*Plan { return t.plans }

// Restore replaces the registry and active pointer from a snapshot.
func (t *PlanningTool) Restore(plans map[string]*Plan, active string) {
	if plans == nil {
		plans = make(map[string]*Plan)
	}
	t.plans = plans
	t.active = active
}

func validateSections(sections []Section) error {
	if len(sections) == 0 {
		return NewToolError("plan must contain at least one section")
	}
	for i, s := range sections {
		if len(s.Steps) == 0 {
			return NewToolError("section %d has no steps", i)
		}
		if len(s.Types) != len(s.Steps) {
			return NewToolError("section %d: types length %d does not match steps length %d", i, len(s.Types), len(s.Steps))
		}
	}
	return nil
}

// Create registers a new plan and makes it active.
func (t *PlanningTool) Create(id, title string, sections []Section) (*Plan, error) {
	if id == "" {
		return nil, NewToolError("plan_id is required")
	}
	if _, exists := t.plans[id]; exists {
		return nil, NewToolError("plan with id '%s' already exists", id)
	}
	if err := validateSections(sections); err != nil {
		return nil, err
	}
	p := &Plan{ID: id, Title: title, Sections: sections}
	n := p.TotalSteps()
	p.StepStatuses = make([]string, n)
	p.StepNotes = make([]string, n)
	for i := range p.StepStatuses {
		p.StepStatuses[i] = StepNotStarted
	}
	t.plans[id] = p
	t.active = id
	t.bus.Emit(EnvCreatePlan, p.Render(), map[string]any{"plan_id": id})
	return p, nil
}

// Update rewrites a plan's title and/or sections. Statuses and notes are
// preserved by step-text identity: a step whose text survives the update
// keeps its status and notes; new steps start not_started with no notes.
func (t *PlanningTool) Update(id, title string, sections []Section) (*Plan, error) {
	p, ok := t.plans[id]
	if !ok {
		return nil, NewToolError("no plan found with id '%s'", id)
	}
	if title != "" {
		p.Title = title
	}
	if sections != nil {
		if err := validateSections(sections); err != nil {
			return nil, err
		}
		type memo struct {
			status string
			notes  string
		}
		old := make(map[string][]memo)
		idx := 0
		for _, sec := range p.Sections {
			for _, step := range sec.Steps {
				m := memo{status: StepNotStarted}
				if idx < len(p.StepStatuses) {
					m.status = p.StepStatuses[idx]
				}
				if idx < len(p.StepNotes) {
					m.notes = p.StepNotes[idx]
				}
				old[step] = append(old[step], m)
				idx++
			}
		}
		p.Sections = sections
		n := p.TotalSteps()
		p.StepStatuses = make([]string, n)
		p.StepNotes = make([]string, n)
		i := 0
		for _, sec := range p.Sections {
			for _, step := range sec.Steps {
				if prev, ok := old[step]; ok && len(prev) > 0 {
					p.StepStatuses[i] = prev[0].status
					p.StepNotes[i] = prev[0].notes
					old[step] = prev[1:]
				} else {
					p.StepStatuses[i] = StepNotStarted
				}
				i++
			}
		}
	}
	t.bus.Emit(EnvUpdatePlan, p.Render(), map[string]any{"plan_id": id})
	return p, nil
}

// Get returns the plan with the given id, defaulting to the active plan.
func (t *PlanningTool) Get(id string) (*Plan, error) {
	if id == "" {
		id = t.active
	}
	if id == "" {
		return nil, NewToolError("no active plan; specify a plan_id")
	}
	p, ok := t.plans[id]
	if !ok {
		return nil, NewToolError("no plan found with id '%s'", id)
	}
	return p, nil
}

// SetActive switches the active plan pointer.
func (t *PlanningTool) SetActive(id string) (*Plan, error) {
	p, ok := t.plans[id]
	if !ok {
		return nil, NewToolError("no plan found with id '%s'", id)
	}
	t.active = id
	t.bus.Emit(EnvSetActivePlan, p.Render(), map[string]any{"plan_id": id})
	return p, nil
}

// MarkStep updates one step's status and/or notes in place.
func (t *PlanningTool) MarkStep(id string, index int, status, notes string) (*Plan, error) {
	p, err := t.Get(id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= p.TotalSteps() {
		return nil, NewToolError("step index %d out of range (plan has %d steps)", index, p.TotalSteps())
	}
	if status != "" {
		if !ValidStepStatus(status) {
			return nil, NewToolError("invalid status '%s'", status)
		}
		p.StepStatuses[index] = status
	}
	if notes != "" {
		p.StepNotes[index] = notes
	}
	t.bus.Emit(EnvMarkPlanStep, p.Render(), map[string]any{
		"plan_id": p.ID, "step_index": index, "status": status,
	})
	return p, nil
}

// Delete removes a plan, clearing the active pointer if it matched.
func (t *PlanningTool) Delete(id string) error {
	if _, ok := t.plans[id]; !ok {
		return NewToolError("no plan found with id '%s'", id)
	}
	delete(t.plans, id)
	if t.active == id {
		t.active = ""
	}
	t.bus.Emit(EnvDeletePlan, fmt.Sprintf("Plan '%s' deleted", id), nil)
	return nil
}

// List renders a one-line summary per registered plan, sorted by id.
func (t *PlanningTool) List() string {
	if len(t.plans) == 0 {
		return "No plans available"
	}
	ids := make([]string, 0, len(t.plans))
	for id := range t.plans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	b.WriteString("Available plans:\n")
	for _, id := range ids {
		p := t.plans[id]
		marker := ""
		if id == t.active {
			marker = " (active)"
		}
		completed := 0
		for _, s := range p.StepStatuses {
			if s == StepCompleted {
				completed++
			}
		}
		fmt.Fprintf(&b, "• %s%s: %s - %d/%d steps completed\n", id, marker, p.Title, completed, p.TotalSteps())
	}
	return b.String()
}

// planningArgs is the wire shape of a planning tool call.
type planningArgs struct {
	Command    string    `json:"command"`
	PlanID     string    `json:"plan_id"`
	Title      string    `json:"title"`
	Sections   []Section `json:"sections"`
	StepIndex  *int      `json:"step_index"`
	StepStatus string    `json:"step_status"`
	StepNotes  string    `json:"step_notes"`
}

// Definitions implements Tool.
func (t *PlanningTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{
		Name: "planning",
		Description: "A planning tool that lets the agent create and manage plans for solving complex tasks. " +
			"Provides commands for creating plans, updating plan steps, and tracking progress.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {
					"type": "string",
					"enum": ["create", "update", "list", "get", "set_active", "mark_step", "delete"],
					"description": "The command to execute."
				},
				"plan_id": {
					"type": "string",
					"description": "Unique identifier for the plan. Optional for get/mark_step (defaults to active plan)."
				},
				"title": {"type": "string", "description": "Title for the plan."},
				"sections": {
					"type": "array",
					"description": "Plan sections, each with title, steps and parallel step types.",
					"items": {
						"type": "object",
						"properties": {
							"title": {"type": "string"},
							"steps": {"type": "array", "items": {"type": "string"}},
							"types": {"type": "array", "items": {"type": "string"}}
						},
						"required": ["title", "steps", "types"]
					}
				},
				"step_index": {"type": "integer", "description": "Global index of the step to update."},
				"step_status": {
					"type": "string",
					"enum": ["not_started", "in_progress", "completed", "blocked"],
					"description": "Status to set for a step."
				},
				"step_notes": {"type": "string", "description": "Notes for a step."}
			},
			"required": ["command"]
		}`),
	}}
}

// Execute implements Tool, dispatching on the command field.
func (t *PlanningTool) Execute(_ context.Context, _ string, raw json.RawMessage) (ToolResult, error) {
	var args planningArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return ToolResult{}, NewToolError("invalid planning arguments: %v", err)
	}
	switch args.Command {
	case "create":
		p, err := t.Create(args.PlanID, args.Title, args.Sections)
		if err != nil {
			return ToolResult{}, err
		}
		return ToolResult{Output: "Plan created successfully\n\n" + p.Render()}, nil
	case "update":
		p, err := t.Update(args.PlanID, args.Title, args.Sections)
		if err != nil {
			return ToolResult{}, err
		}
		return ToolResult{Output: "Plan updated successfully\n\n" + p.Render()}, nil
	case "get":
		p, err := t.Get(args.PlanID)
		if err != nil {
			return ToolResult{}, err
		}
		return ToolResult{Output: p.Render()}, nil
	case "set_active":
		p, err := t.SetActive(args.PlanID)
		if err != nil {
			return ToolResult{}, err
		}
		return ToolResult{Output: "Active plan set\n\n" + p.Render()}, nil
	case "mark_step":
		if args.StepIndex == nil {
			return ToolResult{}, NewToolError("step_index is required for mark_step")
		}
		p, err := t.MarkStep(args.PlanID, *args.StepIndex, args.StepStatus, args.StepNotes)
		if err != nil {
			return ToolResult{}, err
		}
		return ToolResult{Output: "Step updated\n\n" + p.Render()}, nil
	case "list":
		return ToolResult{Output: t.List()}, nil
	case "delete":
		if err := t.Delete(args.PlanID); err != nil {
			return ToolResult{}, err
		}
		return ToolResult{Output: fmt.Sprintf("Plan '%s' deleted", args.PlanID)}, nil
	default:
		return ToolResult{}, NewToolError("unrecognized planning command '%s'", args.Command)
	}
}

// compile-time check
var _ Tool = (*PlanningTool)(nil)
