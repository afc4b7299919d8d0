// Package agents provides the preconfigured worker agents of the
// orchestrator: a planner that writes plans, a data analyst and a report
// maker that execute steps, and a lightweight answer bot.
//
// Agent names double as the plan step types the flow routes on.
package agents

import (
	maestro "github.com/maestroflow/maestro"
)

// Agent keys, used both in the flow's agent map and as plan step types.
const (
	PlannerKey     = "planner"
	DataAnalystKey = "data_analyst"
	ReportMakerKey = "report_maker"
	AnswerBotKey   = "answerbot"
)

// NewPlanner builds the planning agent. It gets the plan registry itself
// as a tool, plus human input for clarifying questions.
func NewPlanner(g *maestro.Gateway, planning *maestro.PlanningTool, human maestro.Tool, opts ...maestro.AgentOption) *maestro.ToolCallAgent {
	tools := []maestro.Tool{planning, maestro.NewTerminateTool()}
	if human != nil {
		tools = append(tools, human)
	}
	base := []maestro.AgentOption{
		maestro.AgentSystemPrompt(plannerSystemPrompt),
		maestro.AgentToolChoice(maestro.ToolChoiceAuto),
		maestro.AgentMaxSteps(10),
	}
	return maestro.NewToolCallAgent(PlannerKey, g, maestro.NewToolRegistry(tools...), append(base, opts...)...)
}

// NewDataAnalyst builds the analysis executor: code execution, the SQL
// gateway, and file output.
func NewDataAnalyst(g *maestro.Gateway, tools []maestro.Tool, opts ...maestro.AgentOption) *maestro.ToolCallAgent {
	reg := maestro.NewToolRegistry(append(tools, maestro.NewTerminateTool())...)
	base := []maestro.AgentOption{
		maestro.AgentSystemPrompt(dataAnalystSystemPrompt),
		maestro.AgentNextStepPrompt(workerNextStepPrompt),
		maestro.AgentMaxObserve(10000),
	}
	return maestro.NewToolCallAgent(DataAnalystKey, g, reg, append(base, opts...)...)
}

// NewReportMaker builds the report executor: dashboard rendering and file
// output over already-produced artifacts.
func NewReportMaker(g *maestro.Gateway, tools []maestro.Tool, opts ...maestro.AgentOption) *maestro.ToolCallAgent {
	reg := maestro.NewToolRegistry(append(tools, maestro.NewTerminateTool())...)
	base := []maestro.AgentOption{
		maestro.AgentSystemPrompt(reportMakerSystemPrompt),
		maestro.AgentNextStepPrompt(workerNextStepPrompt),
		maestro.AgentMaxObserve(10000),
	}
	return maestro.NewToolCallAgent(ReportMakerKey, g, reg, append(base, opts...)...)
}

// NewAnswerBot builds the lightweight answering agent.
func NewAnswerBot(g *maestro.Gateway, tools []maestro.Tool, opts ...maestro.AgentOption) *maestro.ToolCallAgent {
	reg := maestro.NewToolRegistry(append(tools, maestro.NewTerminateTool())...)
	base := []maestro.AgentOption{
		maestro.AgentSystemPrompt(answerBotSystemPrompt),
		maestro.AgentMaxSteps(5),
	}
	return maestro.NewToolCallAgent(AnswerBotKey, g, reg, append(base, opts...)...)
}
