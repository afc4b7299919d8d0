// Package maestro is an LLM-driven task orchestrator: given a natural
// language request it plans a multi-step workflow, dispatches each step to
// a specialized worker agent, and drives those agents through a
// reason-act loop of tool calls until the task completes. Sessions are
// snapshotted so an interrupted run can resume.
//
// # Quick Start
//
//	provider := maestro.WithRetry(openaicompat.NewProvider(apiKey, model, baseURL))
//	gateway := maestro.NewGateway(provider, model, maestro.GatewayBus(bus))
//	planning := maestro.NewPlanningTool(bus)
//
//	workers := map[string]*maestro.ToolCallAgent{
//		agents.PlannerKey:     agents.NewPlanner(gateway, planning, nil),
//		agents.DataAnalystKey: agents.NewDataAnalyst(gateway, analystTools),
//		agents.AnswerBotKey:   agents.NewAnswerBot(gateway, nil),
//	}
//
//	flow := maestro.NewPlanningFlow(gateway, planning, workers,
//		maestro.FlowPlanningAgent(agents.PlannerKey),
//		maestro.FlowExecutors(agents.DataAnalystKey, agents.AnswerBotKey))
//	result, err := flow.Execute(ctx, "Analyze sales by region and build a report")
//
// # Building Blocks
//
//   - PlanningFlow: plan lifecycle, per-step executor selection, history
//     summarization, finalization
//   - ToolCallAgent: the think/act loop for one step
//   - Gateway: message normalization, token gating, streaming assembly,
//     usage accounting over a Provider
//   - PlanningTool: the in-memory plan registry, also exposed to the
//     planner as a tool
//   - Bus: the structured progress envelope stream
//   - SnapshotStore: durable session snapshots (store/session)
//
// Tool implementations live under tools/, preconfigured agents under
// agents/, and the OpenAI-compatible provider under provider/openaicompat.
package maestro
