package maestro

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

const summarySystemPrompt = "You are an information extraction assistant. " +
	"You produce dense, factual summaries of partial task executions so that " +
	"later steps can continue the work without refetching anything."

const summaryRequest = "Summarize the execution so far. Capture every insight, " +
	"fact, fetched data point, produced deliverable and warning, including " +
	"table and column schema details, so that subsequent steps can proceed " +
	"without repeating completed work."

const summaryDelimiter = "============="

// summarizeMemory compresses the flow memory before a step: the history is
// replaced with the original request, the tool-call pairs whose artifacts
// later steps may reference, any earlier summaries, and a fresh summary
// message. On any error the memory is left untouched.
func summarizeMemory(ctx context.Context, g *Gateway, mem *Memory, logger *slog.Logger) {
	msgs := mem.Messages()
	if len(msgs) == 0 {
		return
	}
	first, ok := mem.FirstUser()
	if !ok {
		return
	}

	content, err := g.Ask(ctx, append(append([]Message{}, msgs...), UserMessage(summaryRequest)),
		[]Message{SystemMessage(summarySystemPrompt)})
	if err != nil {
		logger.Warn("summarization failed, keeping full history", "error", err)
		return
	}

	pairs := extractRealResults(msgs)

	var summaries []Message
	for _, m := range msgs {
		if m.Role == RoleSummary {
			summaries = append(summaries, m)
		}
	}

	next := make([]Message, 0, 2+len(pairs)+len(summaries))
	next = append(next, first)
	next = append(next, pairs...)
	next = append(next, summaries...)
	next = append(next, SummaryMessage(
		"Summary of previous partial execution: \n"+summaryDelimiter+"\n"+content+"\n"+summaryDelimiter+"\n"))
	mem.Replace(next)
	logger.Info("memory summarized", "before", len(msgs), "after", len(next))
}

// extractRealResults returns, in original order, the (assistant tool-call,
// tool response) pairs whose results produced durable artifacts: a
// python_execute run that wrote files or charts, or a query_data call that
// wrote a CSV. These must survive summarization because later steps
// reference the artifacts by name.
func extractRealResults(msgs []Message) []Message {
	keep := make(map[string]bool)
	toolByID := make(map[string]Message)
	for _, m := range msgs {
		if m.Role != RoleTool || m.ToolCallID == "" {
			continue
		}
		toolByID[m.ToolCallID] = m
		if hasDurableArtifact(m) {
			keep[m.ToolCallID] = true
		}
	}

	var out []Message
	for _, m := range msgs {
		if m.Role != RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		var kept []ToolCall
		for _, tc := range m.ToolCalls {
			if keep[tc.ID] {
				kept = append(kept, tc)
			}
		}
		if len(kept) == 0 {
			continue
		}
		assistant := m
		assistant.ToolCalls = kept
		out = append(out, assistant)
		for _, tc := range kept {
			out = append(out, toolByID[tc.ID])
		}
	}
	return out
}

// hasDurableArtifact inspects a tool observation's JSON body for produced
// artifacts.
func hasDurableArtifact(m Message) bool {
	body, ok := observationJSON(m.Content)
	if !ok {
		return false
	}
	switch m.Name {
	case "python_execute":
		success, _ := body["success"].(bool)
		if !success {
			return false
		}
		files, _ := body["output_files"].([]any)
		charts, _ := body["charts"].([]any)
		return len(files) > 0 || len(charts) > 0
	case "query_data":
		if hadErr, _ := body["error"].(bool); hadErr {
			return false
		}
		data, _ := body["data"].(map[string]any)
		if data == nil {
			return false
		}
		name, _ := data["csv_filename"].(string)
		return name != ""
	}
	return false
}

// observationJSON parses the JSON payload of a recorded tool observation,
// skipping the "Observed output of cmd ..." prefix line.
func observationJSON(content string) (map[string]any, bool) {
	i := strings.Index(content, "\n")
	if i < 0 {
		return nil, false
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(content[i+1:]), &body); err != nil {
		return nil, false
	}
	return body, true
}
