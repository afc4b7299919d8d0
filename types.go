package maestro

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	// RoleSummary marks a compressed digest of earlier conversation turns.
	// Summary messages are sent to providers as user messages but keep their
	// role in memory so later summarization passes can stack them.
	RoleSummary Role = "summary"
)

// Function is the callable half of a ToolCall. Arguments is the raw
// JSON-encoded string exactly as the provider produced it; it is parsed
// lazily at dispatch time so malformed arguments surface as a tool-error
// observation instead of a decode failure.
type Function struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a single tool invocation requested by an assistant message.
type ToolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type,omitempty"` // "function"
	Function Function `json:"function"`
}

// Message is one entry in a conversation memory.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Name is the tool name when Role is RoleTool.
	Name string `json:"name,omitempty"`
	// ToolCallID links a tool message back to the assistant tool call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Base64Image carries an inline PNG attached to this message.
	Base64Image string `json:"base64_image,omitempty"`
}

// Usage counts tokens consumed by LLM calls.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ToolChoice selects how the model may use tools on a request.
type ToolChoice string

const (
	// ToolChoiceNone forbids tool calls; any the model emits are ignored.
	ToolChoiceNone ToolChoice = "none"
	// ToolChoiceAuto lets the model decide between content and tool calls.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceRequired demands at least one tool call per turn.
	ToolChoiceRequired ToolChoice = "required"
)

// ValidToolChoice reports whether c is one of the supported modes.
func ValidToolChoice(c ToolChoice) bool {
	switch c {
	case ToolChoiceNone, ToolChoiceAuto, ToolChoiceRequired:
		return true
	}
	return false
}

// --- Message constructors ---

func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolMessage builds the response message for a completed tool call.
func ToolMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Name: name, Content: content}
}

// SummaryMessage builds a conversation digest produced by summarization.
func SummaryMessage(text string) Message {
	return Message{Role: RoleSummary, Content: text}
}

// FromToolCalls builds the assistant message that carries tool calls.
func FromToolCalls(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}
