package maestro

// StreamEventType identifies the kind of streaming event.
type StreamEventType string

const (
	// EventTextDelta carries an incremental content chunk from the LLM.
	EventTextDelta StreamEventType = "text-delta"
	// EventToolCallDelta signals tool-call argument bytes arriving on the
	// stream. Providers accumulate these internally; the event exists so
	// consumers can show activity while a long tool call is being emitted.
	EventToolCallDelta StreamEventType = "tool-call-delta"
)

// StreamEvent is a typed event emitted during provider streaming.
// Consumers receive these on the channel passed to ChatStream.
type StreamEvent struct {
	// Type identifies the event kind.
	Type StreamEventType `json:"type"`
	// Name is the tool function name (tool-call-delta, first chunk only).
	Name string `json:"name,omitempty"`
	// Content carries the text delta or argument fragment.
	Content string `json:"content,omitempty"`
}
