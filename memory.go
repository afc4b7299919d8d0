package maestro

// Memory is an ordered, append-only message log. A PlanningFlow owns one
// and lends it to each step's executor, so both observe the same sequence.
// Append order is the canonical causal order for the whole session.
//
// Memory is not safe for concurrent use; a session runs one step at a time.
type Memory struct {
	messages []Message
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{}
}

// Add appends one message.
func (m *Memory) Add(msg Message) {
	m.messages = append(m.messages, msg)
}

// AddAll appends msgs in order.
func (m *Memory) AddAll(msgs []Message) {
	m.messages = append(m.messages, msgs...)
}

// Messages returns the live message slice in insertion order. Callers must
// not mutate entries; use Replace to rewrite the log.
func (m *Memory) Messages() []Message {
	return m.messages
}

// Replace swaps the entire log for msgs. Used by summarization, which
// rebuilds the log around preserved artifacts, and by session restore.
func (m *Memory) Replace(msgs []Message) {
	m.messages = msgs
}

// Len returns the number of stored messages.
func (m *Memory) Len() int {
	return len(m.messages)
}

// Last returns the most recent message and true, or a zero Message and
// false when the log is empty.
func (m *Memory) Last() (Message, bool) {
	if len(m.messages) == 0 {
		return Message{}, false
	}
	return m.messages[len(m.messages)-1], true
}

// FirstUser returns the earliest user message — the original request.
func (m *Memory) FirstUser() (Message, bool) {
	for _, msg := range m.messages {
		if msg.Role == RoleUser {
			return msg, true
		}
	}
	return Message{}, false
}
