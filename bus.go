package maestro

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Envelope is the fixed-shape record emitted on the output bus. One JSON
// line per envelope; consumers must ignore unknown type tags.
type Envelope struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
	Data      any    `json:"data,omitempty"`
}

// Envelope type tags.
const (
	EnvLiveStatus      = "liveStatus"
	EnvChat            = "chat"
	EnvStreaming       = "streaming"
	EnvExecute         = "execute"
	EnvCreatePlan      = "createPlan"
	EnvUpdatePlan      = "updatePlan"
	EnvGetPlan         = "getPlan"
	EnvSetActivePlan   = "setActivePlan"
	EnvMarkPlanStep    = "markPlanStep"
	EnvDeletePlan      = "deletePlan"
	EnvListPlans       = "listPlans"
	EnvTerminate       = "terminate"
	EnvFinalResult     = "finalResult"
	EnvMainStart       = "mainStart"
	EnvMainCompleted   = "mainCompleted"
	EnvMainInterrupted = "mainInterrupted"
	EnvMainError       = "mainError"
	EnvMainTimeout     = "mainTimeout"
	EnvMainExited      = "mainExited"
	EnvPythonStreaming = "python_execute_streaming"
)

// Bus is the single sink for engine progress. Every envelope is written as
// one line of JSON to the output writer, appended to a daily log file, and,
// when a session id is set, appended to a per-session log. Writes never
// block the pipeline: on I/O failure the envelope is dropped with a logged
// warning.
//
// A nil *Bus is valid and discards everything, so components can treat the
// bus as optional.
type Bus struct {
	mu        sync.Mutex
	out       io.Writer
	logDir    string
	sessionID string
	logger    *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// BusLogDir sets the directory for daily and per-session log files.
// Without it, only the output writer receives envelopes.
func BusLogDir(dir string) BusOption {
	return func(b *Bus) { b.logDir = dir }
}

// BusLogger sets the structured logger for dropped-write warnings.
func BusLogger(l *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = l }
}

// NewBus creates a bus writing envelopes to out. Pass os.Stdout for the
// CLI contract.
func NewBus(out io.Writer, opts ...BusOption) *Bus {
	b := &Bus{out: out}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = nopLogger
	}
	return b
}

// SetSession enables the per-session log file for subsequent envelopes.
func (b *Bus) SetSession(id string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.sessionID = id
	b.mu.Unlock()
}

// Emit writes one envelope. data may be nil.
func (b *Bus) Emit(typ, text string, data any) {
	if b == nil {
		return
	}
	env := Envelope{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now().UnixMilli(),
		Text:      text,
		Data:      data,
	}
	line, err := json.Marshal(env)
	if err != nil {
		b.logger.Warn("dropping envelope, marshal failed", "type", typ, "error", err)
		return
	}
	line = append(line, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.out.Write(line); err != nil {
		b.logger.Warn("dropping envelope, write failed", "type", typ, "error", err)
	}
	if b.logDir == "" {
		return
	}
	day := time.Now().Format("2006-01-02")
	b.appendLine(filepath.Join(b.logDir, day+".log"), line)
	if b.sessionID != "" {
		b.appendLine(filepath.Join(b.logDir, fmt.Sprintf("session-%s.log", b.sessionID)), line)
	}
}

// appendLine appends one line to path, creating parents as needed.
// Failures are logged and swallowed.
func (b *Bus) appendLine(path string, line []byte) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		b.logger.Warn("dropping log write", "path", path, "error", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		b.logger.Warn("dropping log write", "path", path, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		b.logger.Warn("dropping log write", "path", path, "error", err)
	}
}
