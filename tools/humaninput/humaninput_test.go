package humaninput

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	maestro "github.com/maestroflow/maestro"
)

func TestAskReadsOneLine(t *testing.T) {
	var out bytes.Buffer
	bus := maestro.NewBus(&out)
	tool := New(strings.NewReader("blue\n"), bus)

	res, err := tool.Execute(context.Background(), "human_input", json.RawMessage(`{"inquire":"Favorite color?"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "blue" {
		t.Errorf("answer: %q", res.Output)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected question + answer envelopes, got %d", len(lines))
	}
	var q, a maestro.Envelope
	json.Unmarshal([]byte(lines[0]), &q)
	json.Unmarshal([]byte(lines[1]), &a)
	if q.Type != maestro.EnvChat || q.Text != "Favorite color?" {
		t.Errorf("question envelope: %+v", q)
	}
	qd, _ := q.Data.(map[string]any)
	ad, _ := a.Data.(map[string]any)
	if qd["sender"] != "assistant" || ad["sender"] != "user" {
		t.Errorf("senders: %v / %v", qd["sender"], ad["sender"])
	}
}

func TestBlankAnswerUsesDefault(t *testing.T) {
	tool := New(strings.NewReader("\n"), nil)
	res, err := tool.Execute(context.Background(), "human_input", json.RawMessage(`{"inquire":"Proceed?","default":"yes"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "yes" {
		t.Errorf("default not applied: %q", res.Output)
	}
}

func TestMissingInquire(t *testing.T) {
	tool := New(strings.NewReader(""), nil)
	res, err := tool.Execute(context.Background(), "human_input", json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Error == "" {
		t.Error("expected an error result")
	}
}

func TestClosedInput(t *testing.T) {
	tool := New(strings.NewReader(""), nil)
	res, err := tool.Execute(context.Background(), "human_input", json.RawMessage(`{"inquire":"anyone there?"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Error, "no input available") {
		t.Errorf("error: %q", res.Error)
	}
}
