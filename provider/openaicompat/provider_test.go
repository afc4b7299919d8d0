package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	maestro "github.com/maestroflow/maestro"
)

func TestProviderChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header: %q", got)
		}
		var body ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Model != "gpt-4o" || body.Stream {
			t.Errorf("unexpected body: model=%s stream=%v", body.Model, body.Stream)
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Choices: []Choice{{Message: &ChoiceMessage{Content: "pong"}}},
			Usage:   &Usage{PromptTokens: 3, CompletionTokens: 1},
		})
	}))
	defer srv.Close()

	p := NewProvider("sk-test", "gpt-4o", srv.URL)
	resp, err := p.Chat(context.Background(), maestro.ChatRequest{
		Messages: []maestro.Message{maestro.UserMessage("ping")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "pong" || resp.Usage.InputTokens != 3 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestProviderChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	p := NewProvider("k", "m", srv.URL)
	_, err := p.Chat(context.Background(), maestro.ChatRequest{})
	var httpErr *maestro.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected ErrHTTP, got %v", err)
	}
	if httpErr.Status != 429 || httpErr.Body != "slow down" {
		t.Errorf("unexpected ErrHTTP: %+v", httpErr)
	}
	if httpErr.RetryAfter != 2*time.Second {
		t.Errorf("Retry-After not parsed: %v", httpErr.RetryAfter)
	}
}

func TestProviderChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body ChatRequest
		json.NewDecoder(r.Body).Decode(&body)
		if !body.Stream || body.StreamOptions == nil || !body.StreamOptions.IncludeUsage {
			t.Errorf("stream flags not set: %+v", body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"a"}}]}
data: {"choices":[{"delta":{"content":"b"}}]}
data: [DONE]
`))
	}))
	defer srv.Close()

	p := NewProvider("k", "m", srv.URL)
	ch := make(chan maestro.StreamEvent, 8)
	resp, err := p.ChatStream(context.Background(), maestro.ChatRequest{}, ch)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "ab" {
		t.Errorf("content: %q", resp.Content)
	}
	var n int
	for range ch {
		n++
	}
	if n != 2 {
		t.Errorf("expected 2 events, got %d", n)
	}
}

func TestProviderChatStreamClosesChannelOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProvider("k", "m", srv.URL)
	ch := make(chan maestro.StreamEvent)
	_, err := p.ChatStream(context.Background(), maestro.ChatRequest{}, ch)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, open := <-ch; open {
		t.Error("channel must be closed on error")
	}
}
