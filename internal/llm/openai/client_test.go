package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"vendorsec-backend/internal/llm"
)

func newTestClient(t *testing.T, model string, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient("test-key", srv.URL+"/v1", model)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestCompleteSendsJSONFormatAndTokens(t *testing.T) {
	var mu sync.Mutex
	var body map[string]any
	c := newTestClient(t, "gpt-4o-mini", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" {\"ok\":true} "}}]}`))
	})

	out, err := c.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.Options{MaxTokens: 256, Temperature: 0.3, JSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("unexpected content %q", out)
	}

	mu.Lock()
	defer mu.Unlock()
	if body["max_tokens"] != float64(256) {
		t.Fatalf("expected max_tokens 256, got %v", body["max_tokens"])
	}
	rf, _ := body["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %v", body["response_format"])
	}
}

func TestReasoningModelUsesMaxCompletionTokens(t *testing.T) {
	var mu sync.Mutex
	var body map[string]any
	c := newTestClient(t, "o3-mini", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"done"}}]}`))
	})

	if _, err := c.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.Options{MaxTokens: 128, Temperature: 0.3}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, has := body["max_tokens"]; has {
		t.Fatalf("expected max_tokens to be omitted")
	}
	if body["max_completion_tokens"] != float64(128) {
		t.Fatalf("expected max_completion_tokens 128, got %v", body["max_completion_tokens"])
	}
	if _, has := body["temperature"]; has {
		t.Fatalf("expected temperature to be omitted")
	}
}

func TestThrottlingIsTransient(t *testing.T) {
	c := newTestClient(t, "gpt-4o-mini", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`))
	})

	_, err := c.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.Options{})
	if !errors.Is(err, llm.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestStreamYieldsDeltas(t *testing.T) {
	c := newTestClient(t, "gpt-4o-mini", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	s, err := c.Stream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.Options{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	got, err := llm.Collect(s)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got != "Hello" {
		t.Fatalf("expected Hello, got %q", got)
	}
}
