package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAICompatCompleteParsesUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Fatalf("missing auth header")
		}
		_ = json.NewEncoder(w).Encode(oaiChatResponse{
			Choices: []struct {
				Message oaiMessage `json:"message"`
			}{{Message: oaiMessage{Role: "assistant", Content: "hello there"}}},
			Usage: oaiUsage{PromptTokens: 12, CompletionTokens: 4},
		})
	}))
	defer srv.Close()

	p := NewOpenAICompatProvider(srv.URL, "sk-test")
	out, err := p.Complete(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hi"}}, Params{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Content != "hello there" || out.PromptTokens != 12 || out.CompletionTokens != 4 {
		t.Fatalf("unexpected completion: %+v", out)
	}
}

func TestOpenAICompatCompleteMapsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(oaiErrorResponse{Error: struct {
			Message string `json:"message"`
		}{Message: "invalid api key"}})
	}))
	defer srv.Close()

	p := NewOpenAICompatProvider(srv.URL, "sk-bad")
	_, err := p.Complete(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hi"}}, Params{})
	aiErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if aiErr.Kind != KindAuth {
		t.Fatalf("expected KindAuth, got %s", aiErr.Kind)
	}
}

func TestOpenAICompatEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(oaiEmbedResponse{Data: []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{
			{Index: 1, Embedding: []float32{0.2}},
			{Index: 0, Embedding: []float32{0.1}},
		}})
	}))
	defer srv.Close()

	p := NewOpenAICompatProvider(srv.URL, "")
	out, err := p.Embed(context.Background(), "text-embedding-3-small", []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(out) != 2 || out[0][0] != 0.1 || out[1][0] != 0.2 {
		t.Fatalf("unexpected embeddings: %v", out)
	}
}

func TestOpenAICompatCompleteStreamEmitsDeltasAndDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{}}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`,
		}
		for _, f := range frames {
			_, _ = w.Write([]byte("data: " + f + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	p := NewOpenAICompatProvider(srv.URL, "sk-test")
	var got string
	var done bool
	var usage *Completion
	err := p.CompleteStream(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hi"}}, Params{}, func(d Delta) error {
		got += d.Content
		if d.Done {
			done = true
			usage = d.Usage
		}
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got != "Hello" {
		t.Fatalf("expected accumulated content Hello, got %q", got)
	}
	if !done || usage == nil || usage.PromptTokens != 3 {
		t.Fatalf("expected done delta with usage, got done=%v usage=%+v", done, usage)
	}
}
