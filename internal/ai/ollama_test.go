package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaCompleteParsesEvalCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:         ollamaMessage{Role: "assistant", Content: "hi there"},
			Done:            true,
			PromptEvalCount: 8,
			EvalCount:       5,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	out, err := p.Complete(context.Background(), "llama3", []Message{{Role: "user", Content: "hi"}}, Params{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Content != "hi there" || out.PromptTokens != 8 || out.CompletionTokens != 5 {
		t.Fatalf("unexpected completion: %+v", out)
	}
}

func TestOllamaEmbedReturnsBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	out, err := p.Embed(context.Background(), "nomic-embed-text", []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(out))
	}
}

func TestOllamaCompleteStreamEmitsDeltasAndDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lines := []ollamaChatResponse{
			{Message: ollamaMessage{Content: "Hel"}},
			{Message: ollamaMessage{Content: "lo"}},
			{Done: true, PromptEvalCount: 4, EvalCount: 2},
		}
		for _, l := range lines {
			b, _ := json.Marshal(l)
			_, _ = w.Write(append(b, '\n'))
		}
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	var got string
	var done bool
	err := p.CompleteStream(context.Background(), "llama3", []Message{{Role: "user", Content: "hi"}}, Params{}, func(d Delta) error {
		got += d.Content
		if d.Done {
			done = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got != "Hello" || !done {
		t.Fatalf("expected Hello/done, got %q done=%v", got, done)
	}
}

func TestOllamaErrorFromBodyClassifiesNotFoundAsInvalidModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ollamaErrorResponse{Error: "model 'ghost' not found"})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	_, err := p.Complete(context.Background(), "ghost", []Message{{Role: "user", Content: "hi"}}, Params{})
	aiErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if aiErr.Kind != KindInvalidModel {
		t.Fatalf("expected KindInvalidModel, got %s", aiErr.Kind)
	}
}
