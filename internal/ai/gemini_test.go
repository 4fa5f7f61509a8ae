package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestGeminiProvider(baseURL string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:     "test-key",
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestGeminiCompleteParsesUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Fatalf("missing api key in query string")
		}
		resp := geminiGenerateResponse{}
		resp.Candidates = []struct {
			Content geminiContent `json:"content"`
		}{{Content: geminiContent{Parts: []geminiPart{{Text: "hi there"}}}}}
		resp.UsageMetadata.PromptTokenCount = 6
		resp.UsageMetadata.CandidatesTokenCount = 3
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := newTestGeminiProvider(srv.URL)
	out, err := p.Complete(context.Background(), "gemini-1.5-flash", []Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	}, Params{Temperature: 0.2})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Content != "hi there" || out.PromptTokens != 6 || out.CompletionTokens != 3 {
		t.Fatalf("unexpected completion: %+v", out)
	}
}

func TestGeminiRequiresAPIKey(t *testing.T) {
	p := NewGeminiProvider("")
	_, err := p.Complete(context.Background(), "gemini-1.5-flash", []Message{{Role: "user", Content: "hi"}}, Params{})
	aiErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if aiErr.Kind != KindAuth {
		t.Fatalf("expected KindAuth, got %s", aiErr.Kind)
	}
}

func TestGeminiCompleteStreamEmitsDeltasAndDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		frame := func(text string, promptTok, candTok int) string {
			resp := geminiGenerateResponse{}
			if text != "" {
				resp.Candidates = []struct {
					Content geminiContent `json:"content"`
				}{{Content: geminiContent{Parts: []geminiPart{{Text: text}}}}}
			}
			resp.UsageMetadata.PromptTokenCount = promptTok
			resp.UsageMetadata.CandidatesTokenCount = candTok
			b, _ := json.Marshal(resp)
			return string(b)
		}
		_, _ = w.Write([]byte("data: " + frame("Hel", 0, 0) + "\n\n"))
		_, _ = w.Write([]byte("data: " + frame("lo", 5, 2) + "\n\n"))
	}))
	defer srv.Close()

	p := newTestGeminiProvider(srv.URL)
	var got string
	var done bool
	var usage *Completion
	err := p.CompleteStream(context.Background(), "gemini-1.5-flash", []Message{{Role: "user", Content: "hi"}}, Params{}, func(d Delta) error {
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
	if got != "Hello" || !done {
		t.Fatalf("expected Hello/done, got %q done=%v", got, done)
	}
	if usage == nil || usage.PromptTokens != 5 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestGeminiErrorFromBodyClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(geminiErrorResponse{Error: struct {
			Message string `json:"message"`
		}{Message: "rate limited"}})
	}))
	defer srv.Close()

	p := newTestGeminiProvider(srv.URL)
	_, err := p.Complete(context.Background(), "gemini-1.5-flash", []Message{{Role: "user", Content: "hi"}}, Params{})
	aiErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if aiErr.Kind != KindRateLimited {
		t.Fatalf("expected KindRateLimited, got %s", aiErr.Kind)
	}
}
