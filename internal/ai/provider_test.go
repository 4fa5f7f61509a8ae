package ai

import "testing"

func TestRegistryResolvePrefersLongestPrefix(t *testing.T) {
	r := NewRegistry()
	gemini := &GeminiProvider{}
	openai := &OpenAICompatProvider{}
	r.Register("gemini-", gemini)
	r.Register("gemini-1.5-pro", openai) // more specific, registered second on purpose

	got, err := r.Resolve("gemini-1.5-pro")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != openai {
		t.Fatalf("expected longest-prefix match to win")
	}

	got, err = r.Resolve("gemini-1.5-flash")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != gemini {
		t.Fatalf("expected shorter prefix match for non-overlapping model")
	}
}

func TestRegistryResolveFallback(t *testing.T) {
	r := NewRegistry()
	fallback := &OllamaProvider{}
	r.SetFallback(fallback)
	got, err := r.Resolve("llama3")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != fallback {
		t.Fatalf("expected fallback provider")
	}
}

func TestRegistryResolveUnknownModelNoFallback(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("mystery-model")
	if err == nil {
		t.Fatalf("expected error for unresolvable model")
	}
	aiErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if aiErr.Kind != KindInvalidModel {
		t.Fatalf("expected KindInvalidModel, got %s", aiErr.Kind)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := map[int]ErrorKind{
		401: KindAuth,
		403: KindAuth,
		429: KindRateLimited,
		404: KindInvalidModel,
		500: KindProviderUnavailable,
		503: KindProviderUnavailable,
		418: KindProviderUnavailable,
	}
	for status, want := range cases {
		if got := classifyHTTPStatus(status); got != want {
			t.Errorf("classifyHTTPStatus(%d) = %s, want %s", status, got, want)
		}
	}
}
