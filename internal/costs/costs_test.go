package costs

import (
	"testing"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
)

func TestOfKnownModel(t *testing.T) {
	r := Of(domain.UsageEvent{Model: "gpt-4o-mini", PromptTokens: 1000, CompletionTokens: 1000})
	if r.Unknown {
		t.Fatalf("expected known model")
	}
	want := 0.00015 + 0.0006
	if diff := r.Cost - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("cost = %v, want %v", r.Cost, want)
	}
}

func TestOfUnknownModelFlagged(t *testing.T) {
	r := Of(domain.UsageEvent{Model: "does-not-exist", PromptTokens: 100, CompletionTokens: 100})
	if !r.Unknown || r.Cost != 0 {
		t.Fatalf("expected zero cost flagged unknown, got %+v", r)
	}
}

func TestSumAggregatesAndCountsUnknown(t *testing.T) {
	events := []domain.UsageEvent{
		{Model: "gpt-4o-mini", PromptTokens: 1000, CompletionTokens: 0},
		{Model: "mystery-model", PromptTokens: 1000, CompletionTokens: 0},
	}
	total, unknown := Sum(events)
	if unknown != 1 {
		t.Fatalf("expected 1 unknown, got %d", unknown)
	}
	if total <= 0 {
		t.Fatalf("expected positive total, got %v", total)
	}
}
