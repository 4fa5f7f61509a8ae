// Package costs maps model usage to a dollar cost using a static price table.
package costs

import "github.com/mrwind-up-bird/mini-chat-rag/internal/domain"

// Price is a per-1k-token rate pair for one model.
type Price struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Table is the static model → price mapping. Prices are illustrative
// list rates, not live provider pricing.
var Table = map[string]Price{
	"gemini-1.5-flash": {InputPer1K: 0.000075, OutputPer1K: 0.0003},
	"gemini-1.5-pro":   {InputPer1K: 0.00125, OutputPer1K: 0.005},
	"gpt-4o":           {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":      {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"text-embedding-004": {InputPer1K: 0.00001, OutputPer1K: 0},
}

// Result is the cost of a single usage event, flagged when the model has
// no known price so callers can surface that the figure is incomplete.
type Result struct {
	Cost    float64
	Unknown bool
}

// Of computes the dollar cost of a usage event. An unknown model yields a
// zero cost with Unknown set, per the calculator's fallback rule.
func Of(u domain.UsageEvent) Result {
	price, ok := Table[u.Model]
	if !ok {
		return Result{Unknown: true}
	}
	cost := float64(u.PromptTokens)/1000*price.InputPer1K + float64(u.CompletionTokens)/1000*price.OutputPer1K
	return Result{Cost: cost}
}

// Sum totals the cost of many usage events, counting how many referenced
// an unpriced model.
func Sum(events []domain.UsageEvent) (total float64, unknownCount int) {
	for _, e := range events {
		r := Of(e)
		total += r.Cost
		if r.Unknown {
			unknownCount++
		}
	}
	return total, unknownCount
}
