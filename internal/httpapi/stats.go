package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/authresolve"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/costs"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/statscache"
)

// handleStats dispatches the /v1/stats/* family: overview, usage, cost,
// feedback. Every result is memoized in the process-local stats cache,
// keyed by metric, tenant, and the since window.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	metric := strings.TrimPrefix(r.URL.Path, "/v1/stats/")
	since := sinceFromQuery(r)

	switch metric {
	case "overview":
		s.statsOverview(w, r, auth, since)
	case "usage":
		s.statsUsage(w, r, auth, since)
	case "cost":
		s.statsCost(w, r, auth, since)
	case "feedback":
		s.statsFeedback(w, r, auth)
	default:
		http.NotFound(w, r)
	}
}

func sinceFromQuery(r *http.Request) time.Time {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Now().UTC().AddDate(0, 0, -30)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return time.Now().UTC().AddDate(0, 0, -30)
}

type usageTotals struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

func (s *Server) statsUsage(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext, since time.Time) {
	key := statscache.Key("usage", auth.TenantID, since.Unix())
	value, err := s.stats.GetOrLoad(key, func() (any, error) {
		prompt, completion, err := s.store.SumUsageByTenant(r.Context(), auth.TenantID, since)
		if err != nil {
			return nil, err
		}
		return usageTotals{PromptTokens: prompt, CompletionTokens: completion}, nil
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

type costBreakdown struct {
	Model            string  `json:"model"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
	Unknown          bool    `json:"unknown_pricing,omitempty"`
}

type costResponse struct {
	TotalCost    float64         `json:"total_cost"`
	UnknownCount int             `json:"unknown_model_count"`
	ByModel      []costBreakdown `json:"by_model"`
}

// statsCost builds one synthetic UsageEvent per model from the store's
// per-model aggregate, since the store exposes summed usage, not raw
// events, and feeds each through the static cost table.
func (s *Server) statsCost(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext, since time.Time) {
	key := statscache.Key("cost", auth.TenantID, since.Unix())
	value, err := s.stats.GetOrLoad(key, func() (any, error) {
		byModel, err := s.store.SumUsageByModel(r.Context(), auth.TenantID, since)
		if err != nil {
			return nil, err
		}
		resp := costResponse{ByModel: make([]costBreakdown, 0, len(byModel))}
		for model, agg := range byModel {
			result := costs.Of(domain.UsageEvent{Model: model, PromptTokens: agg.PromptTokens, CompletionTokens: agg.CompletionTokens})
			resp.TotalCost += result.Cost
			if result.Unknown {
				resp.UnknownCount++
			}
			resp.ByModel = append(resp.ByModel, costBreakdown{
				Model: model, PromptTokens: agg.PromptTokens, CompletionTokens: agg.CompletionTokens,
				Cost: result.Cost, Unknown: result.Unknown,
			})
		}
		return resp, nil
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

type feedbackTotals struct {
	Positive int64 `json:"positive"`
	Negative int64 `json:"negative"`
}

func (s *Server) statsFeedback(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	key := statscache.Key("feedback", auth.TenantID)
	value, err := s.stats.GetOrLoad(key, func() (any, error) {
		positive, negative, err := s.store.FeedbackCounts(r.Context(), auth.TenantID)
		if err != nil {
			return nil, err
		}
		return feedbackTotals{Positive: positive, Negative: negative}, nil
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

type overviewResponse struct {
	BotProfileCount int           `json:"bot_profile_count"`
	SourceCount     int           `json:"source_count"`
	ChatCount       int           `json:"chat_count"`
	Usage           usageTotals   `json:"usage"`
	Feedback        feedbackTotals `json:"feedback"`
}

func (s *Server) statsOverview(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext, since time.Time) {
	key := statscache.Key("overview", auth.TenantID, since.Unix())
	value, err := s.stats.GetOrLoad(key, func() (any, error) {
		bots, err := s.store.ListBotProfiles(r.Context(), auth.TenantID, fullListFilter())
		if err != nil {
			return nil, err
		}
		sources, err := s.store.ListSources(r.Context(), auth.TenantID, fullListFilter())
		if err != nil {
			return nil, err
		}
		chats, err := s.store.ListChats(r.Context(), auth.TenantID, fullListFilter())
		if err != nil {
			return nil, err
		}
		prompt, completion, err := s.store.SumUsageByTenant(r.Context(), auth.TenantID, since)
		if err != nil {
			return nil, err
		}
		positive, negative, err := s.store.FeedbackCounts(r.Context(), auth.TenantID)
		if err != nil {
			return nil, err
		}
		return overviewResponse{
			BotProfileCount: len(bots), SourceCount: len(sources), ChatCount: len(chats),
			Usage:    usageTotals{PromptTokens: prompt, CompletionTokens: completion},
			Feedback: feedbackTotals{Positive: positive, Negative: negative},
		}, nil
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

