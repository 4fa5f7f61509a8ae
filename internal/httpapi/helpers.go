package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/ratelimit"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/util"
)

const defaultListLimit = 50

// listFilterFromQuery reads limit, offset and active_only from the query
// string, defaulting limit to defaultListLimit when absent or invalid.
func listFilterFromQuery(r *http.Request) store.ListFilter {
	q := r.URL.Query()
	limit := defaultListLimit
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return store.ListFilter{
		Limit:      limit,
		Offset:     offset,
		ActiveOnly: q.Get("active_only") == "true",
	}
}

// fullListFilter requests every active row, for internal aggregation paths
// (stats) that need a full count rather than one paginated page.
func fullListFilter() store.ListFilter {
	return store.ListFilter{Limit: 0, ActiveOnly: true}
}

const maxRequestBodyBytes = 1 << 20 // 1MB, multipart uploads use their own limit

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeAppError maps a domain error to its HTTP status and body per the
// Kind → status contract. Errors that aren't *apperr.Error are treated as
// internal failures without leaking their message to the client.
func writeAppError(w http.ResponseWriter, err error) {
	if appErr, ok := apperr.As(err); ok {
		writeError(w, appErr.Status(), appErr.Message)
		return
	}
	slog.Error("unmapped error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// audit logs a structured security event, mirroring the gateway's access
// log but scoped to authentication, authorization, and mutation outcomes.
func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate applies a fixed-window limiter keyed by request path and client
// IP. A nil limiter (no Redis configured) always allows.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
