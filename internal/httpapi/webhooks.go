package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/authresolve"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/crypto"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/util"
)

type webhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

func (s *Server) handleWebhooks(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	switch r.Method {
	case http.MethodPost:
		var req webhookRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
		req.URL = strings.TrimSpace(req.URL)
		if req.URL == "" || len(req.Events) == 0 {
			writeError(w, http.StatusUnprocessableEntity, "url and at least one event are required")
			return
		}
		if err := validateWebhookEvents(req.Events); err != nil {
			writeAppError(w, err)
			return
		}
		secret, err := crypto.NewOpaqueToken()
		if err != nil {
			writeAppError(w, apperr.Wrap(apperr.KindInternal, "generate webhook secret", err))
			return
		}
		now := time.Now().UTC()
		hook := domain.Webhook{
			ID: util.NewID(), TenantID: auth.TenantID, URL: req.URL, Secret: secret,
			Events: req.Events, IsActive: true, CreatedAt: now, UpdatedAt: now,
		}
		if err := s.store.CreateWebhook(r.Context(), hook); err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "webhook.create", "success", "tenant_id", auth.TenantID, "webhook_id", hook.ID)
		writeJSON(w, http.StatusCreated, struct {
			domain.Webhook
			Secret string `json:"secret"`
		}{Webhook: hook, Secret: secret})
	case http.MethodGet:
		hooks, err := s.store.ListWebhooks(r.Context(), auth.TenantID, listFilterFromQuery(r))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, hooks)
	default:
		methodNotAllowed(w)
	}
}

func validateWebhookEvents(events []string) error {
	for _, e := range events {
		switch domain.WebhookEvent(e) {
		case domain.EventSourceIngested, domain.EventSourceFailed, domain.EventChatMessage:
		default:
			return apperr.InvalidInput("unknown webhook event " + e)
		}
	}
	return nil
}

func (s *Server) handleWebhookByID(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/webhooks/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 2 {
		if parts[1] != "test" {
			http.NotFound(w, r)
			return
		}
		s.handleWebhookTest(w, r, auth, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		hook, ok, err := s.store.GetWebhook(r.Context(), id, auth.TenantID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			writeAppError(w, apperr.NotFound("webhook not found"))
			return
		}
		writeJSON(w, http.StatusOK, hook)
	case http.MethodDelete:
		if err := s.store.SoftDeleteWebhook(r.Context(), id, auth.TenantID); err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "webhook.delete", "success", "tenant_id", auth.TenantID, "webhook_id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleWebhookTest(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	hook, ok, err := s.store.GetWebhook(r.Context(), id, auth.TenantID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !ok {
		writeAppError(w, apperr.NotFound("webhook not found"))
		return
	}
	if !hook.IsActive {
		writeAppError(w, apperr.InvalidInput("webhook is disabled"))
		return
	}
	s.webhooks.DispatchTo(hook, domain.EventPing, map[string]any{
		"webhook_id": hook.ID,
		"sent":       time.Now().UTC(),
	})
	s.audit(r, "webhook.test", "success", "tenant_id", auth.TenantID, "webhook_id", id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
