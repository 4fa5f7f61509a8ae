package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/authresolve"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/crypto"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/util"
)

// apiTokenCreated carries the plaintext token back to the caller exactly
// once, at creation time. It is never reconstructable afterward since only
// its hash is persisted.
type apiTokenCreated struct {
	domain.ApiToken
	Token string `json:"token"`
}

func (s *Server) issueApiToken(ctx context.Context, tenantID, userID, name string) (apiTokenCreated, error) {
	plain, err := crypto.NewOpaqueToken()
	if err != nil {
		return apiTokenCreated{}, apperr.Wrap(apperr.KindInternal, "generate api token", err)
	}
	now := time.Now().UTC()
	token := domain.ApiToken{
		ID: util.NewID(), TenantID: tenantID, UserID: userID, Name: name,
		TokenHash: crypto.HashOpaqueToken(plain),
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.store.CreateApiToken(ctx, token); err != nil {
		return apiTokenCreated{}, err
	}
	return apiTokenCreated{ApiToken: token, Token: plain}, nil
}

type createApiTokenRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleApiTokens(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	switch r.Method {
	case http.MethodPost:
		var req createApiTokenRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusUnprocessableEntity, "name is required")
			return
		}
		created, err := s.issueApiToken(r.Context(), auth.TenantID, auth.UserID, req.Name)
		if err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "api_token.create", "success", "tenant_id", auth.TenantID, "user_id", auth.UserID)
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		tokens, err := s.store.ListApiTokens(r.Context(), auth.TenantID, listFilterFromQuery(r))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tokens)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleApiTokenByID(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/api-tokens/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.store.RevokeApiToken(r.Context(), id, auth.TenantID, time.Now().UTC()); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "api_token.revoke", "success", "tenant_id", auth.TenantID, "token_id", id)
	w.WriteHeader(http.StatusNoContent)
}
