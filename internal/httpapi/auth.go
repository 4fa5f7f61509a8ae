package httpapi

import (
	"net/http"
	"strings"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/authresolve"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/crypto"
)

type loginRequest struct {
	TenantSlug string `json:"tenant_slug"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type loginResponse struct {
	SessionToken string `json:"session_token"`
	ExpiresIn    int    `json:"expires_in_seconds"`
}

// handleLogin exchanges a tenant slug, email and password for a signed
// session token. Email is only unique within a tenant, so the slug
// disambiguates which tenant's user table to check.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts, try again later") {
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	req.TenantSlug = strings.TrimSpace(strings.ToLower(req.TenantSlug))
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.TenantSlug == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "tenant_slug, email and password are required")
		return
	}

	tenant, ok, err := s.store.GetTenantBySlug(r.Context(), req.TenantSlug)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !ok || !tenant.IsActive() {
		s.audit(r, "auth.login", "failure", "tenant_slug", req.TenantSlug, "reason", "unknown_or_inactive_tenant")
		writeAppError(w, apperr.Unauthenticated("invalid credentials"))
		return
	}

	user, ok, err := s.store.GetUserByEmail(r.Context(), tenant.ID, req.Email)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !ok || !user.IsActive || !crypto.VerifyPassword(req.Password, user.PasswordHash) {
		s.audit(r, "auth.login", "failure", "tenant_id", tenant.ID, "reason", "bad_credentials")
		writeAppError(w, apperr.Unauthenticated("invalid credentials"))
		return
	}

	token, err := s.signer.Sign(user.ID, tenant.ID, string(user.Role))
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "sign session", err))
		return
	}

	s.audit(r, "auth.login", "success", "tenant_id", tenant.ID, "user_id", user.ID)
	writeJSON(w, http.StatusOK, loginResponse{SessionToken: token, ExpiresIn: int(s.signer.TTL().Seconds())})
}

type meResponse struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

func (s *Server) handleAuthMe(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{UserID: auth.UserID, TenantID: auth.TenantID, Role: string(auth.Role)})
}
