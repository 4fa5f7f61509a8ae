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

type bootstrapTenantRequest struct {
	TenantName string `json:"tenant_name"`
	TenantSlug string `json:"tenant_slug"`
	OwnerEmail string `json:"owner_email"`
	Password   string `json:"password"`
}

type bootstrapTenantResponse struct {
	Tenant   domain.Tenant   `json:"tenant"`
	Owner    domain.User     `json:"owner"`
	ApiToken apiTokenCreated `json:"api_token"`
}

// handleTenants serves the unauthenticated bootstrap endpoint: create a
// tenant, its first owner user, and a first API token in one call.
func (s *Server) handleTenants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.bootstrapLimiter, "too many tenant signups, try again later") {
		return
	}

	var req bootstrapTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	req.TenantName = strings.TrimSpace(req.TenantName)
	req.TenantSlug = strings.TrimSpace(strings.ToLower(req.TenantSlug))
	req.OwnerEmail = strings.TrimSpace(strings.ToLower(req.OwnerEmail))
	if req.TenantName == "" || req.TenantSlug == "" || req.OwnerEmail == "" || len(req.Password) < 8 {
		writeError(w, http.StatusUnprocessableEntity, "tenant_name, tenant_slug, owner_email and a password of at least 8 characters are required")
		return
	}

	now := time.Now().UTC()
	tenant := domain.Tenant{
		ID: util.NewID(), Name: req.TenantName, Slug: req.TenantSlug,
		Plan: "free", Status: domain.TenantStatusActive,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.store.CreateTenant(r.Context(), tenant); err != nil {
		s.audit(r, "tenant.bootstrap", "failure", "slug", req.TenantSlug)
		writeAppError(w, err)
		return
	}

	passwordHash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "hash password", err))
		return
	}
	owner := domain.User{
		ID: util.NewID(), TenantID: tenant.ID, Email: req.OwnerEmail,
		PasswordHash: passwordHash, Role: domain.RoleOwner, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.store.CreateUser(r.Context(), owner); err != nil {
		writeAppError(w, err)
		return
	}

	created, err := s.issueApiToken(r.Context(), tenant.ID, owner.ID, "bootstrap token")
	if err != nil {
		writeAppError(w, err)
		return
	}

	s.audit(r, "tenant.bootstrap", "success", "tenant_id", tenant.ID, "user_id", owner.ID)
	writeJSON(w, http.StatusCreated, bootstrapTenantResponse{Tenant: tenant, Owner: owner, ApiToken: created})
}

func (s *Server) handleTenantMe(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	tenant, ok, err := s.store.GetTenant(r.Context(), auth.TenantID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !ok {
		writeAppError(w, apperr.NotFound("tenant not found"))
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}
