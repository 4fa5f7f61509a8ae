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
	"github.com/mrwind-up-bird/mini-chat-rag/internal/validate"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	switch r.Method {
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		role := domain.UserRole(strings.TrimSpace(req.Role))
		if req.Email == "" || len(req.Password) < 8 {
			writeError(w, http.StatusUnprocessableEntity, "email and a password of at least 8 characters are required")
			return
		}
		switch role {
		case domain.RoleOwner, domain.RoleAdmin, domain.RoleMember:
		default:
			writeError(w, http.StatusUnprocessableEntity, "role must be one of owner, admin, member")
			return
		}
		if err := validate.RequireUserManagement(auth.Role, role == domain.RoleOwner); err != nil {
			writeAppError(w, err)
			return
		}
		passwordHash, err := crypto.HashPassword(req.Password)
		if err != nil {
			writeAppError(w, apperr.Wrap(apperr.KindInternal, "hash password", err))
			return
		}
		now := time.Now().UTC()
		user := domain.User{
			ID: util.NewID(), TenantID: auth.TenantID, Email: req.Email,
			PasswordHash: passwordHash, Role: role, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := s.store.CreateUser(r.Context(), user); err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "user.create", "success", "tenant_id", auth.TenantID, "user_id", user.ID)
		writeJSON(w, http.StatusCreated, user)
	case http.MethodGet:
		users, err := s.store.ListUsers(r.Context(), auth.TenantID, listFilterFromQuery(r))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	default:
		methodNotAllowed(w)
	}
}

type updateUserRequest struct {
	Role     *string `json:"role,omitempty"`
	Password *string `json:"password,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, ok, err := s.store.GetUser(r.Context(), id, auth.TenantID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			writeAppError(w, apperr.NotFound("user not found"))
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		s.updateUser(w, r, auth, id)
	case http.MethodDelete:
		target, ok, err := s.store.GetUser(r.Context(), id, auth.TenantID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			writeAppError(w, apperr.NotFound("user not found"))
			return
		}
		if err := validate.RequireUserManagement(auth.Role, target.Role == domain.RoleOwner); err != nil {
			writeAppError(w, err)
			return
		}
		if err := s.store.SoftDeleteUser(r.Context(), id, auth.TenantID); err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "user.delete", "success", "tenant_id", auth.TenantID, "user_id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext, id string) {
	user, ok, err := s.store.GetUser(r.Context(), id, auth.TenantID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !ok {
		writeAppError(w, apperr.NotFound("user not found"))
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	targetBecomesOwner := user.Role == domain.RoleOwner
	newRole := user.Role
	if req.Role != nil {
		newRole = domain.UserRole(strings.TrimSpace(*req.Role))
		switch newRole {
		case domain.RoleOwner, domain.RoleAdmin, domain.RoleMember:
		default:
			writeError(w, http.StatusUnprocessableEntity, "role must be one of owner, admin, member")
			return
		}
		targetBecomesOwner = targetBecomesOwner || newRole == domain.RoleOwner
	}
	if err := validate.RequireUserManagement(auth.Role, targetBecomesOwner); err != nil {
		writeAppError(w, err)
		return
	}

	user.Role = newRole
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.Password != nil && *req.Password != "" {
		if len(*req.Password) < 8 {
			writeError(w, http.StatusUnprocessableEntity, "password must be at least 8 characters")
			return
		}
		hash, err := crypto.HashPassword(*req.Password)
		if err != nil {
			writeAppError(w, apperr.Wrap(apperr.KindInternal, "hash password", err))
			return
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "user.update", "success", "tenant_id", auth.TenantID, "user_id", id)
	writeJSON(w, http.StatusOK, user)
}
