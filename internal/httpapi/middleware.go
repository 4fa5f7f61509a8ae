package httpapi

import (
	"net/http"
	"strings"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/authresolve"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/validate"
)

// authHandler is the signature every authenticated route handler implements.
// The AuthContext is already resolved and tenant-scoped.
type authHandler func(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext)

// authenticated resolves the bearer credential into an AuthContext and
// passes control to next. It writes 401 itself on any resolution failure.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "auth.resolve", "failure", "reason", "missing_bearer_token")
			writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
			return
		}
		auth, err := s.authResolver.Resolve(r.Context(), token)
		if err != nil {
			s.audit(r, "auth.resolve", "failure", "reason", err.Error())
			writeAppError(w, err)
			return
		}
		s.audit(r, "auth.resolve", "success", "tenant_id", auth.TenantID, "user_id", auth.UserID)
		next(w, r, auth)
	})
}

// adminOnly wraps authenticated and additionally requires the caller's role
// be owner or admin.
func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
		if err := validate.RequireRole(auth.Role, domain.RoleOwner, domain.RoleAdmin); err != nil {
			s.audit(r, "auth.role_check", "failure", "user_id", auth.UserID, "role", auth.Role)
			writeAppError(w, err)
			return
		}
		next(w, r, auth)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
