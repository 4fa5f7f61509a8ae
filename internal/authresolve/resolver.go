// Package authresolve dispatches an incoming credential (signed session or
// opaque API token) to the entity it authenticates, failing closed on any
// inactive user or tenant.
package authresolve

import (
	"context"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/crypto"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store"
)

// AuthContext identifies the caller a credential resolved to.
type AuthContext struct {
	TenantID string
	UserID   string
	Role     domain.UserRole
}

// Resolver turns a bearer credential into an AuthContext.
type Resolver struct {
	signer *crypto.SessionSigner
	store  store.Store
}

// New builds a Resolver.
func New(signer *crypto.SessionSigner, s store.Store) *Resolver {
	return &Resolver{signer: signer, store: s}
}

// Resolve implements the §4.5 dispatch rule: a credential containing "."
// is treated as a signed session; everything else is an opaque API token.
// Inactive users or tenants fail closed with Unauthenticated, matching the
// "don't distinguish signature vs. expiry" requirement except the explicit
// expired case.
func (r *Resolver) Resolve(ctx context.Context, credential string) (AuthContext, error) {
	if crypto.LooksLikeSessionToken(credential) {
		return r.resolveSession(ctx, credential)
	}
	return r.resolveOpaqueToken(ctx, credential)
}

func (r *Resolver) resolveSession(ctx context.Context, raw string) (AuthContext, error) {
	claims, err := r.signer.Verify(raw)
	if err != nil {
		if err == crypto.ErrSessionExpired {
			return AuthContext{}, apperr.Unauthenticated("session expired")
		}
		return AuthContext{}, apperr.Unauthenticated("invalid session")
	}
	return r.finalize(ctx, claims.TenantID, claims.UserID)
}

func (r *Resolver) resolveOpaqueToken(ctx context.Context, raw string) (AuthContext, error) {
	hash := crypto.HashOpaqueToken(raw)
	token, ok, err := r.store.GetApiTokenByHash(ctx, hash)
	if err != nil {
		return AuthContext{}, apperr.Wrap(apperr.KindInternal, "resolve api token", err)
	}
	if !ok || token.IsRevoked() {
		return AuthContext{}, apperr.Unauthenticated("invalid token")
	}
	authCtx, err := r.finalize(ctx, token.TenantID, token.UserID)
	if err != nil {
		return AuthContext{}, err
	}
	_ = r.store.TouchApiToken(ctx, token.ID, time.Now().UTC())
	return authCtx, nil
}

func (r *Resolver) finalize(ctx context.Context, tenantID, userID string) (AuthContext, error) {
	tenant, ok, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		return AuthContext{}, apperr.Wrap(apperr.KindInternal, "resolve tenant", err)
	}
	if !ok || !tenant.IsActive() {
		return AuthContext{}, apperr.Unauthenticated("invalid token")
	}
	user, ok, err := r.store.GetUser(ctx, userID, tenantID)
	if err != nil {
		return AuthContext{}, apperr.Wrap(apperr.KindInternal, "resolve user", err)
	}
	if !ok || !user.IsActive {
		return AuthContext{}, apperr.Unauthenticated("invalid token")
	}
	return AuthContext{TenantID: tenantID, UserID: userID, Role: user.Role}, nil
}
