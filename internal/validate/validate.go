// Package validate centralizes cross-tenant foreign-key checks and role
// gating, invoked from handlers before a write.
package validate

import (
	"context"
	"slices"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store"
)

// Validator checks that referenced entities share the caller's tenant and
// that the caller's role permits the action.
type Validator struct {
	store store.Store
}

// New builds a Validator over the metadata store.
func New(s store.Store) *Validator {
	return &Validator{store: s}
}

// BotProfileExists ensures botProfileID names an active-tenant bot owned by
// tenantID, returning InvalidInput otherwise (the caller MAY be a member of
// a different tenant, or the id MAY simply not exist).
func (v *Validator) BotProfileExists(ctx context.Context, tenantID, botProfileID string) error {
	_, ok, err := v.store.GetBotProfile(ctx, botProfileID, tenantID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "validate bot profile", err)
	}
	if !ok {
		return apperr.InvalidInput("bot_profile_id does not reference a bot profile in this tenant")
	}
	return nil
}

// SourceExists ensures sourceID names a source under tenantID.
func (v *Validator) SourceExists(ctx context.Context, tenantID, sourceID string) error {
	_, ok, err := v.store.GetSource(ctx, sourceID, tenantID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "validate source", err)
	}
	if !ok {
		return apperr.InvalidInput("source_id does not reference a source in this tenant")
	}
	return nil
}

// NoSourceCycle ensures setting parentID as newID's parent would not create
// a cycle: parentID's own ancestor chain must not already contain newID.
// newID is empty when creating a brand-new source (never cyclic).
func (v *Validator) NoSourceCycle(ctx context.Context, tenantID, newID, parentID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == newID {
		return apperr.InvalidInput("parent_source_id cannot reference itself")
	}
	ancestors, err := v.store.SourceAncestorIDs(ctx, parentID, tenantID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "validate source ancestry", err)
	}
	if newID != "" && slices.Contains(ancestors, newID) {
		return apperr.InvalidInput("parent_source_id would create a cycle")
	}
	return nil
}

// RequireRole fails with Forbidden unless the caller's role is one of allowed.
func RequireRole(role domain.UserRole, allowed ...domain.UserRole) error {
	if slices.Contains(allowed, role) {
		return nil
	}
	return apperr.Forbidden("caller role does not permit this action")
}

// RequireUserManagement gates user/role management to owner or admin
// callers, and additionally requires owner when the target user's role is,
// or is being changed to, owner.
func RequireUserManagement(callerRole domain.UserRole, targetIsOrBecomesOwner bool) error {
	if err := RequireRole(callerRole, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return err
	}
	if targetIsOrBecomesOwner && callerRole != domain.RoleOwner {
		return apperr.Forbidden("only an owner may change an owner user")
	}
	return nil
}
