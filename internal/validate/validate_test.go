package validate

import (
	"context"
	"testing"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store/memstore"
)

func TestRequireRoleAllows(t *testing.T) {
	if err := RequireRole(domain.RoleAdmin, domain.RoleOwner, domain.RoleAdmin); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestRequireRoleRejects(t *testing.T) {
	err := RequireRole(domain.RoleMember, domain.RoleOwner, domain.RoleAdmin)
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindForbidden {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestRequireUserManagementOwnerTargetNeedsOwnerCaller(t *testing.T) {
	if err := RequireUserManagement(domain.RoleAdmin, true); err == nil {
		t.Fatalf("expected admin to be rejected when target is an owner")
	}
	if err := RequireUserManagement(domain.RoleOwner, true); err != nil {
		t.Fatalf("expected owner caller to succeed, got %v", err)
	}
}

func TestRequireUserManagementMemberRejected(t *testing.T) {
	if err := RequireUserManagement(domain.RoleMember, false); err == nil {
		t.Fatalf("expected member to be rejected from user management entirely")
	}
}

func newTestValidator(t *testing.T) (*Validator, *memstore.Store) {
	t.Helper()
	ms := memstore.New()
	return New(ms), ms
}

func TestBotProfileExistsAcceptsOwnTenant(t *testing.T) {
	v, ms := newTestValidator(t)
	now := time.Now().UTC()
	if err := ms.CreateBotProfile(context.Background(), domain.BotProfile{
		ID: "bot-1", TenantID: "tenant-1", Name: "support", Model: "gemini-1.5-flash",
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}
	if err := v.BotProfileExists(context.Background(), "tenant-1", "bot-1"); err != nil {
		t.Fatalf("expected bot profile to be found, got %v", err)
	}
}

func TestBotProfileExistsRejectsCrossTenant(t *testing.T) {
	v, ms := newTestValidator(t)
	now := time.Now().UTC()
	_ = ms.CreateBotProfile(context.Background(), domain.BotProfile{
		ID: "bot-1", TenantID: "tenant-1", Name: "support", Model: "gemini-1.5-flash",
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
	err := v.BotProfileExists(context.Background(), "tenant-2", "bot-1")
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindInvalidInput {
		t.Fatalf("expected InvalidInput for cross-tenant bot profile, got %v", err)
	}
}

func TestSourceExistsRejectsUnknownID(t *testing.T) {
	v, _ := newTestValidator(t)
	err := v.SourceExists(context.Background(), "tenant-1", "no-such-source")
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindInvalidInput {
		t.Fatalf("expected InvalidInput for unknown source, got %v", err)
	}
}

func TestNoSourceCycleRejectsSelfReference(t *testing.T) {
	v, _ := newTestValidator(t)
	err := v.NoSourceCycle(context.Background(), "tenant-1", "src-1", "src-1")
	if err == nil {
		t.Fatalf("expected self-reference to be rejected")
	}
}

func TestNoSourceCycleRejectsTransitiveCycle(t *testing.T) {
	v, ms := newTestValidator(t)
	now := time.Now().UTC()
	root := domain.Source{ID: "src-root", TenantID: "tenant-1", BotProfileID: "bot-1", SourceType: domain.SourceTypeText, IsActive: true, CreatedAt: now, UpdatedAt: now}
	childID := "src-root"
	mid := domain.Source{ID: "src-mid", TenantID: "tenant-1", BotProfileID: "bot-1", SourceType: domain.SourceTypeText, ParentSourceID: &childID, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := ms.CreateSource(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	if err := ms.CreateSource(context.Background(), mid); err != nil {
		t.Fatal(err)
	}
	// src-root would become a child of src-mid, but src-mid is already a
	// descendant of src-root, so this must be rejected as a cycle.
	if err := v.NoSourceCycle(context.Background(), "tenant-1", "src-root", "src-mid"); err == nil {
		t.Fatalf("expected transitive cycle to be rejected")
	}
}

func TestNoSourceCycleAllowsFreshParent(t *testing.T) {
	v, ms := newTestValidator(t)
	now := time.Now().UTC()
	parent := domain.Source{ID: "src-parent", TenantID: "tenant-1", BotProfileID: "bot-1", SourceType: domain.SourceTypeText, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := ms.CreateSource(context.Background(), parent); err != nil {
		t.Fatal(err)
	}
	if err := v.NoSourceCycle(context.Background(), "tenant-1", "src-new", "src-parent"); err != nil {
		t.Fatalf("expected fresh parent to be accepted, got %v", err)
	}
}
