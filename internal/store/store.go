package store

import (
	"context"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
)

// ListFilter narrows a tenant-scoped list query.
type ListFilter struct {
	Limit  int
	Offset int
	// ActiveOnly hides soft-deleted rows, matching the default for list endpoints.
	ActiveOnly bool
}

// Store is the tenant-aware metadata persistence boundary. It is the source
// of truth for every entity's lifecycle; the vector store holds rebuildable
// derived state. Every method other than tenant bootstrap, the token
// lookups (GetApiTokenByHash, TouchApiToken), the scheduler's cross-tenant
// ListSourcesDueForRefresh, and Ping takes a tenantID and MUST filter by it.
type Store interface {
	CreateTenant(ctx context.Context, t domain.Tenant) error
	GetTenantBySlug(ctx context.Context, slug string) (domain.Tenant, bool, error)
	GetTenant(ctx context.Context, id string) (domain.Tenant, bool, error)

	CreateUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, id, tenantID string) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, tenantID, email string) (domain.User, bool, error)
	ListUsers(ctx context.Context, tenantID string, filter ListFilter) ([]domain.User, error)
	UpdateUser(ctx context.Context, u domain.User) error
	SoftDeleteUser(ctx context.Context, id, tenantID string) error

	CreateApiToken(ctx context.Context, t domain.ApiToken) error
	GetApiTokenByHash(ctx context.Context, hash string) (domain.ApiToken, bool, error)
	ListApiTokens(ctx context.Context, tenantID string, filter ListFilter) ([]domain.ApiToken, error)
	TouchApiToken(ctx context.Context, id string, usedAt time.Time) error
	RevokeApiToken(ctx context.Context, id, tenantID string, revokedAt time.Time) error

	CreateBotProfile(ctx context.Context, b domain.BotProfile) error
	GetBotProfile(ctx context.Context, id, tenantID string) (domain.BotProfile, bool, error)
	ListBotProfiles(ctx context.Context, tenantID string, filter ListFilter) ([]domain.BotProfile, error)
	UpdateBotProfile(ctx context.Context, b domain.BotProfile) error
	SoftDeleteBotProfile(ctx context.Context, id, tenantID string) error

	CreateSource(ctx context.Context, s domain.Source) error
	GetSource(ctx context.Context, id, tenantID string) (domain.Source, bool, error)
	ListSources(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Source, error)
	ListSourcesDueForRefresh(ctx context.Context, asOf time.Time) ([]domain.Source, error)
	UpdateSource(ctx context.Context, s domain.Source) error
	SoftDeleteSource(ctx context.Context, id, tenantID string) error
	SourceAncestorIDs(ctx context.Context, id, tenantID string) ([]string, error)

	CreateDocument(ctx context.Context, d domain.Document) error
	ListDocumentsBySource(ctx context.Context, sourceID, tenantID string) ([]domain.Document, error)

	ReplaceChunks(ctx context.Context, tenantID, sourceID string, chunks []domain.Chunk) error
	ListChunksBySource(ctx context.Context, sourceID, tenantID string) ([]domain.Chunk, error)

	CreateChat(ctx context.Context, c domain.Chat) error
	GetChat(ctx context.Context, id, tenantID string) (domain.Chat, bool, error)
	ListChats(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Chat, error)
	IncrementChatUsage(ctx context.Context, chatID, tenantID string, promptTokens, completionTokens int64) error

	CreateMessage(ctx context.Context, m domain.Message) error
	GetMessage(ctx context.Context, id, tenantID string) (domain.Message, bool, error)
	ListMessagesByChat(ctx context.Context, chatID, tenantID string, limit int) ([]domain.Message, error)
	SetMessageFeedback(ctx context.Context, id, tenantID string, feedback *domain.Feedback) error

	CreateUsageEvent(ctx context.Context, u domain.UsageEvent) error
	SumUsageByTenant(ctx context.Context, tenantID string, since time.Time) (promptTokens, completionTokens int64, err error)
	SumUsageByModel(ctx context.Context, tenantID string, since time.Time) (map[string]ModelUsage, error)
	FeedbackCounts(ctx context.Context, tenantID string) (positive, negative int64, err error)

	CreateWebhook(ctx context.Context, w domain.Webhook) error
	GetWebhook(ctx context.Context, id, tenantID string) (domain.Webhook, bool, error)
	ListWebhooks(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Webhook, error)
	ListActiveWebhooksForEvent(ctx context.Context, tenantID string, event domain.WebhookEvent) ([]domain.Webhook, error)
	SoftDeleteWebhook(ctx context.Context, id, tenantID string) error

	// Ping verifies connectivity for the system health endpoint.
	Ping(ctx context.Context) error
}

// ModelUsage aggregates token usage for one model, for cost reporting.
type ModelUsage struct {
	PromptTokens     int64
	CompletionTokens int64
}
