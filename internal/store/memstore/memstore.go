// Package memstore is an in-memory implementation of store.Store used by
// tests across the codebase so each package does not need its own
// hand-rolled fake of the full metadata interface.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store"
)

// Store is a mutex-guarded, map-backed stand-in for the Postgres store.
type Store struct {
	mu sync.Mutex

	tenants     map[string]domain.Tenant
	users       map[string]domain.User
	apiTokens   map[string]domain.ApiToken
	botProfiles map[string]domain.BotProfile
	sources     map[string]domain.Source
	documents   map[string]domain.Document
	chunks      map[string][]domain.Chunk // keyed by source id
	chats       map[string]domain.Chat
	messages    map[string]domain.Message
	usageEvents []domain.UsageEvent
	webhooks    map[string]domain.Webhook
}

// New builds an empty in-memory store.
func New() *Store {
	return &Store{
		tenants:     make(map[string]domain.Tenant),
		users:       make(map[string]domain.User),
		apiTokens:   make(map[string]domain.ApiToken),
		botProfiles: make(map[string]domain.BotProfile),
		sources:     make(map[string]domain.Source),
		documents:   make(map[string]domain.Document),
		chunks:      make(map[string][]domain.Chunk),
		chats:       make(map[string]domain.Chat),
		messages:    make(map[string]domain.Message),
		webhooks:    make(map[string]domain.Webhook),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) CreateTenant(ctx context.Context, t domain.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tenants {
		if existing.Slug == t.Slug {
			return apperr.Conflict("tenant slug already exists")
		}
	}
	s.tenants[t.ID] = t
	return nil
}

func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (domain.Tenant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.Slug == slug {
			return t, true, nil
		}
	}
	return domain.Tenant{}, false, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (domain.Tenant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	return t, ok, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.TenantID == u.TenantID && existing.Email == u.Email {
			return apperr.Conflict("email already registered in tenant")
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(ctx context.Context, id, tenantID string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.TenantID != tenantID {
		return domain.User{}, false, nil
	}
	return u, true, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, tenantID, email string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TenantID == tenantID && u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *Store) ListUsers(ctx context.Context, tenantID string, filter store.ListFilter) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.User
	for _, u := range s.users {
		if u.TenantID != tenantID {
			continue
		}
		if filter.ActiveOnly && !u.IsActive {
			continue
		}
		out = append(out, u)
	}
	sortByID(out, func(i int) string { return out[i].ID })
	return paginate(out, filter), nil
}

func (s *Store) UpdateUser(ctx context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok || existing.TenantID != u.TenantID {
		return apperr.NotFound("user not found")
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return nil
}

func (s *Store) SoftDeleteUser(ctx context.Context, id, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.TenantID != tenantID {
		return apperr.NotFound("user not found")
	}
	u.IsActive = false
	s.users[id] = u
	return nil
}

func (s *Store) CreateApiToken(ctx context.Context, t domain.ApiToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiTokens[t.ID] = t
	return nil
}

func (s *Store) GetApiTokenByHash(ctx context.Context, hash string) (domain.ApiToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.apiTokens {
		if t.TokenHash == hash {
			return t, true, nil
		}
	}
	return domain.ApiToken{}, false, nil
}

func (s *Store) ListApiTokens(ctx context.Context, tenantID string, filter store.ListFilter) ([]domain.ApiToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ApiToken
	for _, t := range s.apiTokens {
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	return paginate(out, filter), nil
}

func (s *Store) TouchApiToken(ctx context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.apiTokens[id]
	if !ok {
		return nil
	}
	t.LastUsedAt = &usedAt
	s.apiTokens[id] = t
	return nil
}

func (s *Store) RevokeApiToken(ctx context.Context, id, tenantID string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.apiTokens[id]
	if !ok || t.TenantID != tenantID {
		return apperr.NotFound("api token not found")
	}
	t.RevokedAt = &revokedAt
	s.apiTokens[id] = t
	return nil
}

func (s *Store) CreateBotProfile(ctx context.Context, b domain.BotProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.botProfiles[b.ID] = b
	return nil
}

func (s *Store) GetBotProfile(ctx context.Context, id, tenantID string) (domain.BotProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.botProfiles[id]
	if !ok || b.TenantID != tenantID {
		return domain.BotProfile{}, false, nil
	}
	return b, true, nil
}

func (s *Store) ListBotProfiles(ctx context.Context, tenantID string, filter store.ListFilter) ([]domain.BotProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BotProfile
	for _, b := range s.botProfiles {
		if b.TenantID != tenantID {
			continue
		}
		if filter.ActiveOnly && !b.IsActive {
			continue
		}
		out = append(out, b)
	}
	return paginate(out, filter), nil
}

func (s *Store) UpdateBotProfile(ctx context.Context, b domain.BotProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.botProfiles[b.ID]
	if !ok || existing.TenantID != b.TenantID {
		return apperr.NotFound("bot profile not found")
	}
	b.UpdatedAt = time.Now().UTC()
	s.botProfiles[b.ID] = b
	return nil
}

func (s *Store) SoftDeleteBotProfile(ctx context.Context, id, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.botProfiles[id]
	if !ok || b.TenantID != tenantID {
		return apperr.NotFound("bot profile not found")
	}
	b.IsActive = false
	s.botProfiles[id] = b
	return nil
}

func (s *Store) CreateSource(ctx context.Context, src domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID] = src
	return nil
}

func (s *Store) GetSource(ctx context.Context, id, tenantID string) (domain.Source, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok || src.TenantID != tenantID {
		return domain.Source{}, false, nil
	}
	return src, true, nil
}

func (s *Store) ListSources(ctx context.Context, tenantID string, filter store.ListFilter) ([]domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Source
	for _, src := range s.sources {
		if src.TenantID != tenantID {
			continue
		}
		if filter.ActiveOnly && !src.IsActive {
			continue
		}
		out = append(out, src)
	}
	return paginate(out, filter), nil
}

func (s *Store) ListSourcesDueForRefresh(ctx context.Context, asOf time.Time) ([]domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Source
	for _, src := range s.sources {
		if src.DueForRefresh(asOf) {
			out = append(out, src)
		}
	}
	return out, nil
}

func (s *Store) UpdateSource(ctx context.Context, src domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sources[src.ID]
	if !ok || existing.TenantID != src.TenantID {
		return apperr.NotFound("source not found")
	}
	src.UpdatedAt = time.Now().UTC()
	s.sources[src.ID] = src
	return nil
}

func (s *Store) SoftDeleteSource(ctx context.Context, id, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok || src.TenantID != tenantID {
		return apperr.NotFound("source not found")
	}
	src.IsActive = false
	s.sources[id] = src
	return nil
}

func (s *Store) SourceAncestorIDs(ctx context.Context, id, tenantID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ancestors []string
	cur, ok := s.sources[id]
	if !ok || cur.TenantID != tenantID {
		return nil, nil
	}
	seen := map[string]bool{}
	for cur.ParentSourceID != nil {
		parentID := *cur.ParentSourceID
		if seen[parentID] {
			break
		}
		seen[parentID] = true
		ancestors = append(ancestors, parentID)
		next, ok := s.sources[parentID]
		if !ok {
			break
		}
		cur = next
	}
	ancestors = append(ancestors, id)
	return ancestors, nil
}

func (s *Store) CreateDocument(ctx context.Context, d domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.ID] = d
	return nil
}

func (s *Store) ListDocumentsBySource(ctx context.Context, sourceID, tenantID string) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Document
	for _, d := range s.documents {
		if d.SourceID == sourceID && d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) ReplaceChunks(ctx context.Context, tenantID, sourceID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[sourceID] = append([]domain.Chunk(nil), chunks...)
	return nil
}

func (s *Store) ListChunksBySource(ctx context.Context, sourceID, tenantID string) ([]domain.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Chunk
	for _, c := range s.chunks[sourceID] {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) CreateChat(ctx context.Context, c domain.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[c.ID] = c
	return nil
}

func (s *Store) GetChat(ctx context.Context, id, tenantID string) (domain.Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok || c.TenantID != tenantID {
		return domain.Chat{}, false, nil
	}
	return c, true, nil
}

func (s *Store) ListChats(ctx context.Context, tenantID string, filter store.ListFilter) ([]domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Chat
	for _, c := range s.chats {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return paginate(out, filter), nil
}

func (s *Store) IncrementChatUsage(ctx context.Context, chatID, tenantID string, promptTokens, completionTokens int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok || c.TenantID != tenantID {
		return apperr.NotFound("chat not found")
	}
	c.TotalPromptTokens += promptTokens
	c.TotalCompletionTokens += completionTokens
	s.chats[chatID] = c
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ID] = m
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id, tenantID string) (domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.TenantID != tenantID {
		return domain.Message{}, false, nil
	}
	return m, true, nil
}

func (s *Store) ListMessagesByChat(ctx context.Context, chatID, tenantID string, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.ChatID == chatID && m.TenantID == tenantID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SetMessageFeedback(ctx context.Context, id, tenantID string, feedback *domain.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.TenantID != tenantID {
		return apperr.NotFound("message not found")
	}
	m.Feedback = feedback
	s.messages[id] = m
	return nil
}

func (s *Store) CreateUsageEvent(ctx context.Context, u domain.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usageEvents = append(s.usageEvents, u)
	return nil
}

func (s *Store) SumUsageByTenant(ctx context.Context, tenantID string, since time.Time) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var prompt, completion int64
	for _, u := range s.usageEvents {
		if u.TenantID == tenantID && !u.CreatedAt.Before(since) {
			prompt += u.PromptTokens
			completion += u.CompletionTokens
		}
	}
	return prompt, completion, nil
}

func (s *Store) SumUsageByModel(ctx context.Context, tenantID string, since time.Time) (map[string]store.ModelUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]store.ModelUsage)
	for _, u := range s.usageEvents {
		if u.TenantID != tenantID || u.CreatedAt.Before(since) {
			continue
		}
		agg := out[u.Model]
		agg.PromptTokens += u.PromptTokens
		agg.CompletionTokens += u.CompletionTokens
		out[u.Model] = agg
	}
	return out, nil
}

func (s *Store) FeedbackCounts(ctx context.Context, tenantID string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var positive, negative int64
	for _, m := range s.messages {
		if m.TenantID != tenantID || m.Feedback == nil {
			continue
		}
		switch *m.Feedback {
		case domain.FeedbackPositive:
			positive++
		case domain.FeedbackNegative:
			negative++
		}
	}
	return positive, negative, nil
}

func (s *Store) CreateWebhook(ctx context.Context, w domain.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks[w.ID] = w
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, id, tenantID string) (domain.Webhook, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.webhooks[id]
	if !ok || w.TenantID != tenantID {
		return domain.Webhook{}, false, nil
	}
	return w, true, nil
}

func (s *Store) ListWebhooks(ctx context.Context, tenantID string, filter store.ListFilter) ([]domain.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Webhook
	for _, w := range s.webhooks {
		if w.TenantID == tenantID {
			out = append(out, w)
		}
	}
	return paginate(out, filter), nil
}

func (s *Store) ListActiveWebhooksForEvent(ctx context.Context, tenantID string, event domain.WebhookEvent) ([]domain.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Webhook
	for _, w := range s.webhooks {
		if w.TenantID == tenantID && w.IsActive && w.Subscribes(event) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) SoftDeleteWebhook(ctx context.Context, id, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.webhooks[id]
	if !ok || w.TenantID != tenantID {
		return apperr.NotFound("webhook not found")
	}
	w.IsActive = false
	s.webhooks[id] = w
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func sortByID[T any](items []T, key func(i int) string) {
	sort.Slice(items, func(i, j int) bool { return key(i) < key(j) })
}

func paginate[T any](items []T, filter store.ListFilter) []T {
	if filter.Offset > 0 {
		if filter.Offset >= len(items) {
			return nil
		}
		items = items[filter.Offset:]
	}
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items
}
