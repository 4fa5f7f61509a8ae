package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
)

const migrateLockID int64 = 8817231

// PostgresStore implements Store using GORM over Postgres.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore opens the database and runs auto-migrations under an
// advisory lock so multiple gateway/worker replicas booting concurrently
// don't race on schema changes.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	gormLog := gormlogger.New(
		slogWriter{},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&TenantModel{}, &UserModel{}, &ApiTokenModel{}, &BotProfileModel{},
			&SourceModel{}, &DocumentModel{}, &ChunkModel{}, &ChatModel{},
			&MessageModel{}, &UsageEventModel{}, &WebhookModel{},
		)
	}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

// slogWriter adapts gorm's logger.Writer interface to log/slog.
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	slog.Warn("gorm", "message", fmt.Sprintf(format, args...))
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) CreateTenant(ctx context.Context, t domain.Tenant) error {
	model := tenantToModel(t)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *PostgresStore) GetTenantBySlug(ctx context.Context, slug string) (domain.Tenant, bool, error) {
	var model TenantModel
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Tenant{}, false, nil
		}
		return domain.Tenant{}, false, err
	}
	return tenantFromModel(model), true, nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id string) (domain.Tenant, bool, error) {
	var model TenantModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Tenant{}, false, nil
		}
		return domain.Tenant{}, false, err
	}
	return tenantFromModel(model), true, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *PostgresStore) GetUser(ctx context.Context, id, tenantID string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, tenantID, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "tenant_id = ? AND email = ?", tenantID, email).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context, tenantID string, filter ListFilter) ([]domain.User, error) {
	tx := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	tx = applyFilter(tx, filter)
	var models []UserModel
	if err := tx.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(models))
	for _, m := range models {
		out = append(out, userFromModel(m))
	}
	return out, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	return s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ? AND tenant_id = ?", u.ID, u.TenantID).
		Updates(map[string]any{
			"email": model.Email, "password_hash": model.PasswordHash, "role": model.Role,
			"is_active": model.IsActive, "updated_at": time.Now().UTC(),
		}).Error
}

func (s *PostgresStore) SoftDeleteUser(ctx context.Context, id, tenantID string) error {
	return s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()}).Error
}

func (s *PostgresStore) CreateApiToken(ctx context.Context, t domain.ApiToken) error {
	model := apiTokenToModel(t)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *PostgresStore) GetApiTokenByHash(ctx context.Context, hash string) (domain.ApiToken, bool, error) {
	var model ApiTokenModel
	if err := s.db.WithContext(ctx).First(&model, "token_hash = ? AND revoked_at IS NULL", hash).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ApiToken{}, false, nil
		}
		return domain.ApiToken{}, false, err
	}
	return apiTokenFromModel(model), true, nil
}

func (s *PostgresStore) ListApiTokens(ctx context.Context, tenantID string, filter ListFilter) ([]domain.ApiToken, error) {
	tx := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.ActiveOnly {
		tx = tx.Where("revoked_at IS NULL")
	}
	tx = applyLimitOffset(tx, filter)
	var models []ApiTokenModel
	if err := tx.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ApiToken, 0, len(models))
	for _, m := range models {
		out = append(out, apiTokenFromModel(m))
	}
	return out, nil
}

func (s *PostgresStore) TouchApiToken(ctx context.Context, id string, usedAt time.Time) error {
	return s.db.WithContext(ctx).Model(&ApiTokenModel{}).Where("id = ?", id).
		Update("last_used_at", usedAt).Error
}

func (s *PostgresStore) RevokeApiToken(ctx context.Context, id, tenantID string, revokedAt time.Time) error {
	return s.db.WithContext(ctx).Model(&ApiTokenModel{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("revoked_at", revokedAt).Error
}

func (s *PostgresStore) CreateBotProfile(ctx context.Context, b domain.BotProfile) error {
	model := botProfileToModel(b)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *PostgresStore) GetBotProfile(ctx context.Context, id, tenantID string) (domain.BotProfile, bool, error) {
	var model BotProfileModel
	if err := s.db.WithContext(ctx).First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.BotProfile{}, false, nil
		}
		return domain.BotProfile{}, false, err
	}
	return botProfileFromModel(model), true, nil
}

func (s *PostgresStore) ListBotProfiles(ctx context.Context, tenantID string, filter ListFilter) ([]domain.BotProfile, error) {
	tx := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}
	tx = applyLimitOffset(tx, filter)
	var models []BotProfileModel
	if err := tx.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.BotProfile, 0, len(models))
	for _, m := range models {
		out = append(out, botProfileFromModel(m))
	}
	return out, nil
}

func (s *PostgresStore) UpdateBotProfile(ctx context.Context, b domain.BotProfile) error {
	model := botProfileToModel(b)
	return s.db.WithContext(ctx).Model(&BotProfileModel{}).
		Where("id = ? AND tenant_id = ?", b.ID, b.TenantID).
		Updates(map[string]any{
			"name": model.Name, "model": model.Model, "system_prompt": model.SystemPrompt,
			"temperature": model.Temperature, "max_tokens": model.MaxTokens,
			"encrypted_credentials": model.EncryptedCredentials, "is_active": model.IsActive,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *PostgresStore) SoftDeleteBotProfile(ctx context.Context, id, tenantID string) error {
	return s.db.WithContext(ctx).Model(&BotProfileModel{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()}).Error
}

func (s *PostgresStore) CreateSource(ctx context.Context, src domain.Source) error {
	model := sourceToModel(src)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *PostgresStore) GetSource(ctx context.Context, id, tenantID string) (domain.Source, bool, error) {
	var model SourceModel
	if err := s.db.WithContext(ctx).First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Source{}, false, nil
		}
		return domain.Source{}, false, err
	}
	return sourceFromModel(model), true, nil
}

func (s *PostgresStore) ListSources(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Source, error) {
	tx := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}
	tx = applyLimitOffset(tx, filter)
	var models []SourceModel
	if err := tx.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Source, 0, len(models))
	for _, m := range models {
		out = append(out, sourceFromModel(m))
	}
	return out, nil
}

// ListSourcesDueForRefresh returns every active, non-processing source
// whose schedule makes it eligible for re-ingestion as of asOf. The
// interval arithmetic happens in Go (domain.Source.DueForRefresh) rather
// than SQL so the scheduler and the tests share one definition of "due".
func (s *PostgresStore) ListSourcesDueForRefresh(ctx context.Context, asOf time.Time) ([]domain.Source, error) {
	var models []SourceModel
	if err := s.db.WithContext(ctx).
		Where("is_active = ? AND refresh_schedule <> ? AND status <> ?", true, string(domain.RefreshNone), string(domain.SourceStatusProcessing)).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Source, 0)
	for _, m := range models {
		src := sourceFromModel(m)
		if src.DueForRefresh(asOf) {
			out = append(out, src)
		}
	}
	return out, nil
}

func (s *PostgresStore) UpdateSource(ctx context.Context, src domain.Source) error {
	model := sourceToModel(src)
	return s.db.WithContext(ctx).Model(&SourceModel{}).
		Where("id = ? AND tenant_id = ?", src.ID, src.TenantID).
		Updates(map[string]any{
			"bot_profile_id": model.BotProfileID, "parent_source_id": model.ParentSourceID,
			"source_type": model.SourceType, "status": model.Status, "content": model.Content,
			"config": model.Config, "refresh_schedule": model.RefreshSchedule,
			"last_refreshed_at": model.LastRefreshedAt, "last_error": model.LastError,
			"document_count": model.DocumentCount, "chunk_count": model.ChunkCount,
			"is_active": model.IsActive, "updated_at": time.Now().UTC(),
		}).Error
}

func (s *PostgresStore) SoftDeleteSource(ctx context.Context, id, tenantID string) error {
	return s.db.WithContext(ctx).Model(&SourceModel{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()}).Error
}

// SourceAncestorIDs walks parent_source_id up to the root, used to reject
// a batch-create that would introduce a cycle.
func (s *PostgresStore) SourceAncestorIDs(ctx context.Context, id, tenantID string) ([]string, error) {
	var ancestors []string
	current := id
	for i := 0; i < 64; i++ {
		var model SourceModel
		err := s.db.WithContext(ctx).First(&model, "id = ? AND tenant_id = ?", current, tenantID).Error
		if err == gorm.ErrRecordNotFound {
			break
		}
		if err != nil {
			return nil, err
		}
		ancestors = append(ancestors, model.ID)
		if model.ParentSourceID == nil {
			break
		}
		current = *model.ParentSourceID
	}
	return ancestors, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, d domain.Document) error {
	model := documentToModel(d)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *PostgresStore) ListDocumentsBySource(ctx context.Context, sourceID, tenantID string) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.WithContext(ctx).
		Where("source_id = ? AND tenant_id = ?", sourceID, tenantID).
		Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Document, 0, len(models))
	for _, m := range models {
		out = append(out, documentFromModel(m))
	}
	return out, nil
}

// ReplaceChunks deletes the source's existing chunk rows and inserts the
// new set in a single transaction, mirroring the vector store's
// delete-then-insert so metadata and vectors never observe a mixed
// generation of the source's chunks.
func (s *PostgresStore) ReplaceChunks(ctx context.Context, tenantID, sourceID string, chunks []domain.Chunk) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChunkModel{}, "source_id = ? AND tenant_id = ?", sourceID, tenantID).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		models := make([]ChunkModel, 0, len(chunks))
		for _, c := range chunks {
			models = append(models, chunkToModel(c))
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&models, 128).Error
	})
}

func (s *PostgresStore) ListChunksBySource(ctx context.Context, sourceID, tenantID string) ([]domain.Chunk, error) {
	var models []ChunkModel
	if err := s.db.WithContext(ctx).
		Where("source_id = ? AND tenant_id = ?", sourceID, tenantID).
		Order("ordinal ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Chunk, 0, len(models))
	for _, m := range models {
		out = append(out, chunkFromModel(m))
	}
	return out, nil
}

func (s *PostgresStore) CreateChat(ctx context.Context, c domain.Chat) error {
	model := chatToModel(c)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *PostgresStore) GetChat(ctx context.Context, id, tenantID string) (domain.Chat, bool, error) {
	var model ChatModel
	if err := s.db.WithContext(ctx).First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Chat{}, false, nil
		}
		return domain.Chat{}, false, err
	}
	return chatFromModel(model), true, nil
}

func (s *PostgresStore) ListChats(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Chat, error) {
	tx := applyLimitOffset(s.db.WithContext(ctx).Where("tenant_id = ?", tenantID), filter)
	var models []ChatModel
	if err := tx.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Chat, 0, len(models))
	for _, m := range models {
		out = append(out, chatFromModel(m))
	}
	return out, nil
}

func (s *PostgresStore) IncrementChatUsage(ctx context.Context, chatID, tenantID string, promptTokens, completionTokens int64) error {
	return s.db.WithContext(ctx).Model(&ChatModel{}).
		Where("id = ? AND tenant_id = ?", chatID, tenantID).
		Updates(map[string]any{
			"total_prompt_tokens":     gorm.Expr("total_prompt_tokens + ?", promptTokens),
			"total_completion_tokens": gorm.Expr("total_completion_tokens + ?", completionTokens),
			"updated_at":              time.Now().UTC(),
		}).Error
}

func (s *PostgresStore) CreateMessage(ctx context.Context, m domain.Message) error {
	model := messageToModel(m)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *PostgresStore) GetMessage(ctx context.Context, id, tenantID string) (domain.Message, bool, error) {
	var model MessageModel
	if err := s.db.WithContext(ctx).First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, err
	}
	return messageFromModel(model), true, nil
}

func (s *PostgresStore) ListMessagesByChat(ctx context.Context, chatID, tenantID string, limit int) ([]domain.Message, error) {
	tx := s.db.WithContext(ctx).Where("chat_id = ? AND tenant_id = ?", chatID, tenantID).Order("created_at ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var models []MessageModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(models))
	for _, m := range models {
		out = append(out, messageFromModel(m))
	}
	return out, nil
}

func (s *PostgresStore) SetMessageFeedback(ctx context.Context, id, tenantID string, feedback *domain.Feedback) error {
	var value any
	if feedback != nil {
		value = string(*feedback)
	}
	return s.db.WithContext(ctx).Model(&MessageModel{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(map[string]any{"feedback": value, "updated_at": time.Now().UTC()}).Error
}

func (s *PostgresStore) CreateUsageEvent(ctx context.Context, u domain.UsageEvent) error {
	model := usageEventToModel(u)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *PostgresStore) SumUsageByTenant(ctx context.Context, tenantID string, since time.Time) (int64, int64, error) {
	var row struct {
		PromptTokens     int64
		CompletionTokens int64
	}
	err := s.db.WithContext(ctx).Model(&UsageEventModel{}).
		Select("COALESCE(SUM(prompt_tokens),0) AS prompt_tokens, COALESCE(SUM(completion_tokens),0) AS completion_tokens").
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Scan(&row).Error
	return row.PromptTokens, row.CompletionTokens, err
}

func (s *PostgresStore) SumUsageByModel(ctx context.Context, tenantID string, since time.Time) (map[string]ModelUsage, error) {
	var rows []struct {
		Model            string
		PromptTokens     int64
		CompletionTokens int64
	}
	if err := s.db.WithContext(ctx).Model(&UsageEventModel{}).
		Select("model, COALESCE(SUM(prompt_tokens),0) AS prompt_tokens, COALESCE(SUM(completion_tokens),0) AS completion_tokens").
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Group("model").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]ModelUsage, len(rows))
	for _, r := range rows {
		out[r.Model] = ModelUsage{PromptTokens: r.PromptTokens, CompletionTokens: r.CompletionTokens}
	}
	return out, nil
}

func (s *PostgresStore) FeedbackCounts(ctx context.Context, tenantID string) (int64, int64, error) {
	var positive, negative int64
	if err := s.db.WithContext(ctx).Model(&MessageModel{}).
		Where("tenant_id = ? AND feedback = ?", tenantID, string(domain.FeedbackPositive)).
		Count(&positive).Error; err != nil {
		return 0, 0, err
	}
	if err := s.db.WithContext(ctx).Model(&MessageModel{}).
		Where("tenant_id = ? AND feedback = ?", tenantID, string(domain.FeedbackNegative)).
		Count(&negative).Error; err != nil {
		return 0, 0, err
	}
	return positive, negative, nil
}

func (s *PostgresStore) CreateWebhook(ctx context.Context, w domain.Webhook) error {
	model := webhookToModel(w)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *PostgresStore) GetWebhook(ctx context.Context, id, tenantID string) (domain.Webhook, bool, error) {
	var model WebhookModel
	if err := s.db.WithContext(ctx).First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Webhook{}, false, nil
		}
		return domain.Webhook{}, false, err
	}
	return webhookFromModel(model), true, nil
}

func (s *PostgresStore) ListWebhooks(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Webhook, error) {
	tx := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}
	tx = applyLimitOffset(tx, filter)
	var models []WebhookModel
	if err := tx.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Webhook, 0, len(models))
	for _, m := range models {
		out = append(out, webhookFromModel(m))
	}
	return out, nil
}

func (s *PostgresStore) ListActiveWebhooksForEvent(ctx context.Context, tenantID string, event domain.WebhookEvent) ([]domain.Webhook, error) {
	var models []WebhookModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Webhook, 0, len(models))
	for _, m := range models {
		w := webhookFromModel(m)
		if w.Subscribes(event) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *PostgresStore) SoftDeleteWebhook(ctx context.Context, id, tenantID string) error {
	return s.db.WithContext(ctx).Model(&WebhookModel{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()}).Error
}

func applyFilter(tx *gorm.DB, filter ListFilter) *gorm.DB {
	if filter.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}
	return applyLimitOffset(tx, filter)
}

func applyLimitOffset(tx *gorm.DB, filter ListFilter) *gorm.DB {
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		tx = tx.Offset(filter.Offset)
	}
	return tx
}
