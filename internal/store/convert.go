package store

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
)

func tenantToModel(t domain.Tenant) TenantModel {
	return TenantModel{
		ID: t.ID, Name: t.Name, Slug: t.Slug, Plan: t.Plan,
		Status: string(t.Status), CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

func tenantFromModel(m TenantModel) domain.Tenant {
	return domain.Tenant{
		ID: m.ID, Name: m.Name, Slug: m.Slug, Plan: m.Plan,
		Status: domain.TenantStatus(m.Status), CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID: u.ID, TenantID: u.TenantID, Email: u.Email, PasswordHash: u.PasswordHash,
		Role: string(u.Role), IsActive: u.IsActive, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID: m.ID, TenantID: m.TenantID, Email: m.Email, PasswordHash: m.PasswordHash,
		Role: domain.UserRole(m.Role), IsActive: m.IsActive, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func apiTokenToModel(a domain.ApiToken) ApiTokenModel {
	return ApiTokenModel{
		ID: a.ID, TenantID: a.TenantID, UserID: a.UserID, Name: a.Name, TokenHash: a.TokenHash,
		LastUsedAt: a.LastUsedAt, RevokedAt: a.RevokedAt, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func apiTokenFromModel(m ApiTokenModel) domain.ApiToken {
	return domain.ApiToken{
		ID: m.ID, TenantID: m.TenantID, UserID: m.UserID, Name: m.Name, TokenHash: m.TokenHash,
		LastUsedAt: m.LastUsedAt, RevokedAt: m.RevokedAt, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func botProfileToModel(b domain.BotProfile) BotProfileModel {
	return BotProfileModel{
		ID: b.ID, TenantID: b.TenantID, Name: b.Name, Model: b.Model, SystemPrompt: b.SystemPrompt,
		Temperature: b.Temperature, MaxTokens: b.MaxTokens, EncryptedCredentials: b.EncryptedCredentials,
		IsActive: b.IsActive, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
	}
}

func botProfileFromModel(m BotProfileModel) domain.BotProfile {
	return domain.BotProfile{
		ID: m.ID, TenantID: m.TenantID, Name: m.Name, Model: m.Model, SystemPrompt: m.SystemPrompt,
		Temperature: m.Temperature, MaxTokens: m.MaxTokens, EncryptedCredentials: m.EncryptedCredentials,
		IsActive: m.IsActive, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func sourceToModel(s domain.Source) SourceModel {
	return SourceModel{
		ID: s.ID, TenantID: s.TenantID, BotProfileID: s.BotProfileID, ParentSourceID: s.ParentSourceID,
		SourceType: string(s.SourceType), Status: string(s.Status), Content: s.Content, Config: s.Config,
		RefreshSchedule: string(s.RefreshSchedule), LastRefreshedAt: s.LastRefreshedAt, LastError: s.LastError,
		DocumentCount: s.DocumentCount, ChunkCount: s.ChunkCount, IsActive: s.IsActive,
		CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
}

func sourceFromModel(m SourceModel) domain.Source {
	return domain.Source{
		ID: m.ID, TenantID: m.TenantID, BotProfileID: m.BotProfileID, ParentSourceID: m.ParentSourceID,
		SourceType: domain.SourceType(m.SourceType), Status: domain.SourceStatus(m.Status), Content: m.Content,
		Config: m.Config, RefreshSchedule: domain.RefreshSchedule(m.RefreshSchedule),
		LastRefreshedAt: m.LastRefreshedAt, LastError: m.LastError, DocumentCount: m.DocumentCount,
		ChunkCount: m.ChunkCount, IsActive: m.IsActive, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID: d.ID, TenantID: d.TenantID, SourceID: d.SourceID, Content: d.Content,
		CharCount: d.CharCount, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID: m.ID, TenantID: m.TenantID, SourceID: m.SourceID, Content: m.Content,
		CharCount: m.CharCount, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func chunkToModel(c domain.Chunk) ChunkModel {
	return ChunkModel{
		ID: c.ID, TenantID: c.TenantID, DocumentID: c.DocumentID, SourceID: c.SourceID,
		BotProfileID: c.BotProfileID, Ordinal: c.Ordinal, Content: c.Content, VectorID: c.VectorID,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func chunkFromModel(m ChunkModel) domain.Chunk {
	return domain.Chunk{
		ID: m.ID, TenantID: m.TenantID, DocumentID: m.DocumentID, SourceID: m.SourceID,
		BotProfileID: m.BotProfileID, Ordinal: m.Ordinal, Content: m.Content, VectorID: m.VectorID,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func chatToModel(c domain.Chat) ChatModel {
	return ChatModel{
		ID: c.ID, TenantID: c.TenantID, BotProfileID: c.BotProfileID, UserID: c.UserID, Title: c.Title,
		TotalPromptTokens: c.TotalPromptTokens, TotalCompletionTokens: c.TotalCompletionTokens,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func chatFromModel(m ChatModel) domain.Chat {
	return domain.Chat{
		ID: m.ID, TenantID: m.TenantID, BotProfileID: m.BotProfileID, UserID: m.UserID, Title: m.Title,
		TotalPromptTokens: m.TotalPromptTokens, TotalCompletionTokens: m.TotalCompletionTokens,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func messageToModel(m domain.Message) MessageModel {
	var feedback *string
	if m.Feedback != nil {
		v := string(*m.Feedback)
		feedback = &v
	}
	return MessageModel{
		ID: m.ID, ChatID: m.ChatID, TenantID: m.TenantID, Role: string(m.Role), Content: m.Content,
		ContextChunks: m.ContextChunks, Feedback: feedback, PromptTokens: m.PromptTokens,
		CompletionTokens: m.CompletionTokens, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	var feedback *domain.Feedback
	if m.Feedback != nil {
		v := domain.Feedback(*m.Feedback)
		feedback = &v
	}
	return domain.Message{
		ID: m.ID, ChatID: m.ChatID, TenantID: m.TenantID, Role: domain.MessageRole(m.Role), Content: m.Content,
		ContextChunks: m.ContextChunks, Feedback: feedback, PromptTokens: m.PromptTokens,
		CompletionTokens: m.CompletionTokens, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func usageEventToModel(u domain.UsageEvent) UsageEventModel {
	return UsageEventModel{
		ID: u.ID, TenantID: u.TenantID, ChatID: u.ChatID, MessageID: u.MessageID, Model: u.Model,
		PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, IsStream: u.IsStream,
		TimeToFirstTokenMs: u.TimeToFirstTokenMs, StreamDurationMs: u.StreamDurationMs, CreatedAt: u.CreatedAt,
	}
}

func usageEventFromModel(m UsageEventModel) domain.UsageEvent {
	return domain.UsageEvent{
		ID: m.ID, TenantID: m.TenantID, ChatID: m.ChatID, MessageID: m.MessageID, Model: m.Model,
		PromptTokens: m.PromptTokens, CompletionTokens: m.CompletionTokens, IsStream: m.IsStream,
		TimeToFirstTokenMs: m.TimeToFirstTokenMs, StreamDurationMs: m.StreamDurationMs, CreatedAt: m.CreatedAt,
	}
}

func webhookToModel(w domain.Webhook) WebhookModel {
	events, _ := json.Marshal(w.Events)
	return WebhookModel{
		ID: w.ID, TenantID: w.TenantID, URL: w.URL, Secret: w.Secret,
		Events: datatypes.JSON(events), IsActive: w.IsActive, CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt,
	}
}

func webhookFromModel(m WebhookModel) domain.Webhook {
	var events []string
	if len(m.Events) > 0 {
		_ = json.Unmarshal(m.Events, &events)
	}
	return domain.Webhook{
		ID: m.ID, TenantID: m.TenantID, URL: m.URL, Secret: m.Secret,
		Events: events, IsActive: m.IsActive, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}
