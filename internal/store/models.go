package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models for the metadata store. Vector state lives in a separate
// collection owned by internal/vectorstore; Chunk here is the metadata
// row, not the embedding.
type TenantModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Slug      string `gorm:"uniqueIndex;not null"`
	Plan      string `gorm:"not null"`
	Status    string `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type UserModel struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string `gorm:"not null;uniqueIndex:idx_user_tenant_email,priority:1"`
	Email        string `gorm:"not null;uniqueIndex:idx_user_tenant_email,priority:2"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	IsActive     bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type ApiTokenModel struct {
	ID         string `gorm:"primaryKey"`
	TenantID   string `gorm:"not null;index"`
	UserID     string `gorm:"not null;index"`
	Name       string `gorm:"not null"`
	TokenHash  string `gorm:"uniqueIndex;not null"`
	LastUsedAt *time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

type BotProfileModel struct {
	ID                   string `gorm:"primaryKey"`
	TenantID             string `gorm:"not null;index"`
	Name                 string `gorm:"not null"`
	Model                string `gorm:"not null"`
	SystemPrompt         string `gorm:"type:text"`
	Temperature          float64
	MaxTokens            int
	EncryptedCredentials []byte
	IsActive             bool `gorm:"not null;default:true"`
	CreatedAt            time.Time `gorm:"not null"`
	UpdatedAt            time.Time `gorm:"not null"`
}

type SourceModel struct {
	ID              string  `gorm:"primaryKey"`
	TenantID        string  `gorm:"not null;index"`
	BotProfileID    string  `gorm:"not null;index"`
	ParentSourceID  *string `gorm:"index"`
	SourceType      string  `gorm:"not null"`
	Status          string  `gorm:"not null;index"`
	Content         string  `gorm:"type:text"`
	Config          string  `gorm:"type:text"`
	RefreshSchedule string  `gorm:"not null"`
	LastRefreshedAt *time.Time
	LastError       string `gorm:"type:text"`
	DocumentCount   int
	ChunkCount      int
	IsActive        bool `gorm:"not null;default:true"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type DocumentModel struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"not null;index"`
	SourceID  string `gorm:"not null;index"`
	Content   string `gorm:"type:text"`
	CharCount int
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type ChunkModel struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string `gorm:"not null;index"`
	DocumentID   string `gorm:"not null;index"`
	SourceID     string `gorm:"not null;index"`
	BotProfileID string `gorm:"not null;index"`
	Ordinal      int
	Content      string `gorm:"type:text"`
	VectorID     string `gorm:"not null;uniqueIndex"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type ChatModel struct {
	ID                    string `gorm:"primaryKey"`
	TenantID              string `gorm:"not null;index"`
	BotProfileID          string `gorm:"not null;index"`
	UserID                string `gorm:"not null;index"`
	Title                 string
	TotalPromptTokens     int64
	TotalCompletionTokens int64
	CreatedAt             time.Time `gorm:"not null"`
	UpdatedAt             time.Time `gorm:"not null"`
}

type MessageModel struct {
	ID               string `gorm:"primaryKey"`
	ChatID           string `gorm:"not null;index"`
	TenantID         string `gorm:"not null;index"`
	Role             string `gorm:"not null"`
	Content          string `gorm:"type:text"`
	ContextChunks    string `gorm:"type:text"`
	Feedback         *string
	PromptTokens     int64
	CompletionTokens int64
	CreatedAt        time.Time `gorm:"not null;index"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type UsageEventModel struct {
	ID                 string `gorm:"primaryKey"`
	TenantID           string `gorm:"not null;index"`
	ChatID             string `gorm:"not null;index"`
	MessageID          string `gorm:"not null;index"`
	Model              string `gorm:"not null"`
	PromptTokens       int64
	CompletionTokens   int64
	IsStream           bool
	TimeToFirstTokenMs int64
	StreamDurationMs   int64
	CreatedAt          time.Time `gorm:"not null;index"`
}

type WebhookModel struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"not null;index"`
	URL       string         `gorm:"not null"`
	Secret    string         `gorm:"not null"`
	Events    datatypes.JSON `gorm:"type:jsonb"`
	IsActive  bool           `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
