package domain

import "time"

type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "active"
	TenantStatusDisabled TenantStatus = "disabled"
)

type UserRole string

const (
	RoleOwner  UserRole = "owner"
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

type SourceType string

const (
	SourceTypeText   SourceType = "text"
	SourceTypeUpload SourceType = "upload"
	SourceTypeURL    SourceType = "url"
)

type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusReady      SourceStatus = "ready"
	SourceStatusError      SourceStatus = "error"
)

type RefreshSchedule string

const (
	RefreshNone   RefreshSchedule = "none"
	RefreshHourly RefreshSchedule = "hourly"
	RefreshDaily  RefreshSchedule = "daily"
	RefreshWeekly RefreshSchedule = "weekly"
)

// Interval returns the refresh period for the schedule, or 0 for RefreshNone.
func (s RefreshSchedule) Interval() time.Duration {
	switch s {
	case RefreshHourly:
		return time.Hour
	case RefreshDaily:
		return 24 * time.Hour
	case RefreshWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

type Feedback string

const (
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

type WebhookEvent string

const (
	EventSourceIngested WebhookEvent = "source.ingested"
	EventSourceFailed   WebhookEvent = "source.failed"
	EventChatMessage    WebhookEvent = "chat.message"
	EventPing           WebhookEvent = "ping"
)

type Tenant struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Slug      string       `json:"slug"`
	Plan      string       `json:"plan"`
	Status    TenantStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

type User struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type ApiToken struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	UserID      string     `json:"userId"`
	Name        string     `json:"name"`
	TokenHash   string     `json:"-"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (a *ApiToken) IsRevoked() bool {
	return a.RevokedAt != nil
}

type BotProfile struct {
	ID                   string    `json:"id"`
	TenantID             string    `json:"tenantId"`
	Name                 string    `json:"name"`
	Model                string    `json:"model"`
	SystemPrompt         string    `json:"systemPrompt"`
	Temperature          float64   `json:"temperature"`
	MaxTokens            int       `json:"maxTokens"`
	EncryptedCredentials []byte    `json:"-"`
	IsActive             bool      `json:"isActive"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

type Source struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenantId"`
	BotProfileID    string          `json:"botProfileId"`
	ParentSourceID  *string         `json:"parentSourceId,omitempty"`
	SourceType      SourceType      `json:"sourceType"`
	Status          SourceStatus    `json:"status"`
	Content         string          `json:"content"`
	Config          string          `json:"config,omitempty"`
	RefreshSchedule RefreshSchedule `json:"refreshSchedule"`
	LastRefreshedAt *time.Time      `json:"lastRefreshedAt,omitempty"`
	LastError       string          `json:"lastError,omitempty"`
	DocumentCount   int             `json:"documentCount"`
	ChunkCount      int             `json:"chunkCount"`
	IsActive        bool            `json:"isActive"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// DueForRefresh reports whether the source should be re-enqueued at asOf
// under its configured refresh schedule.
func (s *Source) DueForRefresh(asOf time.Time) bool {
	if s.RefreshSchedule == RefreshNone || !s.IsActive || s.Status == SourceStatusProcessing {
		return false
	}
	if s.LastRefreshedAt == nil {
		return true
	}
	return s.LastRefreshedAt.Add(s.RefreshSchedule.Interval()).Before(asOf) ||
		s.LastRefreshedAt.Add(s.RefreshSchedule.Interval()).Equal(asOf)
}

type Document struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	SourceID  string    `json:"sourceId"`
	Content   string    `json:"content"`
	CharCount int       `json:"charCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Chunk struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	DocumentID   string    `json:"documentId"`
	SourceID     string    `json:"sourceId"`
	BotProfileID string    `json:"botProfileId"`
	Ordinal      int       `json:"ordinal"`
	Content      string    `json:"content"`
	VectorID     string    `json:"vectorId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Chat struct {
	ID                   string    `json:"id"`
	TenantID             string    `json:"tenantId"`
	BotProfileID         string    `json:"botProfileId"`
	UserID               string    `json:"userId"`
	Title                string    `json:"title"`
	TotalPromptTokens    int64     `json:"totalPromptTokens"`
	TotalCompletionTokens int64    `json:"totalCompletionTokens"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

type Message struct {
	ID               string      `json:"id"`
	ChatID           string      `json:"chatId"`
	TenantID         string      `json:"tenantId"`
	Role             MessageRole `json:"role"`
	Content          string      `json:"content"`
	ContextChunks    string      `json:"contextChunks,omitempty"`
	Feedback         *Feedback   `json:"feedback,omitempty"`
	PromptTokens     int64       `json:"promptTokens"`
	CompletionTokens int64       `json:"completionTokens"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

type UsageEvent struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenantId"`
	ChatID             string    `json:"chatId"`
	MessageID          string    `json:"messageId"`
	Model              string    `json:"model"`
	PromptTokens       int64     `json:"promptTokens"`
	CompletionTokens   int64     `json:"completionTokens"`
	IsStream           bool      `json:"isStream"`
	TimeToFirstTokenMs int64     `json:"timeToFirstTokenMs,omitempty"`
	StreamDurationMs   int64     `json:"streamDurationMs,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

type Webhook struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    []string  `json:"events"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Subscribes reports whether the webhook is registered for the given event.
func (w *Webhook) Subscribes(event WebhookEvent) bool {
	for _, e := range w.Events {
		if e == string(event) {
			return true
		}
	}
	return false
}
