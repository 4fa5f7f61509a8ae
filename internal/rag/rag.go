// Package rag orchestrates one chat turn: load history, retrieve context
// from the vector store, call the LLM, and persist both the user and
// assistant messages. It is the only component that talks to both the
// metadata store and the vector store on the request path.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/ai"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/crypto"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/util"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/vectorstore"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/webhook"
)

const (
	historyTurns = 10
	topK         = 5
)

// ContextChunk is one retrieved passage attached to a chat response.
type ContextChunk struct {
	ChunkID string  `json:"chunk_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Response is the result of a non-streaming chat turn.
type Response struct {
	MessageID     string
	Content       string
	ContextChunks []ContextChunk
	Usage         ai.Completion
}

// EventKind tags a StreamEvent's payload.
type EventKind string

const (
	EventSources EventKind = "sources"
	EventDelta   EventKind = "delta"
	EventDone    EventKind = "done"
	EventError   EventKind = "error"
)

// DonePayload is EventDone's payload.
type DonePayload struct {
	ChatID    string
	MessageID string
	Usage     ai.Completion
}

// StreamEvent is one tagged element of a streamed chat turn. Exactly one
// of Sources/Delta/Done/Err is populated, per Kind.
type StreamEvent struct {
	Kind    EventKind
	Sources []ContextChunk
	Delta   string
	Done    *DonePayload
	Err     error
}

// Orchestrator runs chat turns for one process. It holds no per-request
// state; every method takes the tenant/bot/chat identifiers it needs.
type Orchestrator struct {
	store     store.Store
	vectors   vectorstore.Store
	providers *ai.Registry
	webhooks  *webhook.Dispatcher
	cipher    *crypto.FieldCipher
}

// New builds an Orchestrator.
func New(s store.Store, v vectorstore.Store, providers *ai.Registry, webhooks *webhook.Dispatcher, cipher *crypto.FieldCipher) *Orchestrator {
	return &Orchestrator{store: s, vectors: v, providers: providers, webhooks: webhooks, cipher: cipher}
}

func (o *Orchestrator) resolveProvider(model string, bot domain.BotProfile) (ai.Provider, error) {
	apiKey, err := ai.DecryptAPIKey(o.cipher, bot.EncryptedCredentials)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "decrypt bot credentials", err)
	}
	provider, err := o.providers.ResolveWithCredential(model, apiKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "resolve provider", err)
	}
	return provider, nil
}

// loadTruncatedHistory returns the most recent historyTurns messages for
// chat in ascending time order. ListMessagesByChat orders ascending with a
// LIMIT that keeps the OLDEST rows, so history is fetched in full and
// sliced here instead.
func (o *Orchestrator) loadTruncatedHistory(ctx context.Context, chatID, tenantID string) ([]domain.Message, error) {
	all, err := o.store.ListMessagesByChat(ctx, chatID, tenantID, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(all) <= historyTurns {
		return all, nil
	}
	return all[len(all)-historyTurns:], nil
}

func (o *Orchestrator) retrieve(ctx context.Context, tenantID string, bot domain.BotProfile, question string) ([]ContextChunk, error) {
	provider, err := o.resolveProvider(bot.Model, bot)
	if err != nil {
		return nil, err
	}
	vectors, err := provider.Embed(ctx, bot.Model, []string{question})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "embed question", err)
	}
	if len(vectors) == 0 {
		return nil, apperr.Upstream("embed question", fmt.Errorf("no vector returned"))
	}
	matches, err := o.vectors.Search(ctx, tenantID, bot.ID, vectors[0], topK)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "search vector store", err)
	}
	byID, err := o.loadChunkContent(ctx, tenantID, matches)
	if err != nil {
		return nil, err
	}
	chunks := make([]ContextChunk, 0, len(matches))
	for _, m := range matches {
		chunks = append(chunks, ContextChunk{ChunkID: m.ChunkID, Content: byID[m.ChunkID], Score: m.Score})
	}
	return chunks, nil
}

// loadChunkContent resolves chunk text for a set of vector matches. The
// vector store only carries identifiers and a source ID per match; chunk
// text lives in the metadata store, grouped by source.
func (o *Orchestrator) loadChunkContent(ctx context.Context, tenantID string, matches []vectorstore.Match) (map[string]string, error) {
	out := make(map[string]string, len(matches))
	seenSource := make(map[string]bool)
	for _, m := range matches {
		if seenSource[m.Payload.SourceID] {
			continue
		}
		seenSource[m.Payload.SourceID] = true
		chunks, err := o.store.ListChunksBySource(ctx, m.Payload.SourceID, tenantID)
		if err != nil {
			return nil, fmt.Errorf("load chunk content: %w", err)
		}
		for _, c := range chunks {
			out[c.VectorID] = c.Content
		}
	}
	return out, nil
}

// buildMessages assembles the LLM message list per the system prompt +
// numbered-context + history + question layout.
func buildMessages(bot domain.BotProfile, chunks []ContextChunk, history []domain.Message, question string) []ai.Message {
	var sb strings.Builder
	sb.WriteString(bot.SystemPrompt)
	if len(chunks) > 0 {
		sb.WriteString("\n---\nRelevant context from the knowledge base:\n")
		for i, c := range chunks {
			fmt.Fprintf(&sb, "[%d] %s\n", i+1, c.Content)
		}
		sb.WriteString("---\nUse the context above to answer the user's question.")
	}
	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.Message{Role: string(domain.MessageRoleSystem), Content: sb.String()})
	for _, m := range history {
		messages = append(messages, ai.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, ai.Message{Role: string(domain.MessageRoleUser), Content: question})
	return messages
}

func serializeChunks(chunks []ContextChunk) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s:%.4f", c.ChunkID, c.Score)
	}
	return sb.String()
}

func params(bot domain.BotProfile) ai.Params {
	return ai.Params{Temperature: bot.Temperature, MaxTokens: bot.MaxTokens}
}

// RunChatTurn executes one non-streaming chat turn per the state machine
// SAVE_USER_MSG -> LOAD_HISTORY -> EMBED -> SEARCH -> CALL_LLM ->
// NON_STREAM_DONE -> SAVE_ASSISTANT -> EMIT_WEBHOOK. Any failure before
// SAVE_ASSISTANT leaves the user message persisted with no assistant row.
func (o *Orchestrator) RunChatTurn(ctx context.Context, tenantID string, bot domain.BotProfile, chat domain.Chat, question string) (Response, error) {
	now := time.Now().UTC()
	userMsg := domain.Message{
		ID: util.NewID(), ChatID: chat.ID, TenantID: tenantID,
		Role: domain.MessageRoleUser, Content: question,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := o.store.CreateMessage(ctx, userMsg); err != nil {
		return Response{}, apperr.Wrap(apperr.KindInternal, "save user message", err)
	}

	history, err := o.loadTruncatedHistory(ctx, chat.ID, tenantID)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindInternal, "load history", err)
	}
	chunks, err := o.retrieve(ctx, tenantID, bot, question)
	if err != nil {
		return Response{}, err
	}

	provider, err := o.resolveProvider(bot.Model, bot)
	if err != nil {
		return Response{}, err
	}
	completion, err := provider.Complete(ctx, bot.Model, buildMessages(bot, chunks, history, question), params(bot))
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindUpstream, "call llm", err)
	}

	assistantNow := time.Now().UTC()
	assistantMsg := domain.Message{
		ID: util.NewID(), ChatID: chat.ID, TenantID: tenantID,
		Role: domain.MessageRoleAssistant, Content: completion.Content,
		ContextChunks:    serializeChunks(chunks),
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		CreatedAt:        assistantNow, UpdatedAt: assistantNow,
	}
	if err := o.store.CreateMessage(ctx, assistantMsg); err != nil {
		return Response{}, apperr.Wrap(apperr.KindInternal, "save assistant message", err)
	}
	if err := o.store.IncrementChatUsage(ctx, chat.ID, tenantID, completion.PromptTokens, completion.CompletionTokens); err != nil {
		return Response{}, apperr.Wrap(apperr.KindInternal, "increment chat usage", err)
	}
	if err := o.store.CreateUsageEvent(ctx, domain.UsageEvent{
		ID: util.NewID(), TenantID: tenantID, ChatID: chat.ID, MessageID: assistantMsg.ID,
		Model: bot.Model, PromptTokens: completion.PromptTokens, CompletionTokens: completion.CompletionTokens,
		IsStream: false, CreatedAt: assistantNow,
	}); err != nil {
		return Response{}, apperr.Wrap(apperr.KindInternal, "record usage event", err)
	}

	o.webhooks.Dispatch(ctx, tenantID, domain.EventChatMessage, map[string]any{
		"chat_id":        chat.ID,
		"message_id":     assistantMsg.ID,
		"bot_profile_id": bot.ID,
	})

	return Response{MessageID: assistantMsg.ID, Content: completion.Content, ContextChunks: chunks, Usage: completion}, nil
}

// RunChatTurnStream executes a streaming chat turn, invoking emit for each
// event in order: one sources event, zero or more delta events, then
// either a done event or an error event. On mid-stream failure the
// partial content delivered so far is still persisted as the assistant
// message, matching the failure policy in the state machine. A failure
// before the sources event (saving the user message, loading history,
// retrieval, provider resolution), or while recording usage after the
// stream, is returned without emitting any further event.
func (o *Orchestrator) RunChatTurnStream(ctx context.Context, tenantID string, bot domain.BotProfile, chat domain.Chat, question string, emit func(StreamEvent) error) error {
	now := time.Now().UTC()
	userMsg := domain.Message{
		ID: util.NewID(), ChatID: chat.ID, TenantID: tenantID,
		Role: domain.MessageRoleUser, Content: question,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := o.store.CreateMessage(ctx, userMsg); err != nil {
		return apperr.Wrap(apperr.KindInternal, "save user message", err)
	}

	history, err := o.loadTruncatedHistory(ctx, chat.ID, tenantID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "load history", err)
	}
	chunks, err := o.retrieve(ctx, tenantID, bot, question)
	if err != nil {
		return err
	}

	provider, err := o.resolveProvider(bot.Model, bot)
	if err != nil {
		return err
	}

	if err := emit(StreamEvent{Kind: EventSources, Sources: chunks}); err != nil {
		return err
	}

	started := time.Now()
	var firstTokenAt time.Time
	var content strings.Builder
	var usage ai.Completion
	streamErr := provider.CompleteStream(ctx, bot.Model, buildMessages(bot, chunks, history, question), params(bot), func(d ai.Delta) error {
		if d.Content != "" {
			if firstTokenAt.IsZero() {
				firstTokenAt = time.Now()
			}
			content.WriteString(d.Content)
			if err := emit(StreamEvent{Kind: EventDelta, Delta: d.Content}); err != nil {
				return err
			}
		}
		if d.Done && d.Usage != nil {
			usage = *d.Usage
		}
		return nil
	})

	assistantNow := time.Now().UTC()
	assistantMsg := domain.Message{
		ID: util.NewID(), ChatID: chat.ID, TenantID: tenantID,
		Role: domain.MessageRoleAssistant, Content: content.String(),
		ContextChunks:    serializeChunks(chunks),
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CreatedAt:        assistantNow, UpdatedAt: assistantNow,
	}
	if saveErr := o.store.CreateMessage(ctx, assistantMsg); saveErr != nil {
		wrapped := apperr.Wrap(apperr.KindInternal, "save assistant message", saveErr)
		_ = emit(StreamEvent{Kind: EventError, Err: wrapped})
		return wrapped
	}

	if streamErr != nil {
		wrapped := apperr.Wrap(apperr.KindUpstream, "stream completion", streamErr)
		_ = emit(StreamEvent{Kind: EventError, Err: wrapped})
		return wrapped
	}

	var timeToFirstTokenMs int64
	if !firstTokenAt.IsZero() {
		timeToFirstTokenMs = firstTokenAt.Sub(started).Milliseconds()
	}
	streamDurationMs := time.Since(started).Milliseconds()

	if err := o.store.IncrementChatUsage(ctx, chat.ID, tenantID, usage.PromptTokens, usage.CompletionTokens); err != nil {
		return apperr.Wrap(apperr.KindInternal, "increment chat usage", err)
	}
	if err := o.store.CreateUsageEvent(ctx, domain.UsageEvent{
		ID: util.NewID(), TenantID: tenantID, ChatID: chat.ID, MessageID: assistantMsg.ID,
		Model: bot.Model, PromptTokens: usage.PromptTokens, CompletionTokens: usage.CompletionTokens,
		IsStream: true, TimeToFirstTokenMs: timeToFirstTokenMs, StreamDurationMs: streamDurationMs,
		CreatedAt: assistantNow,
	}); err != nil {
		return apperr.Wrap(apperr.KindInternal, "record usage event", err)
	}

	if err := emit(StreamEvent{Kind: EventDone, Done: &DonePayload{ChatID: chat.ID, MessageID: assistantMsg.ID, Usage: usage}}); err != nil {
		return err
	}

	o.webhooks.Dispatch(ctx, tenantID, domain.EventChatMessage, map[string]any{
		"chat_id":        chat.ID,
		"message_id":     assistantMsg.ID,
		"bot_profile_id": bot.ID,
	})
	return nil
}
