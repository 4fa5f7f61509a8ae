package rag

import (
	"context"
	"testing"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/ai"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store/memstore"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/util"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/vectorstore"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/webhook"
)

type fakeProvider struct {
	completion ai.Completion
	deltas     []string
	failStream bool
}

func (p *fakeProvider) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (p *fakeProvider) Complete(_ context.Context, _ string, _ []ai.Message, _ ai.Params) (ai.Completion, error) {
	return p.completion, nil
}

func (p *fakeProvider) CompleteStream(_ context.Context, _ string, _ []ai.Message, _ ai.Params, onDelta func(ai.Delta) error) error {
	if p.failStream {
		return errStreamFailed
	}
	for _, d := range p.deltas {
		if err := onDelta(ai.Delta{Content: d}); err != nil {
			return err
		}
	}
	return onDelta(ai.Delta{Done: true, Usage: &p.completion})
}

type errString string

func (e errString) Error() string { return string(e) }

const errStreamFailed = errString("stream failed")

type fakeVectorStore struct {
	matches []vectorstore.Match
}

func (f *fakeVectorStore) Upsert(context.Context, []vectorstore.Point) error { return nil }
func (f *fakeVectorStore) DeleteBySource(context.Context, string, string) error { return nil }
func (f *fakeVectorStore) Ping(context.Context) error { return nil }
func (f *fakeVectorStore) Search(context.Context, string, string, []float32, int) ([]vectorstore.Match, error) {
	return f.matches, nil
}

func seedChatFixture(t *testing.T, ms *memstore.Store) (domain.BotProfile, domain.Chat) {
	t.Helper()
	now := time.Now().UTC()
	bot := domain.BotProfile{
		ID: "bot-1", TenantID: "tenant-1", Name: "support", Model: "fake-model",
		SystemPrompt: "You are a helpful assistant.", Temperature: 0.3, MaxTokens: 512,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := ms.CreateBotProfile(context.Background(), bot); err != nil {
		t.Fatal(err)
	}
	chat := domain.Chat{ID: "chat-1", TenantID: "tenant-1", BotProfileID: "bot-1", UserID: "user-1", CreatedAt: now, UpdatedAt: now}
	if err := ms.CreateChat(context.Background(), chat); err != nil {
		t.Fatal(err)
	}
	src := domain.Source{ID: "src-1", TenantID: "tenant-1", BotProfileID: "bot-1", SourceType: domain.SourceTypeText, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := ms.CreateSource(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	chunk := domain.Chunk{ID: "chunk-1", TenantID: "tenant-1", DocumentID: "doc-1", SourceID: "src-1", BotProfileID: "bot-1", Content: "MiniRAG supports multi-tenant bots.", VectorID: "chunk-1", CreatedAt: now, UpdatedAt: now}
	if err := ms.ReplaceChunks(context.Background(), "tenant-1", "src-1", []domain.Chunk{chunk}); err != nil {
		t.Fatal(err)
	}
	return bot, chat
}

func newTestOrchestrator(provider ai.Provider, matches []vectorstore.Match) (*Orchestrator, *memstore.Store) {
	ms := memstore.New()
	registry := ai.NewRegistry()
	registry.Register("fake-", provider)
	dispatcher := webhook.New(ms)
	return New(ms, &fakeVectorStore{matches: matches}, registry, dispatcher, nil), ms
}

func TestRunChatTurnPersistsBothMessagesAndUsage(t *testing.T) {
	provider := &fakeProvider{completion: ai.Completion{Content: "hi there", PromptTokens: 10, CompletionTokens: 4}}
	matches := []vectorstore.Match{{ChunkID: "chunk-1", Score: 0.9, Payload: vectorstore.Payload{TenantID: "tenant-1", SourceID: "src-1"}}}
	o, ms := newTestOrchestrator(provider, matches)
	bot, chat := seedChatFixture(t, ms)

	resp, err := o.RunChatTurn(context.Background(), "tenant-1", bot, chat, "what does MiniRAG support?")
	if err != nil {
		t.Fatalf("run chat turn: %v", err)
	}
	if resp.Content != "hi there" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if len(resp.ContextChunks) != 1 || resp.ContextChunks[0].Content == "" {
		t.Fatalf("expected retrieved chunk content, got %+v", resp.ContextChunks)
	}

	msgs, err := ms.ListMessagesByChat(context.Background(), chat.ID, "tenant-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs))
	}

	updatedChat, ok, err := ms.GetChat(context.Background(), chat.ID, "tenant-1")
	if err != nil || !ok {
		t.Fatalf("get chat: %v ok=%v", err, ok)
	}
	if updatedChat.TotalPromptTokens != 10 || updatedChat.TotalCompletionTokens != 4 {
		t.Fatalf("expected chat usage totals updated, got %+v", updatedChat)
	}
}

func TestRunChatTurnStreamEmitsSourcesDeltasAndDone(t *testing.T) {
	provider := &fakeProvider{
		deltas:     []string{"Hel", "lo"},
		completion: ai.Completion{PromptTokens: 8, CompletionTokens: 2},
	}
	matches := []vectorstore.Match{{ChunkID: "chunk-1", Score: 0.8, Payload: vectorstore.Payload{TenantID: "tenant-1", SourceID: "src-1"}}}
	o, ms := newTestOrchestrator(provider, matches)
	bot, chat := seedChatFixture(t, ms)

	var kinds []EventKind
	var gotContent string
	err := o.RunChatTurnStream(context.Background(), "tenant-1", bot, chat, "hello", func(e StreamEvent) error {
		kinds = append(kinds, e.Kind)
		if e.Kind == EventDelta {
			gotContent += e.Delta
		}
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(kinds) != 4 || kinds[0] != EventSources || kinds[len(kinds)-1] != EventDone {
		t.Fatalf("unexpected event sequence: %v", kinds)
	}
	if gotContent != "Hello" {
		t.Fatalf("expected accumulated content Hello, got %q", gotContent)
	}

	msgs, err := ms.ListMessagesByChat(context.Background(), chat.ID, "tenant-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[1].Content != "Hello" {
		t.Fatalf("expected assistant message with accumulated content, got %+v", msgs)
	}
}

func TestRunChatTurnStreamPersistsPartialContentOnFailure(t *testing.T) {
	provider := &fakeProvider{failStream: true}
	o, ms := newTestOrchestrator(provider, nil)
	bot, chat := seedChatFixture(t, ms)

	var gotErrorEvent bool
	err := o.RunChatTurnStream(context.Background(), "tenant-1", bot, chat, "hello", func(e StreamEvent) error {
		if e.Kind == EventError {
			gotErrorEvent = true
		}
		return nil
	})
	if err == nil {
		t.Fatalf("expected stream failure to surface as an error")
	}
	if !gotErrorEvent {
		t.Fatalf("expected an error event to be emitted")
	}

	msgs, err := ms.ListMessagesByChat(context.Background(), chat.ID, "tenant-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected user message and a (possibly empty) assistant row to persist, got %d", len(msgs))
	}
}

func TestLoadTruncatedHistoryKeepsMostRecent(t *testing.T) {
	ms := memstore.New()
	registry := ai.NewRegistry()
	o := New(ms, &fakeVectorStore{}, registry, webhook.New(ms), nil)

	base := time.Now().UTC().Add(-1 * time.Hour)
	for i := 0; i < 15; i++ {
		_ = ms.CreateMessage(context.Background(), domain.Message{
			ID: util.NewID(), ChatID: "chat-1", TenantID: "tenant-1",
			Role: domain.MessageRoleUser, Content: "msg",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	history, err := o.loadTruncatedHistory(context.Background(), "chat-1", "tenant-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != historyTurns {
		t.Fatalf("expected %d messages, got %d", historyTurns, len(history))
	}
}
