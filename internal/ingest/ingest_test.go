package ingest

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/ai"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store/memstore"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/vectorstore"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/webhook"
)

func parseForTest(src string) (*html.Node, error) {
	return html.Parse(strings.NewReader(src))
}

type fakeProvider struct{ dim int }

func (p *fakeProvider) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, p.dim)
	}
	return out, nil
}

func (p *fakeProvider) Complete(_ context.Context, _ string, _ []ai.Message, _ ai.Params) (ai.Completion, error) {
	return ai.Completion{}, nil
}

func (p *fakeProvider) CompleteStream(_ context.Context, _ string, _ []ai.Message, _ ai.Params, _ func(ai.Delta) error) error {
	return nil
}

type fakeVectorStore struct {
	points  map[string]vectorstore.Point
	deletes int
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: make(map[string]vectorstore.Point)}
}

func (f *fakeVectorStore) Upsert(_ context.Context, points []vectorstore.Point) error {
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeVectorStore) DeleteBySource(_ context.Context, tenantID, sourceID string) error {
	f.deletes++
	for id, p := range f.points {
		if p.Payload.TenantID == tenantID && p.Payload.SourceID == sourceID {
			delete(f.points, id)
		}
	}
	return nil
}

func (f *fakeVectorStore) Search(_ context.Context, _, _ string, _ []float32, _ int) ([]vectorstore.Match, error) {
	return nil, nil
}

func (f *fakeVectorStore) Ping(context.Context) error { return nil }

func newTestWorker(t *testing.T) (*Worker, *memstore.Store, *fakeVectorStore) {
	t.Helper()
	ms := memstore.New()
	vs := newFakeVectorStore()
	registry := ai.NewRegistry()
	registry.Register("fake-", &fakeProvider{dim: 4})
	dispatcher := webhook.New(ms)
	return New(ms, vs, registry, dispatcher, nil), ms, vs
}

func seedSource(t *testing.T, ms *memstore.Store, sourceType domain.SourceType, content string) domain.Source {
	t.Helper()
	now := time.Now().UTC()
	bot := domain.BotProfile{ID: "bot-1", TenantID: "tenant-1", Name: "support", Model: "fake-embed", IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := ms.CreateBotProfile(context.Background(), bot); err != nil {
		t.Fatal(err)
	}
	src := domain.Source{
		ID: "src-1", TenantID: "tenant-1", BotProfileID: "bot-1",
		SourceType: sourceType, Status: domain.SourceStatusPending, Content: content,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := ms.CreateSource(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	return src
}

func TestIngestSourceTextProducesReadyChunks(t *testing.T) {
	w, ms, vs := newTestWorker(t)
	seedSource(t, ms, domain.SourceTypeText, "MiniRAG is a RAG platform. It supports multi-tenancy.")

	if err := w.IngestSource(context.Background(), "src-1", "tenant-1"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, ok, err := ms.GetSource(context.Background(), "src-1", "tenant-1")
	if err != nil || !ok {
		t.Fatalf("get source: %v ok=%v", err, ok)
	}
	if got.Status != domain.SourceStatusReady {
		t.Fatalf("expected status ready, got %s (err=%s)", got.Status, got.LastError)
	}
	if got.ChunkCount == 0 || got.LastRefreshedAt == nil {
		t.Fatalf("expected chunk count and refresh timestamp to be set: %+v", got)
	}
	if len(vs.points) != got.ChunkCount {
		t.Fatalf("expected %d vector points, got %d", got.ChunkCount, len(vs.points))
	}
}

func TestIngestSourceMissingReturnsQuietly(t *testing.T) {
	w, _, _ := newTestWorker(t)
	if err := w.IngestSource(context.Background(), "no-such-source", "tenant-1"); err != nil {
		t.Fatalf("expected nil error for missing source, got %v", err)
	}
}

func TestIngestSourceRerunReplacesVectors(t *testing.T) {
	w, ms, vs := newTestWorker(t)
	seedSource(t, ms, domain.SourceTypeText, "first run content that is reasonably long for chunking purposes.")

	if err := w.IngestSource(context.Background(), "src-1", "tenant-1"); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	firstCount := len(vs.points)

	if err := w.IngestSource(context.Background(), "src-1", "tenant-1"); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if len(vs.points) != firstCount {
		t.Fatalf("expected re-run to produce the same vector count, got %d want %d", len(vs.points), firstCount)
	}
	if vs.deletes < 2 {
		t.Fatalf("expected old vectors to be deleted before re-insert, deletes=%d", vs.deletes)
	}
}

func TestIngestSourceUnknownBotProfileFailsClosed(t *testing.T) {
	w, ms, _ := newTestWorker(t)
	now := time.Now().UTC()
	src := domain.Source{
		ID: "src-1", TenantID: "tenant-1", BotProfileID: "missing-bot",
		SourceType: domain.SourceTypeText, Status: domain.SourceStatusPending, Content: "hello",
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := ms.CreateSource(context.Background(), src); err != nil {
		t.Fatal(err)
	}

	if err := w.IngestSource(context.Background(), "src-1", "tenant-1"); err == nil {
		t.Fatalf("expected error for missing bot profile")
	}
	got, _, _ := ms.GetSource(context.Background(), "src-1", "tenant-1")
	if got.Status != domain.SourceStatusError || got.LastError == "" {
		t.Fatalf("expected source marked error with a message, got %+v", got)
	}
}

func TestExtractTextStripsTagsAndScripts(t *testing.T) {
	html := `<html><body><script>evil()</script><p>Hello</p><p>World</p></body></html>`
	doc, err := parseForTest(html)
	if err != nil {
		t.Fatal(err)
	}
	got := extractText(doc)
	if strings.Contains(got, "evil()") {
		t.Fatalf("expected script content to be stripped, got %q", got)
	}
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "World") {
		t.Fatalf("expected paragraph text to survive, got %q", got)
	}
}

func TestSourcePreviewTruncatesLongTextContent(t *testing.T) {
	src := domain.Source{SourceType: domain.SourceTypeText, Content: strings.Repeat("a", 100)}
	got := sourcePreview(src)
	if n := utf8.RuneCountInString(got); n > 61 {
		t.Fatalf("expected preview to be truncated, got length %d", n)
	}
}

func TestSourcePreviewUsesURLVerbatim(t *testing.T) {
	src := domain.Source{SourceType: domain.SourceTypeURL, Content: "https://example.com/docs"}
	if got := sourcePreview(src); got != "https://example.com/docs" {
		t.Fatalf("expected URL preview, got %q", got)
	}
}
