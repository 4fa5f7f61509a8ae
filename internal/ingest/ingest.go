// Package ingest implements the asynchronous source-to-vector pipeline:
// extract content, chunk it, embed the chunks, and replace the source's
// vector set. Invoked by the queue worker, never from the request path.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/ai"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/chunking"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/crypto"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/util"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/vectorstore"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/webhook"
)

const (
	urlFetchTimeout = 30 * time.Second
	embedBatchSize  = 128
)

// Worker runs the ingestion pipeline for one source at a time.
type Worker struct {
	store      store.Store
	vectors    vectorstore.Store
	providers  *ai.Registry
	webhooks   *webhook.Dispatcher
	cipher     *crypto.FieldCipher
	httpClient *http.Client
}

// New builds a Worker. cipher may be nil only if no BotProfile in the
// store carries encrypted credentials.
func New(s store.Store, v vectorstore.Store, providers *ai.Registry, webhooks *webhook.Dispatcher, cipher *crypto.FieldCipher) *Worker {
	return &Worker{
		store:      s,
		vectors:    v,
		providers:  providers,
		webhooks:   webhooks,
		cipher:     cipher,
		httpClient: &http.Client{Timeout: urlFetchTimeout},
	}
}

// IngestSource runs the full extract/chunk/embed/upsert pipeline for one
// source. It is safe to run concurrently for the same sourceID: the
// delete-then-insert vector replacement makes the last commit win.
func (w *Worker) IngestSource(ctx context.Context, sourceID, tenantID string) error {
	src, ok, err := w.store.GetSource(ctx, sourceID, tenantID)
	if err != nil {
		return fmt.Errorf("ingest: load source: %w", err)
	}
	if !ok || !src.IsActive {
		return nil
	}

	now := time.Now().UTC()
	src.Status = domain.SourceStatusProcessing
	src.LastError = ""
	src.UpdatedAt = now
	if err := w.store.UpdateSource(ctx, src); err != nil {
		return fmt.Errorf("ingest: mark processing: %w", err)
	}

	content, extractErr := w.extract(ctx, src)
	if extractErr != nil {
		return w.finalizeFailure(ctx, src, extractErr)
	}

	bot, ok, err := w.store.GetBotProfile(ctx, src.BotProfileID, tenantID)
	if err != nil {
		return fmt.Errorf("ingest: load bot profile: %w", err)
	}
	if !ok {
		return w.finalizeFailure(ctx, src, fmt.Errorf("bot profile no longer exists"))
	}

	doc := domain.Document{
		ID:        util.NewID(),
		TenantID:  tenantID,
		SourceID:  src.ID,
		Content:   content,
		CharCount: len(content),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.store.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("ingest: persist document: %w", err)
	}

	pieces := chunking.Split(content, chunking.Options{})
	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		id := util.NewID()
		chunks = append(chunks, domain.Chunk{
			ID:           id,
			TenantID:     tenantID,
			DocumentID:   doc.ID,
			SourceID:     src.ID,
			BotProfileID: src.BotProfileID,
			Ordinal:      i,
			Content:      piece,
			VectorID:     id,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if err := w.embedAndUpsert(ctx, bot, chunks); err != nil {
		return w.finalizeFailure(ctx, src, err)
	}

	if err := w.store.ReplaceChunks(ctx, tenantID, src.ID, chunks); err != nil {
		return w.finalizeFailure(ctx, src, fmt.Errorf("persist chunks: %w", err))
	}

	return w.finalizeSuccess(ctx, src, len(chunks))
}

func (w *Worker) extract(ctx context.Context, src domain.Source) (string, error) {
	switch src.SourceType {
	case domain.SourceTypeText, domain.SourceTypeUpload:
		return src.Content, nil
	case domain.SourceTypeURL:
		return w.fetchURL(ctx, src.Content)
	default:
		return "", fmt.Errorf("unknown source type %q", src.SourceType)
	}
}

func (w *Worker) fetchURL(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, urlFetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch url: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return extractText(doc), nil
}

// extractText walks an HTML node tree collecting visible text, skipping
// script/style content.
func extractText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li") {
			buf.WriteString(" ")
		}
	}
	walk(n)
	return buf.String()
}

func (w *Worker) embedAndUpsert(ctx context.Context, bot domain.BotProfile, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	apiKey, err := ai.DecryptAPIKey(w.cipher, bot.EncryptedCredentials)
	if err != nil {
		return fmt.Errorf("decrypt bot credentials: %w", err)
	}
	provider, err := w.providers.ResolveWithCredential(bot.Model, apiKey)
	if err != nil {
		return fmt.Errorf("resolve embedding provider: %w", err)
	}

	points := make([]vectorstore.Point, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := provider.Embed(ctx, bot.Model, texts)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed batch: expected %d vectors, got %d", len(batch), len(vectors))
		}
		for i, c := range batch {
			points = append(points, vectorstore.Point{
				ID:     c.VectorID,
				Vector: vectors[i],
				Payload: vectorstore.Payload{
					TenantID:     c.TenantID,
					BotProfileID: c.BotProfileID,
					SourceID:     c.SourceID,
					ChunkID:      c.ID,
				},
			})
		}
	}

	if err := w.vectors.DeleteBySource(ctx, chunks[0].TenantID, chunks[0].SourceID); err != nil {
		return fmt.Errorf("delete old vectors: %w", err)
	}
	if err := w.vectors.Upsert(ctx, points); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

func (w *Worker) finalizeSuccess(ctx context.Context, src domain.Source, chunkCount int) error {
	now := time.Now().UTC()
	docs, err := w.store.ListDocumentsBySource(ctx, src.ID, src.TenantID)
	if err != nil {
		slog.Error("ingest: list documents for counter", "source_id", src.ID, "err", err)
	}
	src.Status = domain.SourceStatusReady
	src.LastRefreshedAt = &now
	src.LastError = ""
	src.DocumentCount = len(docs)
	src.ChunkCount = chunkCount
	src.UpdatedAt = now
	if err := w.store.UpdateSource(ctx, src); err != nil {
		return fmt.Errorf("ingest: finalize success: %w", err)
	}
	slog.Info("source ingested", "source_id", src.ID, "tenant_id", src.TenantID, "chunk_count", chunkCount)
	w.webhooks.Dispatch(ctx, src.TenantID, domain.EventSourceIngested, map[string]any{
		"source_id":      src.ID,
		"source_name":    sourcePreview(src),
		"document_count": src.DocumentCount,
		"chunk_count":    src.ChunkCount,
	})
	return nil
}

// sourcePreview derives a human-readable label for a source that has no
// dedicated name field: the URL itself, or the first line of text content.
func sourcePreview(src domain.Source) string {
	if src.SourceType == domain.SourceTypeURL {
		return src.Content
	}
	text := strings.TrimSpace(src.Content)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	const maxLen = 60
	if runes := []rune(text); len(runes) > maxLen {
		return string(runes[:maxLen]) + "…"
	}
	if text == "" {
		return src.ID
	}
	return text
}

func (w *Worker) finalizeFailure(ctx context.Context, src domain.Source, cause error) error {
	now := time.Now().UTC()
	src.Status = domain.SourceStatusError
	src.LastError = cause.Error()
	src.UpdatedAt = now
	if err := w.store.UpdateSource(ctx, src); err != nil {
		slog.Error("ingest: persist failure status", "source_id", src.ID, "err", err)
	}
	slog.Warn("source ingestion failed", "source_id", src.ID, "tenant_id", src.TenantID, "err", cause)
	w.webhooks.Dispatch(ctx, src.TenantID, domain.EventSourceFailed, map[string]any{
		"source_id": src.ID,
		"error":     cause.Error(),
	})
	return cause
}
