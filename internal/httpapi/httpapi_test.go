package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/ai"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/authresolve"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/crypto"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/queue"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/rag"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/statscache"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store/memstore"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/validate"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/vectorstore"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/webhook"
)

type fakeProvider struct{}

func (p *fakeProvider) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (p *fakeProvider) Complete(_ context.Context, _ string, _ []ai.Message, _ ai.Params) (ai.Completion, error) {
	return ai.Completion{Content: "a helpful reply", PromptTokens: 12, CompletionTokens: 6}, nil
}

func (p *fakeProvider) CompleteStream(_ context.Context, _ string, _ []ai.Message, _ ai.Params, onDelta func(ai.Delta) error) error {
	if err := onDelta(ai.Delta{Content: "a helpful "}); err != nil {
		return err
	}
	if err := onDelta(ai.Delta{Content: "reply"}); err != nil {
		return err
	}
	return onDelta(ai.Delta{Done: true, Usage: &ai.Completion{PromptTokens: 12, CompletionTokens: 6}})
}

type fakeVectorStore struct{}

func (f *fakeVectorStore) Upsert(context.Context, []vectorstore.Point) error   { return nil }
func (f *fakeVectorStore) DeleteBySource(context.Context, string, string) error { return nil }
func (f *fakeVectorStore) Ping(context.Context) error                         { return nil }
func (f *fakeVectorStore) Search(context.Context, string, string, []float32, int) ([]vectorstore.Match, error) {
	return nil, nil
}

type fakeQueue struct {
	enqueued []map[string]string
}

func (q *fakeQueue) Enqueue(_ context.Context, jobName string, args map[string]string) (string, error) {
	q.enqueued = append(q.enqueued, args)
	return "job-" + jobName, nil
}
func (q *fakeQueue) RegisterHandler(string, queue.Handler)                     {}
func (q *fakeQueue) RegisterCron(string, time.Duration, func(context.Context)) {}
func (q *fakeQueue) Start(context.Context, int)                               {}
func (q *fakeQueue) Ping(context.Context) error                               { return nil }
func (q *fakeQueue) Close() error                                              { return nil }

type testHarness struct {
	srv   *httptest.Server
	store *memstore.Store
	queue *fakeQueue
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	ms := memstore.New()
	vectors := &fakeVectorStore{}
	q := &fakeQueue{}
	registry := ai.NewRegistry()
	registry.Register("fake-", &fakeProvider{})
	dispatcher := webhook.New(ms)
	validator := validate.New(ms)

	signingKey := make([]byte, 32)
	if _, err := rand.Read(signingKey); err != nil {
		t.Fatal(err)
	}
	signer, err := crypto.NewSessionSigner(signingKey, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	encryptionKey := make([]byte, 32)
	if _, err := rand.Read(encryptionKey); err != nil {
		t.Fatal(err)
	}
	cipher, err := crypto.NewFieldCipher(encryptionKey)
	if err != nil {
		t.Fatal(err)
	}
	authResolver := authresolve.New(signer, ms)
	orchestrator := rag.New(ms, vectors, registry, dispatcher, cipher)
	stats := statscache.New(time.Second)

	srv, err := New(Config{
		Store:        ms,
		Vectors:      vectors,
		Queue:        q,
		Providers:    registry,
		Webhooks:     dispatcher,
		Orchestrator: orchestrator,
		Validator:    validator,
		AuthResolver: authResolver,
		Signer:       signer,
		Cipher:       cipher,
		Stats:        stats,
	})
	if err != nil {
		t.Fatal(err)
	}

	httpSrv := httptest.NewServer(srv.Router())
	t.Cleanup(httpSrv.Close)
	return &testHarness{srv: httpSrv, store: ms, queue: q}
}

func (h *testHarness) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = strings.NewReader(string(b))
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, h.srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

// bootstrapTenant drives the bootstrap endpoint and returns the owner's
// freshly issued API token, for tests that need an authenticated caller.
func bootstrapTenant(t *testing.T, h *testHarness, slug string) bootstrapTenantResponse {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/v1/tenants", "", bootstrapTenantRequest{
		TenantName: "Acme " + slug,
		TenantSlug: slug,
		OwnerEmail: "owner@" + slug + ".test",
		Password:   "correct-horse-battery",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("bootstrap tenant: expected 201, got %d", resp.StatusCode)
	}
	var out bootstrapTenantResponse
	decodeBody(t, resp, &out)
	return out
}
