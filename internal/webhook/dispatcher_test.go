package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/crypto"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
)

type fakeStore struct {
	hooks []domain.Webhook
	err   error
}

func (f *fakeStore) ListActiveWebhooksForEvent(ctx context.Context, tenantID string, event domain.WebhookEvent) ([]domain.Webhook, error) {
	return f.hooks, f.err
}

func TestDispatchSignsAndDeliversPayload(t *testing.T) {
	var (
		mu        sync.Mutex
		gotBody   []byte
		gotSig    string
		gotEvent  string
		delivered = make(chan struct{})
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = body
		gotSig = r.Header.Get("X-MiniRAG-Signature")
		gotEvent = r.Header.Get("X-MiniRAG-Event")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		close(delivered)
	}))
	defer server.Close()

	hook := domain.Webhook{ID: "wh1", URL: server.URL, Secret: "s3cret", IsActive: true, Events: []string{string(domain.EventSourceIngested)}}
	d := New(&fakeStore{hooks: []domain.Webhook{hook}})
	d.Dispatch(context.Background(), "tenant-1", domain.EventSourceIngested, map[string]string{"source_id": "src1"})

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotEvent != string(domain.EventSourceIngested) {
		t.Fatalf("unexpected event header: %s", gotEvent)
	}
	if !crypto.VerifyHMACHex("s3cret", gotBody, gotSig) {
		t.Fatalf("signature did not verify")
	}
}

func TestDispatchSwallowsLookupErrorSilently(t *testing.T) {
	d := New(&fakeStore{err: errors.New("lookup failed")})
	d.Dispatch(context.Background(), "tenant-1", domain.EventChatMessage, map[string]string{})
}
