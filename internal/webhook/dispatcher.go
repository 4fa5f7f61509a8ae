// Package webhook delivers HMAC-signed event notifications to tenant-owned
// HTTP endpoints, fire-and-forget.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/crypto"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
)

const postTimeout = 10 * time.Second

// WebhookLister is the subset of the metadata store the dispatcher needs.
type WebhookLister interface {
	ListActiveWebhooksForEvent(ctx context.Context, tenantID string, event domain.WebhookEvent) ([]domain.Webhook, error)
}

// Dispatcher fans an event out to every active, subscribed webhook for a
// tenant. Delivery never blocks or fails the triggering request.
type Dispatcher struct {
	store  WebhookLister
	client *http.Client
}

// New builds a webhook dispatcher.
func New(store WebhookLister) *Dispatcher {
	return &Dispatcher{
		store:  store,
		client: &http.Client{Timeout: postTimeout},
	}
}

// Dispatch looks up subscribed webhooks and delivers payload to each on a
// background goroutine. It returns immediately; the caller's request path
// is never blocked by delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID string, event domain.WebhookEvent, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("webhook marshal payload failed", "event", event, "error", err)
		return
	}
	hooks, err := d.store.ListActiveWebhooksForEvent(ctx, tenantID, event)
	if err != nil {
		slog.Error("webhook lookup failed", "tenant_id", tenantID, "event", event, "error", err)
		return
	}
	for _, hook := range hooks {
		go d.deliver(hook, event, body)
	}
}

// DispatchTo delivers payload to a single, caller-resolved webhook,
// bypassing the subscription lookup. Used by the gateway's "send a test
// ping" endpoint, where the target webhook is already known.
func (d *Dispatcher) DispatchTo(hook domain.Webhook, event domain.WebhookEvent, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("webhook marshal payload failed", "event", event, "error", err)
		return
	}
	go d.deliver(hook, event, body)
}

func (d *Dispatcher) deliver(hook domain.Webhook, event domain.WebhookEvent, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		slog.Error("webhook request build failed", "webhook_id", hook.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-MiniRAG-Event", string(event))
	req.Header.Set("X-MiniRAG-Signature", crypto.HMACSignHex(hook.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		slog.Warn("webhook delivery failed", "webhook_id", hook.ID, "event", event, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		slog.Warn("webhook delivery rejected", "webhook_id", hook.ID, "event", event, "status", resp.StatusCode)
		return
	}
	slog.Info("webhook delivered", "webhook_id", hook.ID, "event", event, "status", resp.StatusCode)
}
