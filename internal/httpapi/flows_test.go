package httpapi

import (
	"net/http"
	"testing"
)

func TestBootstrapTenantAndLogin(t *testing.T) {
	h := newTestHarness(t)
	bootstrap := bootstrapTenant(t, h, "acme")
	if bootstrap.ApiToken.Token == "" {
		t.Fatal("expected a non-empty api token on bootstrap")
	}
	if bootstrap.Owner.Role != "owner" {
		t.Fatalf("expected bootstrap user to be owner, got %q", bootstrap.Owner.Role)
	}

	resp := h.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{
		TenantSlug: "acme",
		Email:      "owner@acme.test",
		Password:   "correct-horse-battery",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var login loginResponse
	decodeBody(t, resp, &login)
	if login.SessionToken == "" {
		t.Fatal("expected a non-empty session token")
	}

	meResp := h.do(t, http.MethodGet, "/v1/auth/me", login.SessionToken, nil)
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("auth/me: expected 200, got %d", meResp.StatusCode)
	}
	var me meResponse
	decodeBody(t, meResp, &me)
	if me.TenantID != bootstrap.Tenant.ID {
		t.Fatalf("auth/me returned tenant %q, want %q", me.TenantID, bootstrap.Tenant.ID)
	}

	badLogin := h.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{
		TenantSlug: "acme",
		Email:      "owner@acme.test",
		Password:   "wrong-password",
	})
	if badLogin.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", badLogin.StatusCode)
	}
}

func createBotProfile(t *testing.T, h *testHarness, token string) domainBotProfileID {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/v1/bot-profiles", token, botProfileRequest{
		Name:  "Support Bot",
		Model: "fake-chat-1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create bot profile: expected 201, got %d", resp.StatusCode)
	}
	var bot struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &bot)
	return domainBotProfileID(bot.ID)
}

type domainBotProfileID string

func TestCrossTenantSourceAccessDenied(t *testing.T) {
	h := newTestHarness(t)
	tenantA := bootstrapTenant(t, h, "tenanta")
	tenantB := bootstrapTenant(t, h, "tenantb")

	botA := createBotProfile(t, h, tenantA.ApiToken.Token)

	resp := h.do(t, http.MethodPost, "/v1/sources", tenantA.ApiToken.Token, sourceRequest{
		BotProfileID: string(botA),
		SourceType:   "text",
		Content:      "hello world",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create source: expected 201, got %d", resp.StatusCode)
	}
	var src struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &src)

	crossResp := h.do(t, http.MethodGet, "/v1/sources/"+src.ID, tenantB.ApiToken.Token, nil)
	if crossResp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-tenant source read: expected 404, got %d", crossResp.StatusCode)
	}

	ownResp := h.do(t, http.MethodGet, "/v1/sources/"+src.ID, tenantA.ApiToken.Token, nil)
	if ownResp.StatusCode != http.StatusOK {
		t.Fatalf("own-tenant source read: expected 200, got %d", ownResp.StatusCode)
	}
}

func TestChatSendNonStreamingPersistsMessage(t *testing.T) {
	h := newTestHarness(t)
	tenant := bootstrapTenant(t, h, "chatco")
	bot := createBotProfile(t, h, tenant.ApiToken.Token)

	resp := h.do(t, http.MethodPost, "/v1/chat", tenant.ApiToken.Token, createChatRequest{
		BotProfileID: string(bot),
		Message:      "what are your hours?",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send chat: expected 200, got %d", resp.StatusCode)
	}
	var chat sendChatResponse
	decodeBody(t, resp, &chat)
	if chat.Content == "" {
		t.Fatal("expected a non-empty reply content")
	}
	if chat.ChatID == "" || chat.MessageID == "" {
		t.Fatal("expected chat_id and message_id to be populated")
	}

	historyResp := h.do(t, http.MethodGet, "/v1/chat/"+chat.ChatID+"/messages", tenant.ApiToken.Token, nil)
	if historyResp.StatusCode != http.StatusOK {
		t.Fatalf("list messages: expected 200, got %d", historyResp.StatusCode)
	}
}

func TestWebhookTestDispatchesPing(t *testing.T) {
	h := newTestHarness(t)
	tenant := bootstrapTenant(t, h, "hookco")

	resp := h.do(t, http.MethodPost, "/v1/webhooks", tenant.ApiToken.Token, webhookRequest{
		URL:    "https://example.invalid/hooks",
		Events: []string{"chat.message"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create webhook: expected 201, got %d", resp.StatusCode)
	}
	var hook struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &hook)

	testResp := h.do(t, http.MethodPost, "/v1/webhooks/"+hook.ID+"/test", tenant.ApiToken.Token, nil)
	if testResp.StatusCode != http.StatusAccepted {
		t.Fatalf("webhook test: expected 202, got %d", testResp.StatusCode)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	h := newTestHarness(t)
	resp := h.do(t, http.MethodGet, "/v1/bot-profiles", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no credential, got %d", resp.StatusCode)
	}

	resp = h.do(t, http.MethodGet, "/v1/bot-profiles", "not-a-real-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bogus credential, got %d", resp.StatusCode)
	}
}
