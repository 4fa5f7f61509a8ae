// Package httpapi exposes the platform's HTTP surface: tenant bootstrap,
// auth, bot/source/chat/webhook CRUD, streaming chat, and stats. It is the
// only package that talks to net/http directly; every domain operation is
// delegated to a collaborator package.
package httpapi

import (
	"net/http"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/ai"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/authresolve"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/crypto"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/queue"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/rag"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/ratelimit"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/statscache"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/util"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/validate"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/vectorstore"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/webhook"
)

// Config wires every collaborator the gateway needs. It is built once by
// internal/platform and handed to New.
type Config struct {
	Store        store.Store
	Vectors      vectorstore.Store
	Queue        queue.Queue
	Providers    *ai.Registry
	Webhooks     *webhook.Dispatcher
	Orchestrator *rag.Orchestrator
	Validator    *validate.Validator
	AuthResolver *authresolve.Resolver
	Signer       *crypto.SessionSigner
	Cipher       *crypto.FieldCipher
	Stats        *statscache.Cache

	AllowedOrigins    []string
	TrustedProxyCIDRs []string

	RedisAddr                string
	RedisPassword            string
	BootstrapRateLimitPerMin int
	LoginRateLimitPerMin     int
}

// Server implements the HTTP gateway described in the platform's external
// interfaces. Every handler receives a tenant-scoped AuthContext, never a
// raw session or token.
type Server struct {
	store        store.Store
	vectors      vectorstore.Store
	queue        queue.Queue
	providers    *ai.Registry
	webhooks     *webhook.Dispatcher
	rag          *rag.Orchestrator
	validator    *validate.Validator
	authResolver *authresolve.Resolver
	signer       *crypto.SessionSigner
	cipher       *crypto.FieldCipher
	stats        *statscache.Cache

	mux            *http.ServeMux
	allowedOrigins []string
	trustedProxies *util.TrustedProxies

	bootstrapLimiter *ratelimit.FixedWindowLimiter
	loginLimiter     *ratelimit.FixedWindowLimiter
}

// New constructs the gateway with routes configured.
func New(cfg Config) (*Server, error) {
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, err
	}

	rateWindow := time.Minute
	bootstrapLimit := cfg.BootstrapRateLimitPerMin
	if bootstrapLimit <= 0 {
		bootstrapLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMin
	if loginLimit <= 0 {
		loginLimit = 10
	}

	var bootstrapLimiter, loginLimiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		bootstrapLimiter, err = ratelimit.NewFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "minirag:gateway:ratelimit:bootstrap", bootstrapLimit, rateWindow)
		if err != nil {
			return nil, err
		}
		loginLimiter, err = ratelimit.NewFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "minirag:gateway:ratelimit:login", loginLimit, rateWindow)
		if err != nil {
			return nil, err
		}
	}

	s := &Server{
		store:            cfg.Store,
		vectors:          cfg.Vectors,
		queue:            cfg.Queue,
		providers:        cfg.Providers,
		webhooks:         cfg.Webhooks,
		rag:              cfg.Orchestrator,
		validator:        cfg.Validator,
		authResolver:     cfg.AuthResolver,
		signer:           cfg.Signer,
		cipher:           cfg.Cipher,
		stats:            cfg.Stats,
		mux:              http.NewServeMux(),
		allowedOrigins:   cfg.AllowedOrigins,
		trustedProxies:   trusted,
		bootstrapLimiter: bootstrapLimiter,
		loginLimiter:     loginLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the fully wrapped handler: security headers, CORS,
// request id propagation, and access logging around the route mux.
func (s *Server) Router() http.Handler {
	h := util.WithRequestLog("gateway", s.mux)
	h = util.WithRequestID(h)
	h = util.WithCORS(s.allowedOrigins, h)
	h = util.WithSecurityHeaders(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("/v1/tenants", s.handleTenants)
	s.mux.HandleFunc("/v1/auth/login", s.handleLogin)
	s.mux.Handle("/v1/auth/me", s.authenticated(s.handleAuthMe))
	s.mux.Handle("/v1/tenants/me", s.authenticated(s.handleTenantMe))

	s.mux.Handle("/v1/api-tokens", s.authenticated(s.handleApiTokens))
	s.mux.Handle("/v1/api-tokens/", s.authenticated(s.handleApiTokenByID))

	s.mux.Handle("/v1/bot-profiles", s.authenticated(s.handleBotProfiles))
	s.mux.Handle("/v1/bot-profiles/", s.authenticated(s.handleBotProfileByID))

	s.mux.Handle("/v1/sources", s.authenticated(s.handleSources))
	s.mux.Handle("/v1/sources/upload", s.authenticated(s.handleSourceUpload))
	s.mux.Handle("/v1/sources/batch", s.authenticated(s.handleSourceBatch))
	s.mux.Handle("/v1/sources/", s.authenticated(s.handleSourceByID))

	s.mux.Handle("/v1/chat", s.authenticated(s.handleChatCollection))
	s.mux.Handle("/v1/chat/", s.authenticated(s.handleChatByID))

	s.mux.Handle("/v1/webhooks", s.authenticated(s.handleWebhooks))
	s.mux.Handle("/v1/webhooks/", s.authenticated(s.handleWebhookByID))

	s.mux.Handle("/v1/stats/", s.authenticated(s.handleStats))

	s.mux.Handle("/v1/users", s.adminOnly(s.handleUsers))
	s.mux.Handle("/v1/users/", s.adminOnly(s.handleUserByID))

	s.mux.Handle("/v1/system/health", s.authenticated(s.handleSystemHealth))
}
