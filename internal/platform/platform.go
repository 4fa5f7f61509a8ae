// Package platform wires every collaborator package into one immutable
// application context, shared by both the gateway and worker binaries so
// they never construct their own divergent copies of the stack.
package platform

import (
	"fmt"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/ai"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/authresolve"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/config"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/crypto"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/ingest"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/queue"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/rag"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/statscache"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/validate"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/vectorstore"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/webhook"
)

// Platform holds every shared collaborator, constructed once at process
// startup from config.Config. Both cmd/server and cmd/worker build one
// and read from it; neither mutates it afterward.
type Platform struct {
	Config *config.Config

	Store     store.Store
	Vectors   vectorstore.Store
	Queue     queue.Queue
	Providers *ai.Registry

	Signer *crypto.SessionSigner
	Cipher *crypto.FieldCipher

	Webhooks     *webhook.Dispatcher
	Validator    *validate.Validator
	AuthResolver *authresolve.Resolver
	Orchestrator *rag.Orchestrator
	Ingest       *ingest.Worker
	Stats        *statscache.Cache
}

// New constructs every collaborator from cfg. Callers are responsible for
// calling Close when done (gateway and worker both run until signaled, so
// in practice this only matters for tests and short-lived tooling).
func New(cfg *config.Config) (*Platform, error) {
	metaStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("platform: open metadata store: %w", err)
	}

	vectors, err := vectorstore.NewPostgresStore(cfg.VectorURL, cfg.EmbeddingDimensions)
	if err != nil {
		return nil, fmt.Errorf("platform: open vector store: %w", err)
	}

	q, err := queue.NewRedisQueue(cfg.QueueURL, cfg.QueuePassword, "", "")
	if err != nil {
		return nil, fmt.Errorf("platform: open queue: %w", err)
	}

	signer, err := crypto.NewSessionSigner(cfg.SessionSigningKey, cfg.SessionExpire)
	if err != nil {
		return nil, fmt.Errorf("platform: build session signer: %w", err)
	}

	cipher, err := crypto.NewFieldCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("platform: build field cipher: %w", err)
	}

	providers := buildProviderRegistry(cfg)

	webhooks := webhook.New(metaStore)
	validator := validate.New(metaStore)
	authResolver := authresolve.New(signer, metaStore)
	orchestrator := rag.New(metaStore, vectors, providers, webhooks, cipher)
	ingestWorker := ingest.New(metaStore, vectors, providers, webhooks, cipher)
	stats := statscache.New(cfg.StatsCacheTTL)

	return &Platform{
		Config: cfg,

		Store:     metaStore,
		Vectors:   vectors,
		Queue:     q,
		Providers: providers,

		Signer: signer,
		Cipher: cipher,

		Webhooks:     webhooks,
		Validator:    validator,
		AuthResolver: authResolver,
		Orchestrator: orchestrator,
		Ingest:       ingestWorker,
		Stats:        stats,
	}, nil
}

// buildProviderRegistry registers one provider per known model-name
// prefix. Missing API keys are not fatal at startup: a bot that needs a
// provider with no process-default credential can still supply its own
// via BotProfile.EncryptedCredentials, resolved per-call through
// ai.Registry.ResolveWithCredential.
func buildProviderRegistry(cfg *config.Config) *ai.Registry {
	registry := ai.NewRegistry()
	registry.Register("gemini-", ai.NewGeminiProvider(cfg.ProviderAPIKeys["gemini"]))
	registry.Register("text-embedding-", ai.NewGeminiProvider(cfg.ProviderAPIKeys["gemini"]))
	registry.Register("gpt-", ai.NewOpenAICompatProvider(cfg.OpenAIBaseURL, cfg.ProviderAPIKeys["openai"]))
	registry.SetFallback(ai.NewOllamaProvider(cfg.OllamaBaseURL))
	return registry
}

// Close releases any resources the platform opened. It closes the
// metadata store (when it has a Close method) and the queue; the vector
// store's connection is not closed here.
func (p *Platform) Close() error {
	if closer, ok := p.Store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return err
		}
	}
	return p.Queue.Close()
}
