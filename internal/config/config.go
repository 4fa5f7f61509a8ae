package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full set of recognized environment options. It is loaded
// once at process startup and handed to internal/platform as an immutable
// value; nothing downstream reads os.Getenv directly.
type Config struct {
	DatabaseURL    string
	VectorURL      string
	QueueURL       string
	QueuePassword  string

	EncryptionKey    []byte
	SessionSigningKey []byte
	SessionExpire    time.Duration

	DefaultLLMModel       string
	DefaultEmbeddingModel string
	EmbeddingDimensions   int

	ProviderAPIKeys map[string]string
	OpenAIBaseURL   string
	OllamaBaseURL   string

	AllowedOrigins    []string
	TrustedProxyCIDRs []string

	BootstrapRateLimitPerMin int
	LoginRateLimitPerMin     int
	StatsCacheTTL            time.Duration

	WorkerConcurrency int

	HTTPAddr string
	LogLevel string
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		VectorURL:     strings.TrimSpace(os.Getenv("VECTOR_URL")),
		QueueURL:      strings.TrimSpace(os.Getenv("QUEUE_URL")),
		QueuePassword: os.Getenv("QUEUE_PASSWORD"),

		DefaultLLMModel:       envOrDefault("DEFAULT_LLM_MODEL", "gemini-1.5-flash"),
		DefaultEmbeddingModel: envOrDefault("DEFAULT_EMBEDDING_MODEL", "text-embedding-004"),

		OpenAIBaseURL: envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OllamaBaseURL: envOrDefault("OLLAMA_BASE_URL", "http://localhost:11434"),

		AllowedOrigins:    splitCSV(os.Getenv("ALLOWED_ORIGINS")),
		TrustedProxyCIDRs: splitCSV(os.Getenv("TRUSTED_PROXY_CIDRS")),

		HTTPAddr: envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel: envOrDefault("LOG_LEVEL", "info"),

		ProviderAPIKeys: map[string]string{
			"gemini": strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			"openai": strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			"ollama": strings.TrimSpace(os.Getenv("OLLAMA_API_KEY")),
		},
	}

	cfg.EmbeddingDimensions = 768
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_DIMENSIONS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.New("config: EMBEDDING_DIMENSIONS must be a positive integer")
		}
		cfg.EmbeddingDimensions = n
	}

	cfg.BootstrapRateLimitPerMin = envOrDefaultInt("BOOTSTRAP_RATE_LIMIT_PER_MIN", 5)
	cfg.LoginRateLimitPerMin = envOrDefaultInt("LOGIN_RATE_LIMIT_PER_MIN", 20)
	cfg.WorkerConcurrency = envOrDefaultInt("WORKER_CONCURRENCY", 4)

	statsCacheSeconds := envOrDefaultInt("STATS_CACHE_TTL_SECONDS", 30)
	cfg.StatsCacheTTL = time.Duration(statsCacheSeconds) * time.Second

	encryptionKey, err := decodeKey(os.Getenv("ENCRYPTION_KEY"))
	if err != nil {
		return nil, fmt.Errorf("config: ENCRYPTION_KEY: %w", err)
	}
	cfg.EncryptionKey = encryptionKey

	signingKey := strings.TrimSpace(os.Getenv("SESSION_SIGNING_KEY"))
	if signingKey == "" {
		return nil, errors.New("config: SESSION_SIGNING_KEY is required")
	}
	cfg.SessionSigningKey = []byte(signingKey)

	expireMinutes := 60
	if v := strings.TrimSpace(os.Getenv("SESSION_EXPIRE_MINUTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.New("config: SESSION_EXPIRE_MINUTES must be a positive integer")
		}
		expireMinutes = n
	}
	cfg.SessionExpire = time.Duration(expireMinutes) * time.Minute

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required")
	}
	if c.VectorURL == "" {
		return errors.New("config: VECTOR_URL is required")
	}
	if c.QueueURL == "" {
		return errors.New("config: QUEUE_URL is required")
	}
	if len(c.EncryptionKey) != 32 {
		return errors.New("config: ENCRYPTION_KEY must decode to 256 bits")
	}
	return nil
}

// decodeKey accepts ENCRYPTION_KEY as base64 (preferred) or a raw 32-byte string.
func decodeKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("required, 256-bit key")
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	return nil, errors.New("must be base64 or raw 32 bytes")
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
