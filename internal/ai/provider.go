// Package ai provides a uniform completion and embedding abstraction over
// external LLM providers, dispatched by model-name prefix.
package ai

import (
	"context"
	"fmt"
	"strings"
)

// Message is one turn in a chat-completion request.
type Message struct {
	Role    string
	Content string
}

// Params tunes a completion call.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Completion is the result of a non-streaming completion call.
type Completion struct {
	Content          string
	PromptTokens     int64
	CompletionTokens int64
}

// Delta is one fragment of a streaming completion. Usage is populated only
// on the final delta.
type Delta struct {
	Content string
	Done     bool
	Usage    *Completion
}

// Provider is the capability every LLM/embedding backend implements.
type Provider interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
	Complete(ctx context.Context, model string, messages []Message, params Params) (Completion, error)
	CompleteStream(ctx context.Context, model string, messages []Message, params Params, onDelta func(Delta) error) error
}

// ErrorKind classifies a provider failure so callers can react (retry,
// surface to the user, fail the request) without parsing error text.
type ErrorKind string

const (
	KindAuth                ErrorKind = "auth_error"
	KindRateLimited         ErrorKind = "rate_limited"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindInvalidModel        ErrorKind = "invalid_model"
)

// Error wraps a provider failure with its classification.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// classifyHTTPStatus maps a provider's HTTP status to an ErrorKind, used by
// every concrete client's error path.
func classifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status == 404:
		return KindInvalidModel
	case status >= 500:
		return KindProviderUnavailable
	default:
		return KindProviderUnavailable
	}
}

// Registry dispatches to a Provider by model-name prefix, keeping provider
// selection out of the orchestrator.
type Registry struct {
	byPrefix map[string]Provider
	order    []string
	fallback Provider
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byPrefix: make(map[string]Provider)}
}

// Register associates a model-name prefix with a provider implementation.
// Longer, more specific prefixes should be registered; lookup picks the
// longest matching prefix.
func (r *Registry) Register(prefix string, p Provider) {
	r.byPrefix[prefix] = p
	r.order = append(r.order, prefix)
}

// SetFallback designates a provider used when no prefix matches.
func (r *Registry) SetFallback(p Provider) {
	r.fallback = p
}

// Resolve returns the provider registered for model, preferring the
// longest matching prefix.
func (r *Registry) Resolve(model string) (Provider, error) {
	best := ""
	var bestProvider Provider
	for _, prefix := range r.order {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
			bestProvider = r.byPrefix[prefix]
		}
	}
	if bestProvider != nil {
		return bestProvider, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, newError(KindInvalidModel, fmt.Sprintf("no provider registered for model %q", model), nil)
}

// WithAPIKeyer is implemented by providers that support a per-call
// credential override. ResolveWithCredential uses it to honor a bot's
// own API key without mutating the shared registered instance.
type WithAPIKeyer interface {
	WithAPIKey(key string) Provider
}

// ResolveWithCredential resolves model as Resolve does, then substitutes
// apiKey for the provider's default credential if apiKey is non-empty and
// the resolved provider supports an override. Providers with no notion of
// credentials (e.g. a local Ollama server) ignore the override.
func (r *Registry) ResolveWithCredential(model, apiKey string) (Provider, error) {
	p, err := r.Resolve(model)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return p, nil
	}
	if overridable, ok := p.(WithAPIKeyer); ok {
		return overridable.WithAPIKey(apiKey), nil
	}
	return p, nil
}
