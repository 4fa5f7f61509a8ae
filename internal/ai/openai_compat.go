package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatProvider calls any OpenAI-compatible API (OpenAI itself,
// vLLM, LiteLLM, LocalAI, OpenRouter, self-hosted models, etc).
type OpenAICompatProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAICompatProvider builds a provider. baseURL should include the
// /v1 prefix. apiKey may be empty for unauthenticated local servers.
func NewOpenAICompatProvider(baseURL, apiKey string) *OpenAICompatProvider {
	return &OpenAICompatProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// WithAPIKey returns a copy of the provider using key instead of its
// configured default, for callers overriding credentials per bot.
func (p *OpenAICompatProvider) WithAPIKey(key string) Provider {
	clone := *p
	clone.apiKey = strings.TrimSpace(key)
	return &clone
}

// Embed implements Provider.
func (p *OpenAICompatProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	reqBody := oaiEmbedRequest{Model: model, Input: texts}
	var resp oaiEmbedResponse
	if err := p.doJSON(ctx, "/embeddings", reqBody, &resp); err != nil {
		return nil, err
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// Complete implements Provider.
func (p *OpenAICompatProvider) Complete(ctx context.Context, model string, messages []Message, params Params) (Completion, error) {
	reqBody := p.buildRequest(model, messages, params, false)
	var resp oaiChatResponse
	if err := p.doJSON(ctx, "/chat/completions", reqBody, &resp); err != nil {
		return Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return Completion{}, newError(KindProviderUnavailable, "empty response from openai-compat api", nil)
	}
	return Completion{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     int64(resp.Usage.PromptTokens),
		CompletionTokens: int64(resp.Usage.CompletionTokens),
	}, nil
}

// CompleteStream implements Provider using the OpenAI chat-completions SSE
// streaming protocol.
func (p *OpenAICompatProvider) CompleteStream(ctx context.Context, model string, messages []Message, params Params, onDelta func(Delta) error) error {
	reqBody := p.buildRequest(model, messages, params, true)
	body, err := json.Marshal(reqBody)
	if err != nil {
		return newError(KindProviderUnavailable, "marshal openai-compat request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return newError(KindProviderUnavailable, "build openai-compat stream request", err)
	}
	p.setHeaders(req)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return newError(KindProviderUnavailable, "openai-compat stream request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return p.errorFromBody(resp)
	}

	var usage Completion
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return onDelta(Delta{Done: true, Usage: &usage})
		}
		var chunk oaiStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = Completion{PromptTokens: int64(chunk.Usage.PromptTokens), CompletionTokens: int64(chunk.Usage.CompletionTokens)}
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if err := onDelta(Delta{Content: chunk.Choices[0].Delta.Content}); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return newError(KindProviderUnavailable, "read openai-compat stream", err)
	}
	return onDelta(Delta{Done: true, Usage: &usage})
}

func (p *OpenAICompatProvider) buildRequest(model string, messages []Message, params Params, stream bool) oaiChatRequest {
	msgs := make([]oaiMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, oaiMessage{Role: m.Role, Content: m.Content})
	}
	req := oaiChatRequest{Model: model, Messages: msgs, Stream: stream}
	if params.Temperature > 0 {
		req.Temperature = params.Temperature
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}
	if stream {
		req.StreamOptions = &oaiStreamOptions{IncludeUsage: true}
	}
	return req
}

func (p *OpenAICompatProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

func (p *OpenAICompatProvider) doJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return newError(KindProviderUnavailable, "marshal openai-compat request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return newError(KindProviderUnavailable, "build openai-compat request", err)
	}
	p.setHeaders(req)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return newError(KindProviderUnavailable, "openai-compat request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return p.errorFromBody(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newError(KindProviderUnavailable, "decode openai-compat response", err)
	}
	return nil
}

func (p *OpenAICompatProvider) errorFromBody(resp *http.Response) error {
	var errResp oaiErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	msg := errResp.Error.Message
	if msg == "" {
		msg = resp.Status
	}
	return newError(classifyHTTPStatus(resp.StatusCode), msg, nil)
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type oaiChatRequest struct {
	Model         string            `json:"model"`
	Messages      []oaiMessage      `json:"messages"`
	Stream        bool              `json:"stream"`
	Temperature   float64           `json:"temperature,omitempty"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	StreamOptions *oaiStreamOptions `json:"stream_options,omitempty"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
	Usage oaiUsage `json:"usage"`
}

type oaiStreamChunk struct {
	Choices []struct {
		Delta oaiMessage `json:"delta"`
	} `json:"choices"`
	Usage *oaiUsage `json:"usage"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type oaiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type oaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}
