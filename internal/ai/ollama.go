package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

// OllamaProvider calls a local or self-hosted Ollama server.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaProvider constructs a provider with the given base URL, falling
// back to the standard local Ollama port when empty.
func NewOllamaProvider(baseURL string) *OllamaProvider {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Embed implements Provider.
func (o *OllamaProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	reqBody := ollamaEmbedRequest{Model: model, Input: texts}
	var resp ollamaEmbedResponse
	if err := o.doJSON(ctx, "/api/embed", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, newError(KindProviderUnavailable, "ollama embed response missing embeddings", nil)
	}
	return resp.Embeddings, nil
}

// Complete implements Provider.
func (o *OllamaProvider) Complete(ctx context.Context, model string, messages []Message, params Params) (Completion, error) {
	reqBody := o.buildChatRequest(model, messages, params, false)
	var resp ollamaChatResponse
	if err := o.doJSON(ctx, "/api/chat", reqBody, &resp); err != nil {
		return Completion{}, err
	}
	return Completion{
		Content:          resp.Message.Content,
		PromptTokens:     int64(resp.PromptEvalCount),
		CompletionTokens: int64(resp.EvalCount),
	}, nil
}

// CompleteStream implements Provider using Ollama's newline-delimited JSON
// streaming protocol.
func (o *OllamaProvider) CompleteStream(ctx context.Context, model string, messages []Message, params Params, onDelta func(Delta) error) error {
	reqBody := o.buildChatRequest(model, messages, params, true)
	body, err := json.Marshal(reqBody)
	if err != nil {
		return newError(KindProviderUnavailable, "marshal ollama request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return newError(KindProviderUnavailable, "build ollama stream request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return newError(KindProviderUnavailable, "ollama stream request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return o.errorFromBody(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			if err := onDelta(Delta{Content: chunk.Message.Content}); err != nil {
				return err
			}
		}
		if chunk.Done {
			usage := Completion{PromptTokens: int64(chunk.PromptEvalCount), CompletionTokens: int64(chunk.EvalCount)}
			return onDelta(Delta{Done: true, Usage: &usage})
		}
	}
	if err := scanner.Err(); err != nil {
		return newError(KindProviderUnavailable, "read ollama stream", err)
	}
	return nil
}

func (o *OllamaProvider) buildChatRequest(model string, messages []Message, params Params, stream bool) ollamaChatRequest {
	msgs := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	req := ollamaChatRequest{Model: model, Messages: msgs, Stream: stream}
	if params.Temperature > 0 {
		req.Options = &ollamaOptions{Temperature: params.Temperature}
	}
	return req
}

func (o *OllamaProvider) doJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return newError(KindProviderUnavailable, "marshal ollama request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return newError(KindProviderUnavailable, "build ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return newError(KindProviderUnavailable, "ollama request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return o.errorFromBody(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newError(KindProviderUnavailable, "decode ollama response", err)
	}
	return nil
}

func (o *OllamaProvider) errorFromBody(resp *http.Response) error {
	var errResp ollamaErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	msg := errResp.Error
	if msg == "" {
		msg = resp.Status
	}
	kind := classifyHTTPStatus(resp.StatusCode)
	if resp.StatusCode == http.StatusNotFound {
		kind = KindInvalidModel
	}
	return newError(kind, fmt.Sprintf("ollama: %s", msg), nil)
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  *ollamaOptions   `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}
