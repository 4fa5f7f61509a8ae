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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider calls the Google AI Studio (Gemini) API for both
// embedding and chat completion.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiProvider constructs a provider with the given API key.
func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultGeminiBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// WithAPIKey returns a copy of the provider using key instead of its
// configured default, for callers overriding credentials per bot.
func (g *GeminiProvider) WithAPIKey(key string) Provider {
	clone := *g
	clone.apiKey = strings.TrimSpace(key)
	return &clone
}

func (g *GeminiProvider) requireKey() error {
	if g.apiKey == "" {
		return newError(KindAuth, "gemini api key required", nil)
	}
	return nil
}

// Embed implements Provider.
func (g *GeminiProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if err := g.requireKey(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		reqBody := geminiEmbedRequest{Content: geminiContent{Parts: []geminiPart{{Text: text}}}}
		var resp geminiEmbedResponse
		url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", g.baseURL, normalizeGeminiModel(model), g.apiKey)
		if err := g.doJSON(ctx, url, reqBody, &resp); err != nil {
			return nil, err
		}
		out[i] = resp.Embedding.Values
	}
	return out, nil
}

// Complete implements Provider.
func (g *GeminiProvider) Complete(ctx context.Context, model string, messages []Message, params Params) (Completion, error) {
	if err := g.requireKey(); err != nil {
		return Completion{}, err
	}
	reqBody := g.buildRequest(messages, params)
	var resp geminiGenerateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, normalizeGeminiModel(model), g.apiKey)
	if err := g.doJSON(ctx, url, reqBody, &resp); err != nil {
		return Completion{}, err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return Completion{}, newError(KindProviderUnavailable, "empty response from gemini", nil)
	}
	return Completion{
		Content:          resp.Candidates[0].Content.Parts[0].Text,
		PromptTokens:     int64(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
	}, nil
}

// CompleteStream implements Provider using Gemini's SSE streaming endpoint.
func (g *GeminiProvider) CompleteStream(ctx context.Context, model string, messages []Message, params Params, onDelta func(Delta) error) error {
	if err := g.requireKey(); err != nil {
		return err
	}
	reqBody := g.buildRequest(messages, params)
	body, err := json.Marshal(reqBody)
	if err != nil {
		return newError(KindProviderUnavailable, "marshal gemini request", err)
	}
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", g.baseURL, normalizeGeminiModel(model), g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return newError(KindProviderUnavailable, "build gemini stream request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return newError(KindProviderUnavailable, "gemini stream request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return g.errorFromBody(resp)
	}

	var usage Completion
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var chunk geminiGenerateResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			continue
		}
		if len(chunk.Candidates) > 0 && len(chunk.Candidates[0].Content.Parts) > 0 {
			text := chunk.Candidates[0].Content.Parts[0].Text
			if text != "" {
				if err := onDelta(Delta{Content: text}); err != nil {
					return err
				}
			}
		}
		if chunk.UsageMetadata.PromptTokenCount > 0 || chunk.UsageMetadata.CandidatesTokenCount > 0 {
			usage = Completion{
				PromptTokens:     int64(chunk.UsageMetadata.PromptTokenCount),
				CompletionTokens: int64(chunk.UsageMetadata.CandidatesTokenCount),
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return newError(KindProviderUnavailable, "read gemini stream", err)
	}
	return onDelta(Delta{Done: true, Usage: &usage})
}

func (g *GeminiProvider) buildRequest(messages []Message, params Params) geminiGenerateRequest {
	var systemPrompt string
	var contents []geminiContent
	for _, m := range messages {
		if m.Role == "system" {
			systemPrompt = m.Content
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	req := geminiGenerateRequest{Contents: contents}
	if systemPrompt != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	if params.Temperature > 0 || params.MaxTokens > 0 {
		req.GenerationConfig = &geminiGenerationConfig{
			Temperature:     params.Temperature,
			MaxOutputTokens: params.MaxTokens,
		}
	}
	return req
}

func (g *GeminiProvider) doJSON(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return newError(KindProviderUnavailable, "marshal gemini request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return newError(KindProviderUnavailable, "build gemini request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return newError(KindProviderUnavailable, "gemini request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return g.errorFromBody(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newError(KindProviderUnavailable, "decode gemini response", err)
	}
	return nil
}

func (g *GeminiProvider) errorFromBody(resp *http.Response) error {
	var errResp geminiErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	msg := errResp.Error.Message
	if msg == "" {
		msg = resp.Status
	}
	return newError(classifyHTTPStatus(resp.StatusCode), msg, nil)
}

func normalizeGeminiModel(model string) string {
	model = strings.TrimSpace(model)
	return strings.TrimPrefix(model, "models/")
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiEmbedRequest struct {
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

type geminiGenerateRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
