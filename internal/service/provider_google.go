package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultGoogleModel   = "gemini-1.5-flash"
	defaultGoogleBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type googleGenerateRequest struct {
	Contents          []googleContent        `json:"contents"`
	SystemInstruction *googleContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  googleGenerationConfig `json:"generationConfig"`
}

type googleGenerateResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// googleClient 调用 generateContent 风格的接口，API Key 通过查询参数传递。
type googleClient struct {
	apiKey  string
	model   string
	baseURL string
	http    httpDoer
}

func newGoogleClient(apiKey, model string, httpClient httpDoer) *googleClient {
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultGoogleModel
	}
	return &googleClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultGoogleBaseURL,
		http:    httpClient,
	}
}

// SetBaseURL 覆盖默认的 API 地址，主要用于测试。
func (c *googleClient) SetBaseURL(base string) {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		return
	}
	c.baseURL = trimmed
}

// Complete 实现 providerClient。
func (c *googleClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	payload := googleGenerateRequest{
		Contents: []googleContent{
			{Role: "user", Parts: []googlePart{{Text: req.UserPrompt}}},
		},
		GenerationConfig: googleGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		payload.SystemInstruction = &googleContent{Parts: []googlePart{{Text: system}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderGoogle, Message: "构造请求失败", Err: err}
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/models/" + c.model + ":generateContent?key=" + url.QueryEscape(c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderGoogle, Message: "创建请求失败", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "draftforge-ai/1.0")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderGoogle, Message: "请求接口失败", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderGoogle, Message: "读取响应失败", Err: err}
	}

	var completion googleGenerateResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderGoogle, Message: "解析响应失败", Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		errMsg := strings.TrimSpace(completion.Error.Message)
		if errMsg == "" {
			errMsg = strings.TrimSpace(string(respBody))
		}
		if errMsg == "" {
			errMsg = resp.Status
		}
		return CompletionResult{}, &ProviderError{Provider: ProviderGoogle, Message: errMsg}
	}

	var builder strings.Builder
	for _, candidate := range completion.Candidates {
		for _, part := range candidate.Content.Parts {
			builder.WriteString(part.Text)
		}
		break
	}

	content := strings.TrimSpace(builder.String())
	if content == "" {
		return CompletionResult{}, &ProviderError{Provider: ProviderGoogle, Message: "接口未返回结果"}
	}

	return CompletionResult{
		Content:          content,
		PromptTokens:     completion.UsageMetadata.PromptTokenCount,
		CompletionTokens: completion.UsageMetadata.CandidatesTokenCount,
	}, nil
}
