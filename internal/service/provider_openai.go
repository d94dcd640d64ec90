package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const defaultOpenAIModel = "gpt-4o-mini"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// openaiClient 调用 chat/completions 风格的接口。
// 覆盖 baseURL 即可接入任何 OpenAI 兼容网关（如 DeepSeek、自建代理）。
type openaiClient struct {
	apiKey  string
	model   string
	baseURL string
	http    httpDoer
}

func newOpenAIClient(apiKey, model string, httpClient httpDoer) *openaiClient {
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openaiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.openai.com/v1",
		http:    httpClient,
	}
}

// SetBaseURL 覆盖默认的 API 地址，便于测试或接入兼容网关。
func (c *openaiClient) SetBaseURL(base string) {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		return
	}
	c.baseURL = trimmed
}

// Complete 实现 providerClient。
func (c *openaiClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens < 0 {
		maxTokens = 0
	}

	payload := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(req.SystemPrompt)},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderOpenAI, Message: "构造请求失败", Err: err}
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderOpenAI, Message: "创建请求失败", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "draftforge-ai/1.0")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderOpenAI, Message: "请求接口失败", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderOpenAI, Message: "读取响应失败", Err: err}
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderOpenAI, Message: "解析响应失败", Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		errMsg := strings.TrimSpace(completion.Error.Message)
		if errMsg == "" {
			errMsg = strings.TrimSpace(string(respBody))
		}
		if errMsg == "" {
			errMsg = resp.Status
		}
		return CompletionResult{}, &ProviderError{Provider: ProviderOpenAI, Message: errMsg}
	}

	if len(completion.Choices) == 0 {
		return CompletionResult{}, &ProviderError{Provider: ProviderOpenAI, Message: "接口未返回结果"}
	}

	return CompletionResult{
		Content:          strings.TrimSpace(completion.Choices[0].Message.Content),
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}, nil
}
