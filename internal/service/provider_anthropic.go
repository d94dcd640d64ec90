package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const (
	defaultAnthropicModel   = "claude-3-5-sonnet-latest"
	anthropicAPIVersion     = "2023-06-01"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// anthropicClient 调用 messages 风格的接口，正文以 content 块数组返回。
type anthropicClient struct {
	apiKey  string
	model   string
	baseURL string
	http    httpDoer
}

func newAnthropicClient(apiKey, model string, httpClient httpDoer) *anthropicClient {
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultAnthropicModel
	}
	return &anthropicClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultAnthropicBaseURL,
		http:    httpClient,
	}
}

// SetBaseURL 覆盖默认的 API 地址，主要用于测试。
func (c *anthropicClient) SetBaseURL(base string) {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		return
	}
	c.baseURL = trimmed
}

// Complete 实现 providerClient。
func (c *anthropicClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	// messages 接口要求显式的 max_tokens
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = maxCompletionTokens
	}

	payload := anthropicRequest{
		Model:       c.model,
		System:      strings.TrimSpace(req.SystemPrompt),
		Messages:    []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderAnthropic, Message: "构造请求失败", Err: err}
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderAnthropic, Message: "创建请求失败", Err: err}
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "draftforge-ai/1.0")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderAnthropic, Message: "请求接口失败", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderAnthropic, Message: "读取响应失败", Err: err}
	}

	var completion anthropicResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return CompletionResult{}, &ProviderError{Provider: ProviderAnthropic, Message: "解析响应失败", Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		errMsg := strings.TrimSpace(completion.Error.Message)
		if errMsg == "" {
			errMsg = strings.TrimSpace(string(respBody))
		}
		if errMsg == "" {
			errMsg = resp.Status
		}
		return CompletionResult{}, &ProviderError{Provider: ProviderAnthropic, Message: errMsg}
	}

	var builder strings.Builder
	for _, block := range completion.Content {
		if block.Type != "" && block.Type != "text" {
			continue
		}
		builder.WriteString(block.Text)
	}

	content := strings.TrimSpace(builder.String())
	if content == "" {
		return CompletionResult{}, &ProviderError{Provider: ProviderAnthropic, Message: "接口未返回结果"}
	}

	return CompletionResult{
		Content:          content,
		PromptTokens:     completion.Usage.InputTokens,
		CompletionTokens: completion.Usage.OutputTokens,
	}, nil
}
