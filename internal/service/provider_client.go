package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// 支持的大模型平台标识。
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// 创意偏好档位。
const (
	CreativityConservative = "conservative"
	CreativityBalanced     = "balanced"
	CreativityCreative     = "creative"
)

const (
	defaultCompletionTemperature = 0.7
	maxCompletionTokens          = 4000
	minCompletionTokens          = 256
	providerCallTimeout          = 180 * time.Second
)

// httpDoer 抽象出底层 HTTP 客户端，便于在测试中注入假实现。
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CompletionRequest 描述一次模型补全调用。
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// CompletionResult 返回模型产出的文本及用量信息。
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// ProviderError 统一封装模型后端的调用失败（鉴权、限流、网络等）。
// 适配层本身不做重试，是否重试由上层编排逻辑决定。
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return e.Provider + ": 接口调用失败"
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderClient 是对多家模型平台的统一抽象，调用方不感知平台差异。
type ProviderClient interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// ProviderFactory 根据凭据构造对应平台的客户端，是各业务服务的注入点。
type ProviderFactory func(cred Credentials) (ProviderClient, error)

// newProviderClient 是默认工厂，按凭据中的平台标识选择实现。
func newProviderClient(cred Credentials) (ProviderClient, error) {
	return newProviderClientWith(cred, &http.Client{Timeout: providerCallTimeout})
}

func newProviderClientWith(cred Credentials, httpClient httpDoer) (ProviderClient, error) {
	apiKey := strings.TrimSpace(cred.APIKey)
	if apiKey == "" {
		return nil, ErrCredentialsMissing
	}

	switch normalizeProvider(cred.Provider) {
	case ProviderAnthropic:
		return newAnthropicClient(apiKey, cred.ModelName, httpClient), nil
	case ProviderGoogle:
		return newGoogleClient(apiKey, cred.ModelName, httpClient), nil
	case ProviderOpenAI:
		return newOpenAIClient(apiKey, cred.ModelName, httpClient), nil
	default:
		return nil, fmt.Errorf("不支持的模型平台：%s", cred.Provider)
	}
}

// temperatureForCreativity 将创意偏好映射为采样温度，未识别的档位使用默认值。
func temperatureForCreativity(creativity string) float64 {
	switch strings.ToLower(strings.TrimSpace(creativity)) {
	case CreativityConservative:
		return 0.3
	case CreativityBalanced:
		return 0.5
	case CreativityCreative:
		return 0.8
	default:
		return defaultCompletionTemperature
	}
}

// maxTokensForWords 按目标字数估算输出 token 上限（约 3 token/词），
// 并设置上下限以约束成本与时延。
func maxTokensForWords(words int) int {
	if words <= 0 {
		return maxCompletionTokens
	}
	tokens := words * 3
	if tokens > maxCompletionTokens {
		return maxCompletionTokens
	}
	if tokens < minCompletionTokens {
		return minCompletionTokens
	}
	return tokens
}

func normalizeProvider(provider string) string {
	trimmed := strings.ToLower(strings.TrimSpace(provider))
	switch trimmed {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		return trimmed
	}
	return ""
}
