package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/draftforge/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCredentialsMissing 表示用户尚未配置可用的模型平台凭据。
// 生成入口必须把它同步返回给调用方，而不是留到后台任务里才暴露。
var ErrCredentialsMissing = errors.New("provider credentials are not configured")

// Credentials 描述生成流水线所需的只读凭据信息。
type Credentials struct {
	Provider   string
	APIKey     string
	ModelName  string
	Creativity string
}

// CredentialsInput 用于更新用户凭据。
type CredentialsInput struct {
	Provider   string
	APIKey     string
	ModelName  string
	Creativity string
}

// CredentialService 提供凭据的读取与更新能力，并可在线校验 API Key 有效性。
type CredentialService struct {
	db               *gorm.DB
	httpClient       httpDoer
	openAIBaseURL    string
	anthropicBaseURL string
	googleBaseURL    string
}

// NewCredentialService 构造 CredentialService。
func NewCredentialService(gdb *gorm.DB) *CredentialService {
	return &CredentialService{
		db:               gdb,
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		openAIBaseURL:    "https://api.openai.com/v1",
		anthropicBaseURL: defaultAnthropicBaseURL,
		googleBaseURL:    defaultGoogleBaseURL,
	}
}

// GetCredentials 读取用户的凭据，未配置或 Key 为空时返回 ErrCredentialsMissing。
func (s *CredentialService) GetCredentials(userID uint) (Credentials, error) {
	var record db.ProviderCredential
	if err := s.db.Where("user_id = ?", userID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Credentials{}, ErrCredentialsMissing
		}
		return Credentials{}, fmt.Errorf("load provider credentials: %w", err)
	}

	if strings.TrimSpace(record.APIKey) == "" {
		return Credentials{}, ErrCredentialsMissing
	}

	provider := normalizeProvider(record.Provider)
	if provider == "" {
		provider = ProviderOpenAI
	}

	return Credentials{
		Provider:   provider,
		APIKey:     strings.TrimSpace(record.APIKey),
		ModelName:  strings.TrimSpace(record.ModelName),
		Creativity: normalizeCreativity(record.Creativity),
	}, nil
}

// UpdateCredentials 保存用户凭据，同一用户始终只保留一条记录。
func (s *CredentialService) UpdateCredentials(userID uint, input CredentialsInput) (Credentials, error) {
	provider := normalizeProvider(input.Provider)
	if provider == "" {
		provider = ProviderOpenAI
	}

	sanitized := Credentials{
		Provider:   provider,
		APIKey:     strings.TrimSpace(input.APIKey),
		ModelName:  strings.TrimSpace(input.ModelName),
		Creativity: normalizeCreativity(input.Creativity),
	}

	record := db.ProviderCredential{
		UserID:     userID,
		Provider:   sanitized.Provider,
		APIKey:     sanitized.APIKey,
		ModelName:  sanitized.ModelName,
		Creativity: sanitized.Creativity,
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"provider":   sanitized.Provider,
			"api_key":    sanitized.APIKey,
			"model_name": sanitized.ModelName,
			"creativity": sanitized.Creativity,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&record).Error; err != nil {
		return Credentials{}, fmt.Errorf("update provider credentials: %w", err)
	}

	return sanitized, nil
}

// SetHTTPClient 替换用于访问第三方服务的 HTTP 客户端，主要面向测试场景。
func (s *CredentialService) SetHTTPClient(client httpDoer) {
	if client == nil {
		s.httpClient = &http.Client{Timeout: 10 * time.Second}
		return
	}
	s.httpClient = client
}

// SetOpenAIBaseURL 覆盖 OpenAI API 的基础地址，便于测试或自定义代理。
func (s *CredentialService) SetOpenAIBaseURL(base string) {
	s.openAIBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// SetAnthropicBaseURL 覆盖 Anthropic API 的基础地址。
func (s *CredentialService) SetAnthropicBaseURL(base string) {
	s.anthropicBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// SetGoogleBaseURL 覆盖 Google API 的基础地址。
func (s *CredentialService) SetGoogleBaseURL(base string) {
	s.googleBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// TestConnection 调用指定平台的模型列表接口验证 API Key 的有效性。
func (s *CredentialService) TestConnection(ctx context.Context, provider, apiKey string) error {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return ErrCredentialsMissing
	}

	prov := normalizeProvider(provider)
	if prov == "" {
		prov = ProviderOpenAI
	}

	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	var (
		endpoint string
		label    string
		header   http.Header = make(http.Header)
	)

	switch prov {
	case ProviderAnthropic:
		base := s.anthropicBaseURL
		if strings.TrimSpace(base) == "" {
			base = defaultAnthropicBaseURL
		}
		endpoint = strings.TrimRight(base, "/") + "/v1/models"
		header.Set("x-api-key", key)
		header.Set("anthropic-version", anthropicAPIVersion)
		label = "Anthropic"
	case ProviderGoogle:
		base := s.googleBaseURL
		if strings.TrimSpace(base) == "" {
			base = defaultGoogleBaseURL
		}
		endpoint = strings.TrimRight(base, "/") + "/models?key=" + url.QueryEscape(key)
		label = "Google"
	default:
		base := s.openAIBaseURL
		if strings.TrimSpace(base) == "" {
			base = "https://api.openai.com/v1"
		}
		endpoint = strings.TrimRight(base, "/") + "/models"
		header.Set("Authorization", "Bearer "+key)
		label = "OpenAI"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", strings.ToLower(label), err)
	}
	for name, values := range header {
		for _, value := range values {
			req.Header.Set(name, value)
		}
	}
	req.Header.Set("User-Agent", "draftforge-admin/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 接口失败: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("%s 返回错误：%s (%s)", label, resp.Status, msg)
		}
		return fmt.Errorf("%s 返回错误：%s", label, resp.Status)
	}

	return nil
}

func normalizeCreativity(creativity string) string {
	trimmed := strings.ToLower(strings.TrimSpace(creativity))
	switch trimmed {
	case CreativityConservative, CreativityBalanced, CreativityCreative:
		return trimmed
	}
	return ""
}
