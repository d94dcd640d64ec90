package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/draftforge/internal/service"
	"github.com/gin-gonic/gin"
)

type aiSettingsRequest struct {
	Provider   string `json:"provider"`
	APIKey     string `json:"apiKey"`
	ModelName  string `json:"modelName"`
	Creativity string `json:"creativity"`
}

// GetAISettings 返回当前用户的模型平台配置，API Key 打码后返回。
func (a *API) GetAISettings(c *gin.Context) {
	creds, err := a.credentials.GetCredentials(currentUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrCredentialsMissing) {
			c.JSON(http.StatusOK, gin.H{"configured": false})
			return
		}
		respondError(c, http.StatusInternalServerError, "读取配置失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"configured": true,
		"provider":   creds.Provider,
		"apiKey":     maskAPIKey(creds.APIKey),
		"modelName":  creds.ModelName,
		"creativity": creds.Creativity,
	})
}

// UpdateAISettings 保存当前用户的模型平台配置。
func (a *API) UpdateAISettings(c *gin.Context) {
	var req aiSettingsRequest
	if !bindJSON(c, &req, "请求格式不正确") {
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		respondError(c, http.StatusBadRequest, "API Key 不能为空")
		return
	}

	creds, err := a.credentials.UpdateCredentials(currentUserID(c), service.CredentialsInput{
		Provider:   req.Provider,
		APIKey:     req.APIKey,
		ModelName:  req.ModelName,
		Creativity: req.Creativity,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "保存配置失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider":   creds.Provider,
		"apiKey":     maskAPIKey(creds.APIKey),
		"modelName":  creds.ModelName,
		"creativity": creds.Creativity,
	})
}

// TestAIConnection 在线验证 API Key 是否可用。
func (a *API) TestAIConnection(c *gin.Context) {
	var req aiSettingsRequest
	if !bindJSON(c, &req, "请求格式不正确") {
		return
	}

	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		// 未提交新 Key 时退回已保存的 Key
		creds, err := a.credentials.GetCredentials(currentUserID(c))
		if err != nil {
			respondError(c, http.StatusBadRequest, "请先填写或保存 API Key")
			return
		}
		key = creds.APIKey
		if strings.TrimSpace(req.Provider) == "" {
			req.Provider = creds.Provider
		}
	}

	if err := a.credentials.TestConnection(c.Request.Context(), req.Provider, key); err != nil {
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "连接成功"})
}

// maskAPIKey 只保留首尾各 4 个字符，其余打码。
func maskAPIKey(key string) string {
	runes := []rune(key)
	if len(runes) <= 8 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:4]) + strings.Repeat("*", 6) + string(runes[len(runes)-4:])
}
