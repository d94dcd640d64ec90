package handler

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/draftforge/internal/db"
	"github.com/draftforge/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const visitorCookieName = "df_visitor_id"

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
	goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
)

var sanitizer = bluemonday.UGCPolicy()

type createGenerationRequest struct {
	Topic           string            `json:"topic"`
	Keywords        []string          `json:"keywords"`
	Tone            string            `json:"tone"`
	Language        string            `json:"language"`
	TargetWords     int               `json:"targetWords"`
	ResearchEnabled bool              `json:"researchEnabled"`
	IncludeImages   bool              `json:"includeImages"`
	SEOOptimize     bool              `json:"seoOptimize"`
	UploadedFiles   []db.UploadedFile `json:"uploadedFiles"`
}

// CreateGeneration 创建生成任务并立即返回 202，生成在后台异步执行。
func (a *API) CreateGeneration(c *gin.Context) {
	var req createGenerationRequest
	if !bindJSON(c, &req, "请求格式不正确") {
		return
	}

	record, err := a.generations.StartGeneration(currentUserID(c), service.GenerationInput{
		Topic:           req.Topic,
		Keywords:        req.Keywords,
		Tone:            req.Tone,
		Language:        req.Language,
		TargetWords:     req.TargetWords,
		ResearchEnabled: req.ResearchEnabled,
		IncludeImages:   req.IncludeImages,
		SEOOptimize:     req.SEOOptimize,
		UploadedFiles:   req.UploadedFiles,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTopicRequired):
			respondError(c, http.StatusBadRequest, "请填写生成主题")
		case errors.Is(err, service.ErrTargetWordsInvalid):
			respondError(c, http.StatusBadRequest, "目标字数需在 100 到 20000 之间")
		case errors.Is(err, service.ErrCredentialsMissing):
			respondError(c, http.StatusPreconditionFailed, "请先在设置中配置模型平台的 API Key")
		default:
			respondError(c, http.StatusInternalServerError, "创建生成任务失败")
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"recordId": record.ID,
		"status":   record.Status,
	})
}

// GetGenerationStatus 返回任务状态摘要，同时记录一次浏览。
func (a *API) GetGenerationStatus(c *gin.Context) {
	recordID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的记录 ID")
		return
	}

	status, err := a.generations.Status(recordID, currentUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrGenerationNotFound) {
			respondError(c, http.StatusNotFound, "记录不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "查询状态失败")
		return
	}

	if visitorID := a.ensureVisitorID(c); visitorID != "" {
		// 统计失败不影响轮询结果
		a.analytics.RecordGenerationView(recordID, visitorID, time.Now())
	}

	c.JSON(http.StatusOK, status)
}

// ListGenerations 分页查询当前用户的生成记录。
func (a *API) ListGenerations(c *gin.Context) {
	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "perPage", 10)

	result, err := a.generations.List(service.GenerationFilter{
		UserID:  currentUserID(c),
		Search:  c.Query("search"),
		Status:  c.Query("status"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询记录列表失败")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetGeneration 返回完整的生成记录。
func (a *API) GetGeneration(c *gin.Context) {
	recordID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的记录 ID")
		return
	}

	record, err := a.generations.Get(recordID, currentUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrGenerationNotFound) {
			respondError(c, http.StatusNotFound, "记录不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "查询记录失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record":      record,
		"keywords":    record.KeywordList(),
		"suggestions": record.SuggestionList(),
		"images":      record.ImageList(),
	})
}

// DeleteGeneration 删除生成记录。
func (a *API) DeleteGeneration(c *gin.Context) {
	recordID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的记录 ID")
		return
	}

	if err := a.generations.Delete(recordID, currentUserID(c)); err != nil {
		if errors.Is(err, service.ErrGenerationNotFound) {
			respondError(c, http.StatusNotFound, "记录不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "删除记录失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "已删除"})
}

// PreviewGeneration 将 Markdown 正文渲染为净化后的 HTML。
func (a *API) PreviewGeneration(c *gin.Context) {
	recordID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的记录 ID")
		return
	}

	record, err := a.generations.Get(recordID, currentUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrGenerationNotFound) {
			respondError(c, http.StatusNotFound, "记录不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "查询记录失败")
		return
	}

	rendered, err := renderMarkdown(record.Content)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "渲染预览失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"title": record.Title,
		"html":  rendered,
	})
}

func renderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return sanitizer.Sanitize(buf.String()), nil
}

// ensureVisitorID 读取或下发访客 Cookie。
func (a *API) ensureVisitorID(c *gin.Context) string {
	if visitorID, err := c.Cookie(visitorCookieName); err == nil && visitorID != "" {
		return visitorID
	}
	visitorID := uuid.New().String()
	c.SetCookie(visitorCookieName, visitorID, int((365 * 24 * time.Hour).Seconds()), "/", "", false, true)
	return visitorID
}
