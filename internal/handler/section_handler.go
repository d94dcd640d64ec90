package handler

import (
	"errors"
	"net/http"

	"github.com/draftforge/internal/service"
	"github.com/gin-gonic/gin"
)

type sectionRequest struct {
	Section     service.OutlineSection      `json:"section"`
	BlogTitle   string                      `json:"blogTitle"`
	PriorTitles []string                    `json:"priorTitles"`
	Competitors []service.CompetitorSummary `json:"competitors"`
	Tone        string                      `json:"tone"`
	Keywords    []string                    `json:"keywords"`
	Language    string                      `json:"language"`
}

// GenerateSection 生成单个章节的内容。
func (a *API) GenerateSection(c *gin.Context) {
	var req sectionRequest
	if !bindJSON(c, &req, "请求格式不正确") {
		return
	}

	result, err := a.sections.GenerateSection(c.Request.Context(), currentUserID(c), service.SectionInput{
		Section:     req.Section,
		BlogTitle:   req.BlogTitle,
		PriorTitles: req.PriorTitles,
		Competitors: req.Competitors,
		Tone:        req.Tone,
		Keywords:    req.Keywords,
		Language:    req.Language,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTopicRequired):
			respondError(c, http.StatusBadRequest, "章节标题不能为空")
		case errors.Is(err, service.ErrCredentialsMissing):
			respondError(c, http.StatusPreconditionFailed, "请先在设置中配置模型平台的 API Key")
		default:
			respondError(c, http.StatusBadGateway, "章节生成失败："+err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

type sectionBatchRequest struct {
	Sections    []service.OutlineSection    `json:"sections"`
	BlogTitle   string                      `json:"blogTitle"`
	Competitors []service.CompetitorSummary `json:"competitors"`
	Tone        string                      `json:"tone"`
	Keywords    []string                    `json:"keywords"`
	Language    string                      `json:"language"`
}

// GenerateSectionBatch 为所有选中章节批量生成内容。
func (a *API) GenerateSectionBatch(c *gin.Context) {
	var req sectionBatchRequest
	if !bindJSON(c, &req, "请求格式不正确") {
		return
	}
	if len(req.Sections) == 0 {
		respondError(c, http.StatusBadRequest, "章节列表不能为空")
		return
	}

	result, err := a.sections.GenerateAll(c.Request.Context(), currentUserID(c), service.SectionBatchInput{
		Sections:    req.Sections,
		BlogTitle:   req.BlogTitle,
		Competitors: req.Competitors,
		Tone:        req.Tone,
		Keywords:    req.Keywords,
		Language:    req.Language,
	}, nil)
	if err != nil {
		if errors.Is(err, service.ErrCredentialsMissing) {
			respondError(c, http.StatusPreconditionFailed, "请先在设置中配置模型平台的 API Key")
			return
		}
		respondError(c, http.StatusBadGateway, "批量生成失败："+err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}
