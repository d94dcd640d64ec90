package handler

import (
	"errors"
	"net/http"

	"github.com/draftforge/internal/service"
	"github.com/gin-gonic/gin"
)

type outlineRequest struct {
	Topic           string                      `json:"topic"`
	Keywords        []string                    `json:"keywords"`
	Tone            string                      `json:"tone"`
	Language        string                      `json:"language"`
	TargetWords     int                         `json:"targetWords"`
	WordsPerSection int                         `json:"wordsPerSection"`
	Competitors     []service.CompetitorSummary `json:"competitors"`
}

// GenerateOutline 调用模型生成大纲。
func (a *API) GenerateOutline(c *gin.Context) {
	var req outlineRequest
	if !bindJSON(c, &req, "请求格式不正确") {
		return
	}

	result, err := a.outlines.GenerateOutline(c.Request.Context(), service.OutlineInput{
		UserID:          currentUserID(c),
		Topic:           req.Topic,
		Keywords:        req.Keywords,
		Tone:            req.Tone,
		Language:        req.Language,
		TargetWords:     req.TargetWords,
		WordsPerSection: req.WordsPerSection,
		Competitors:     req.Competitors,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTopicRequired):
			respondError(c, http.StatusBadRequest, "请填写大纲主题")
		case errors.Is(err, service.ErrCredentialsMissing):
			respondError(c, http.StatusPreconditionFailed, "请先在设置中配置模型平台的 API Key")
		default:
			respondError(c, http.StatusBadGateway, "大纲生成失败："+err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

type reorderRequest struct {
	Sections  []service.OutlineSection `json:"sections"`
	Index     int                      `json:"index"`
	Direction string                   `json:"direction"`
}

// ReorderOutline 调整章节顺序并返回重排后的大纲。
func (a *API) ReorderOutline(c *gin.Context) {
	var req reorderRequest
	if !bindJSON(c, &req, "请求格式不正确") {
		return
	}
	if req.Direction != "up" && req.Direction != "down" {
		respondError(c, http.StatusBadRequest, "direction 只支持 up 或 down")
		return
	}

	sections := service.MoveSection(req.Sections, req.Index, req.Direction)
	c.JSON(http.StatusOK, gin.H{"sections": sections})
}
