package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type researchRequest struct {
	Topic string `json:"topic"`
}

// RunResearch 同步执行一次竞品调研并返回结构化摘要。
func (a *API) RunResearch(c *gin.Context) {
	var req researchRequest
	if !bindJSON(c, &req, "请求格式不正确") {
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		respondError(c, http.StatusBadRequest, "请填写调研主题")
		return
	}

	competitors := a.research.Research(c.Request.Context(), req.Topic)
	c.JSON(http.StatusOK, gin.H{
		"topic":       strings.TrimSpace(req.Topic),
		"competitors": competitors,
	})
}
