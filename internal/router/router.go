package router

import (
	"net/http"

	"github.com/draftforge/internal/handler"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置 Gin 引擎和路由。
func SetupRouter(sessionSecret string, api *handler.API) *gin.Engine {
	r := gin.Default()

	store := cookie.NewStore([]byte(sessionSecret))
	r.Use(sessions.Sessions("draftforge_session", store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	admin := r.Group("/admin")
	{
		admin.POST("/login", api.Login)
		admin.POST("/logout", api.Logout)

		// 需要认证的 API 路由
		auth := admin.Group("/api")
		auth.Use(handler.AuthRequired())
		{
			auth.POST("/generations", api.CreateGeneration)
			auth.GET("/generations", api.ListGenerations)
			auth.GET("/generations/:id", api.GetGeneration)
			auth.GET("/generations/:id/status", api.GetGenerationStatus)
			auth.GET("/generations/:id/preview", api.PreviewGeneration)
			auth.DELETE("/generations/:id", api.DeleteGeneration)

			auth.POST("/research", api.RunResearch)

			auth.POST("/outline", api.GenerateOutline)
			auth.POST("/outline/reorder", api.ReorderOutline)

			auth.POST("/sections", api.GenerateSection)
			auth.POST("/sections/batch", api.GenerateSectionBatch)

			auth.GET("/settings/ai", api.GetAISettings)
			auth.PUT("/settings/ai", api.UpdateAISettings)
			auth.POST("/settings/ai/test", api.TestAIConnection)

			auth.POST("/uploads/document", api.UploadDocument)
			auth.POST("/uploads/image", api.UploadImage)
		}
	}

	return r
}
