package main

import (
	"log"

	"github.com/draftforge/internal/config"
	"github.com/draftforge/internal/db"
	"github.com/draftforge/internal/handler"
	"github.com/draftforge/internal/router"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// 可选的管理员引导账号
	if cfg.SuperRootUserName != "" && cfg.SuperRootPassword != "" {
		if err := db.EnsureUser(cfg.SuperRootUserName, cfg.SuperRootPassword); err != nil {
			log.Fatalf("failed to ensure root user: %v", err)
		}
	}

	api := handler.NewAPI(db.DB, handler.APIOptions{
		UploadDir:         cfg.UploadDir,
		UploadURL:         cfg.UploadURLPath,
		SearchAPIURL:      cfg.SearchAPIURL,
		SearchAPIKey:      cfg.SearchAPIKey,
		GenerationWorkers: cfg.GenerationWorkers,
	})
	defer api.Close()

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(cfg.SessionSecret, api)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}
