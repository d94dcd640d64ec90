package handler

import (
	"github.com/draftforge/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db          *gorm.DB
	generations *service.GenerationService
	research    *service.ResearchService
	outlines    *service.OutlineService
	sections    *service.SectionService
	credentials *service.CredentialService
	analytics   *service.AnalyticsService
	uploadDir   string
	uploadURL   string
}

// APIOptions 控制 NewAPI 的可调参数。
type APIOptions struct {
	UploadDir         string
	UploadURL         string
	SearchAPIURL      string
	SearchAPIKey      string
	GenerationWorkers int
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, opts APIOptions) *API {
	credentials := service.NewCredentialService(gdb)
	research := service.NewResearchService(opts.SearchAPIURL, opts.SearchAPIKey)
	outlines := service.NewOutlineService(credentials)

	return &API{
		db:          gdb,
		generations: service.NewGenerationService(gdb, credentials, research, outlines, opts.GenerationWorkers),
		research:    research,
		outlines:    outlines,
		sections:    service.NewSectionService(credentials),
		credentials: credentials,
		analytics:   service.NewAnalyticsService(gdb),
		uploadDir:   opts.UploadDir,
		uploadURL:   opts.UploadURL,
	}
}

// DB exposes the underlying gorm instance for legacy paths.
func (a *API) DB() *gorm.DB {
	return a.db
}

// Generations exposes the generation service, mainly for tests and shutdown.
func (a *API) Generations() *service.GenerationService {
	return a.generations
}

// Outlines exposes the outline service, mainly for tests.
func (a *API) Outlines() *service.OutlineService {
	return a.outlines
}

// Sections exposes the section service, mainly for tests.
func (a *API) Sections() *service.SectionService {
	return a.sections
}

// Close 停止后台生成协程。
func (a *API) Close() {
	if a.generations != nil {
		a.generations.Close()
	}
}
