package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/draftforge/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrGenerationNotFound 表示记录不存在或不属于当前用户。
	ErrGenerationNotFound = errors.New("generation record not found")
	// ErrTopicRequired 表示缺少生成主题。
	ErrTopicRequired = errors.New("topic is required")
	// ErrTargetWordsInvalid 表示目标字数超出允许范围。
	ErrTargetWordsInvalid = errors.New("target words out of range")
)

const (
	minTargetWords     = 100
	maxTargetWords     = 20000
	defaultTargetWords = 1500

	generationQueueSize      = 128
	defaultGenerationWorkers = 2
)

// GenerationInput 描述一次生成任务的全部参数。
type GenerationInput struct {
	Topic           string
	Keywords        []string
	Tone            string
	Language        string
	TargetWords     int
	ResearchEnabled bool
	IncludeImages   bool
	SEOOptimize     bool
	UploadedFiles   []db.UploadedFile
}

// GenerationStatus 是状态轮询接口返回的摘要。
type GenerationStatus struct {
	RecordID       uint    `json:"recordId"`
	Status         string  `json:"status"`
	Progress       string  `json:"progress"`
	WordCount      int     `json:"wordCount"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	Error          string  `json:"error,omitempty"`
}

// GenerationFilter 描述列表查询的筛选与分页参数。
type GenerationFilter struct {
	UserID  uint
	Search  string
	Status  string
	Page    int
	PerPage int
}

// GenerationListResult 是分页列表的返回结构。
type GenerationListResult struct {
	Records []db.GenerationRecord `json:"records"`
	Total   int64                 `json:"total"`
	Page    int                   `json:"page"`
	PerPage int                   `json:"perPage"`
}

// GenerationService 负责生成任务的全生命周期：
// 入队、后台执行（调研、大纲、正文、后处理）、状态查询与列表管理。
type GenerationService struct {
	db          *gorm.DB
	credentials *CredentialService
	research    *ResearchService
	outlines    *OutlineService
	seo         *SEOService
	images      ImageAttacher
	factory     ProviderFactory

	jobs     chan uint
	mu       sync.Mutex
	inFlight map[uint]bool
	wg       sync.WaitGroup
	closed   bool

	docLimit int
}

// NewGenerationService 构造 GenerationService 并启动 workers 个后台协程。
func NewGenerationService(gdb *gorm.DB, credentials *CredentialService, research *ResearchService, outlines *OutlineService, workers int) *GenerationService {
	if workers <= 0 {
		workers = defaultGenerationWorkers
	}

	s := &GenerationService{
		db:          gdb,
		credentials: credentials,
		research:    research,
		outlines:    outlines,
		seo:         NewSEOService(),
		images:      NewStubImageAttacher(),
		factory:     newProviderClient,
		jobs:        make(chan uint, generationQueueSize),
		inFlight:    make(map[uint]bool),
		docLimit:    defaultDocumentContextLimit,
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// SetProviderFactory 替换模型客户端构造方式，主要用于测试。
func (s *GenerationService) SetProviderFactory(factory ProviderFactory) {
	if factory == nil {
		s.factory = newProviderClient
		return
	}
	s.factory = factory
}

// SetImageAttacher 替换配图实现。
func (s *GenerationService) SetImageAttacher(attacher ImageAttacher) {
	if attacher == nil {
		s.images = NewStubImageAttacher()
		return
	}
	s.images = attacher
}

// Close 停止接收新任务并等待在途任务完成。
func (s *GenerationService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.jobs)
	s.wg.Wait()
}

func (s *GenerationService) worker() {
	defer s.wg.Done()
	for recordID := range s.jobs {
		s.runGeneration(recordID)
	}
}

// StartGeneration 校验输入并创建 generating 状态的记录，随后异步执行。
// 参数错误与凭据缺失在这里同步返回，不会留下任何记录。
func (s *GenerationService) StartGeneration(userID uint, input GenerationInput) (*db.GenerationRecord, error) {
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return nil, ErrTopicRequired
	}

	targetWords := input.TargetWords
	if targetWords == 0 {
		targetWords = defaultTargetWords
	}
	if targetWords < minTargetWords || targetWords > maxTargetWords {
		return nil, ErrTargetWordsInvalid
	}

	creds, err := s.credentials.GetCredentials(userID)
	if err != nil {
		return nil, err
	}

	record := db.GenerationRecord{
		UserID:          userID,
		Title:           topic,
		Status:          db.GenerationStatusGenerating,
		Language:        strings.TrimSpace(input.Language),
		Tone:            strings.TrimSpace(input.Tone),
		TargetWords:     targetWords,
		Provider:        creds.Provider,
		ModelName:       creds.ModelName,
		Progress:        "排队等待生成",
		ResearchEnabled: input.ResearchEnabled,
		IncludeImages:   input.IncludeImages,
		SEOOptimize:     input.SEOOptimize,
	}
	record.SetKeywords(input.Keywords)
	record.SetUploadedFiles(input.UploadedFiles)

	if err := s.db.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("create generation record: %w", err)
	}

	s.enqueue(record.ID)
	return &record, nil
}

// enqueue 将记录放入后台队列；同一记录已在队列或执行中时是无操作。
func (s *GenerationService) enqueue(recordID uint) {
	s.mu.Lock()
	if s.closed || s.inFlight[recordID] {
		s.mu.Unlock()
		return
	}
	s.inFlight[recordID] = true
	s.mu.Unlock()

	select {
	case s.jobs <- recordID:
	default:
		// 队列已满，直接标记失败而不是阻塞请求
		s.release(recordID)
		s.markFailed(recordID, "生成队列已满，请稍后重试", 0)
	}
}

func (s *GenerationService) release(recordID uint) {
	s.mu.Lock()
	delete(s.inFlight, recordID)
	s.mu.Unlock()
}

// runGeneration 执行一次完整的生成流水线。
// 只有 generating 状态的记录会被处理，终态记录直接跳过。
func (s *GenerationService) runGeneration(recordID uint) {
	defer s.release(recordID)

	var record db.GenerationRecord
	if err := s.db.First(&record, recordID).Error; err != nil {
		logAIExchange("GENERATION", "load", fmt.Sprintf("记录 %d 加载失败: %v", recordID, err))
		return
	}
	if record.Status != db.GenerationStatusGenerating {
		return
	}

	started := time.Now()
	ctx := context.Background()

	creds, err := s.credentials.GetCredentials(record.UserID)
	if err != nil {
		s.markFailed(record.ID, "模型平台凭据不可用", time.Since(started).Seconds())
		return
	}

	client, err := s.factory(creds)
	if err != nil {
		s.markFailed(record.ID, err.Error(), time.Since(started).Seconds())
		return
	}

	keywords := record.KeywordList()

	var competitors []CompetitorSummary
	if record.ResearchEnabled && s.research != nil {
		s.setProgress(record.ID, "正在调研竞品内容")
		competitors = s.research.Research(ctx, record.Title)
	}

	var outline []OutlineSection
	if s.outlines != nil {
		s.setProgress(record.ID, "正在生成大纲")
		outlineResult, outlineErr := s.outlines.GenerateOutline(ctx, OutlineInput{
			UserID:      record.UserID,
			Topic:       record.Title,
			Keywords:    keywords,
			Tone:        record.Tone,
			Language:    record.Language,
			TargetWords: record.TargetWords,
			Competitors: competitors,
		})
		if outlineErr != nil {
			// 大纲失败不终止生成，直接按无大纲路径继续
			logAIExchange("GENERATION", "outline-degraded", outlineErr.Error())
		} else {
			outline = outlineResult.Outline
			if encoded, marshalErr := json.Marshal(outlineResult); marshalErr == nil {
				s.db.Model(&db.GenerationRecord{}).Where("id = ?", record.ID).
					Update("outline_json", string(encoded))
			}
		}
	}

	s.setProgress(record.ID, "正在生成正文")

	prompt := s.buildGenerationPrompt(&record, keywords, outline, competitors)
	logAIExchange("GENERATION", "prompt", prompt)

	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	result, err := client.Complete(callCtx, CompletionRequest{
		SystemPrompt: generationSystemPrompt(record.Language),
		UserPrompt:   prompt,
		Temperature:  temperatureForCreativity(creds.Creativity),
		MaxTokens:    maxTokensForWords(record.TargetWords),
	})
	cancel()
	if err != nil {
		s.markFailed(record.ID, err.Error(), time.Since(started).Seconds())
		return
	}
	logAIExchange("GENERATION", "response", result.Content)

	content := strings.TrimSpace(result.Content)
	record.SetContent(content)

	updates := map[string]interface{}{
		"content":         record.Content,
		"word_count":      record.WordCount,
		"reading_time":    record.ReadingTime,
		"status":          db.GenerationStatusCompleted,
		"elapsed_seconds": time.Since(started).Seconds(),
		"error_message":   "",
		"progress":        "生成完成",
	}
	if err := s.db.Model(&db.GenerationRecord{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
		logAIExchange("GENERATION", "persist", fmt.Sprintf("记录 %d 保存失败: %v", record.ID, err))
		return
	}

	s.db.Model(&db.User{}).Where("id = ?", record.UserID).Updates(map[string]interface{}{
		"posts_generated": gorm.Expr("posts_generated + ?", 1),
		"words_generated": gorm.Expr("words_generated + ?", record.WordCount),
	})

	s.postProcess(ctx, &record, keywords, outline)
}

// postProcess 在正文落库后执行 SEO 分析与配图，失败只记日志不影响主结果。
func (s *GenerationService) postProcess(ctx context.Context, record *db.GenerationRecord, keywords []string, outline []OutlineSection) {
	if record.SEOOptimize && s.seo != nil {
		analysis := s.seo.Analyze(record.Content, keywords)
		suggestions := encodeSuggestions(analysis.Suggestions)
		if err := s.db.Model(&db.GenerationRecord{}).Where("id = ?", record.ID).Updates(map[string]interface{}{
			"seo_score":        analysis.Score,
			"meta_description": analysis.MetaDescription,
			"seo_suggestions":  suggestions,
		}).Error; err != nil {
			logAIExchange("GENERATION", "seo", fmt.Sprintf("记录 %d SEO 结果保存失败: %v", record.ID, err))
		}
	}

	if record.IncludeImages && s.images != nil {
		labels := make([]string, 0, len(outline))
		for _, section := range sortedSelected(outline) {
			labels = append(labels, section.Title)
		}
		images, err := s.images.Attach(ctx, record.Title, labels)
		if err != nil {
			logAIExchange("GENERATION", "images", fmt.Sprintf("记录 %d 配图失败: %v", record.ID, err))
			return
		}
		var buf db.GenerationRecord
		buf.SetImages(images)
		if err := s.db.Model(&db.GenerationRecord{}).Where("id = ?", record.ID).
			Update("images", buf.Images).Error; err != nil {
			logAIExchange("GENERATION", "images", fmt.Sprintf("记录 %d 配图保存失败: %v", record.ID, err))
		}
	}
}

func encodeSuggestions(suggestions []string) string {
	var buf db.GenerationRecord
	buf.SetSuggestions(suggestions)
	return buf.SEOSuggestions
}

// markFailed 将记录置为失败终态：draft + 错误信息，正文保持为空。
func (s *GenerationService) markFailed(recordID uint, message string, elapsed float64) {
	updates := map[string]interface{}{
		"status":          db.GenerationStatusDraft,
		"error_message":   message,
		"elapsed_seconds": elapsed,
		"progress":        "生成失败",
	}
	if err := s.db.Model(&db.GenerationRecord{}).Where("id = ?", recordID).Updates(updates).Error; err != nil {
		logAIExchange("GENERATION", "fail", fmt.Sprintf("记录 %d 失败状态保存失败: %v", recordID, err))
	}
}

func (s *GenerationService) setProgress(recordID uint, progress string) {
	s.db.Model(&db.GenerationRecord{}).Where("id = ?", recordID).
		Update("progress", progress)
}

// buildGenerationPrompt 组装全文生成提示词，融合关键词、大纲、竞品信号与参考资料。
func (s *GenerationService) buildGenerationPrompt(record *db.GenerationRecord, keywords []string, outline []OutlineSection, competitors []CompetitorSummary) string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "请撰写一篇题为「%s」的完整文章。\n", record.Title)
	fmt.Fprintf(&builder, "目标字数：约 %d 字。\n", record.TargetWords)
	if tone := strings.TrimSpace(record.Tone); tone != "" {
		fmt.Fprintf(&builder, "写作语气：%s。\n", tone)
	}
	if len(keywords) > 0 {
		fmt.Fprintf(&builder, "需要自然融入的关键词：%s。\n", strings.Join(keywords, "、"))
	}

	if selected := sortedSelected(outline); len(selected) > 0 {
		builder.WriteString("\n请严格按照以下大纲组织内容（每个章节使用二级标题）：\n")
		for _, section := range selected {
			fmt.Fprintf(&builder, "%d. %s", section.Order, section.Title)
			if desc := strings.TrimSpace(section.Description); desc != "" {
				fmt.Fprintf(&builder, "：%s", desc)
			}
			builder.WriteString("\n")
		}
	}

	if len(competitors) > 0 {
		builder.WriteString("\n当前搜索排名靠前的内容概况（请提供差异化价值）：\n")
		limit := len(competitors)
		if limit > 5 {
			limit = 5
		}
		for _, competitor := range competitors[:limit] {
			fmt.Fprintf(&builder, "- %s（%s，约 %d 词）\n", competitor.Title, competitor.Domain, competitor.WordCount)
		}
	}

	if docContext := BuildDocumentContext(record.UploadedFileList(), s.docLimit); docContext != "" {
		builder.WriteString("\n以下参考资料可作为事实来源：\n")
		builder.WriteString(docContext)
		builder.WriteString("\n")
	}

	builder.WriteString("\n请输出 Markdown 格式的完整文章，不要包含任何解释性前言。")
	return builder.String()
}

func generationSystemPrompt(language string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(language)), "en") {
		return "You are a professional long-form content writer. Produce a complete, well-structured Markdown article."
	}
	return "你是一名专业长文作者。请产出结构完整、可直接发布的 Markdown 文章。"
}

// sortedSelected 返回按 Order 升序排列的选中章节。
func sortedSelected(outline []OutlineSection) []OutlineSection {
	var selected []OutlineSection
	for _, section := range outline {
		if section.Selected {
			selected = append(selected, section)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Order < selected[j].Order
	})
	return selected
}

// Status 返回记录的轮询摘要。
func (s *GenerationService) Status(recordID, userID uint) (GenerationStatus, error) {
	var record db.GenerationRecord
	if err := s.db.Where("id = ? AND user_id = ?", recordID, userID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return GenerationStatus{}, ErrGenerationNotFound
		}
		return GenerationStatus{}, fmt.Errorf("load generation status: %w", err)
	}

	return GenerationStatus{
		RecordID:       record.ID,
		Status:         record.Status,
		Progress:       record.Progress,
		WordCount:      record.WordCount,
		ElapsedSeconds: record.ElapsedSeconds,
		Error:          record.ErrorMessage,
	}, nil
}

// Get 返回属于该用户的完整记录。
func (s *GenerationService) Get(recordID, userID uint) (*db.GenerationRecord, error) {
	var record db.GenerationRecord
	if err := s.db.Where("id = ? AND user_id = ?", recordID, userID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGenerationNotFound
		}
		return nil, fmt.Errorf("load generation record: %w", err)
	}
	return &record, nil
}

// List 按条件分页查询记录，关键字同时匹配标题与正文。
func (s *GenerationService) List(filter GenerationFilter) (GenerationListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 10
	}

	query := s.db.Model(&db.GenerationRecord{}).Where("user_id = ?", filter.UserID)
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("title LIKE ? OR content LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return GenerationListResult{}, fmt.Errorf("count generation records: %w", err)
	}

	var records []db.GenerationRecord
	offset := (filter.Page - 1) * filter.PerPage
	if err := query.Order("created_at DESC").Limit(filter.PerPage).Offset(offset).Find(&records).Error; err != nil {
		return GenerationListResult{}, fmt.Errorf("list generation records: %w", err)
	}

	return GenerationListResult{
		Records: records,
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
	}, nil
}

// Delete 删除属于该用户的记录。
func (s *GenerationService) Delete(recordID, userID uint) error {
	result := s.db.Where("id = ? AND user_id = ?", recordID, userID).Delete(&db.GenerationRecord{})
	if result.Error != nil {
		return fmt.Errorf("delete generation record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrGenerationNotFound
	}
	return nil
}
