package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/draftforge/internal/db"
)

// SectionInput 描述单章节生成所需的上下文。
type SectionInput struct {
	Section     OutlineSection
	BlogTitle   string
	PriorTitles []string
	Competitors []CompetitorSummary
	Tone        string
	Keywords    []string
	Language    string
}

// SectionResult 是单章节的生成结果。
type SectionResult struct {
	Content     string    `json:"content"`
	WordCount   int       `json:"wordCount"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// SectionBatchInput 描述批量章节生成的上下文。
type SectionBatchInput struct {
	Sections    []OutlineSection
	BlogTitle   string
	Competitors []CompetitorSummary
	Tone        string
	Keywords    []string
	Language    string
}

// SectionBatchResult 汇总批量生成的结果。
// Errors 以章节 Order 为键记录失败原因，失败章节不影响其余章节。
type SectionBatchResult struct {
	Sections  []OutlineSection `json:"sections"`
	Completed int              `json:"completed"`
	Selected  int              `json:"selected"`
	Errors    map[int]string   `json:"errors,omitempty"`
}

// SectionService 负责按大纲逐章节生成内容。
type SectionService struct {
	credentials *CredentialService
	factory     ProviderFactory
}

// NewSectionService 构造 SectionService。
func NewSectionService(credentials *CredentialService) *SectionService {
	return &SectionService{
		credentials: credentials,
		factory:     newProviderClient,
	}
}

// SetProviderFactory 替换模型客户端构造方式，主要用于测试。
func (s *SectionService) SetProviderFactory(factory ProviderFactory) {
	if factory == nil {
		s.factory = newProviderClient
		return
	}
	s.factory = factory
}

// GenerateSection 生成单个章节的内容。
func (s *SectionService) GenerateSection(ctx context.Context, userID uint, input SectionInput) (SectionResult, error) {
	if strings.TrimSpace(input.Section.Title) == "" {
		return SectionResult{}, ErrTopicRequired
	}

	creds, err := s.credentials.GetCredentials(userID)
	if err != nil {
		return SectionResult{}, err
	}

	client, err := s.factory(creds)
	if err != nil {
		return SectionResult{}, err
	}

	prompt := buildSectionPrompt(input)
	logAIExchange("SECTION", "prompt", prompt)

	targetWords := input.Section.WordCount
	if targetWords <= 0 {
		targetWords = defaultSectionWords
	}

	result, err := client.Complete(ctx, CompletionRequest{
		SystemPrompt: sectionSystemPrompt(input.Language),
		UserPrompt:   prompt,
		Temperature:  temperatureForCreativity(creds.Creativity),
		MaxTokens:    maxTokensForWords(targetWords),
	})
	if err != nil {
		return SectionResult{}, err
	}
	logAIExchange("SECTION", "response", result.Content)

	content := strings.TrimSpace(result.Content)
	return SectionResult{
		Content:     content,
		WordCount:   db.CountWords(content),
		GeneratedAt: time.Now(),
	}, nil
}

// GenerateAll 按 Order 升序为所有选中且尚无内容的章节生成内容。
// 单章节失败只记录到 Errors，不影响其余章节；onProgress 可为 nil。
func (s *SectionService) GenerateAll(ctx context.Context, userID uint, input SectionBatchInput, onProgress func(completed, selected int)) (SectionBatchResult, error) {
	creds, err := s.credentials.GetCredentials(userID)
	if err != nil {
		return SectionBatchResult{}, err
	}
	if _, err := s.factory(creds); err != nil {
		return SectionBatchResult{}, err
	}

	sections := make([]OutlineSection, len(input.Sections))
	copy(sections, input.Sections)
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Order < sections[j].Order
	})

	result := SectionBatchResult{
		Sections: sections,
		Errors:   map[int]string{},
	}
	for _, section := range sections {
		if section.Selected {
			result.Selected++
		}
	}

	var priorTitles []string
	for i := range sections {
		section := &sections[i]
		if !section.Selected {
			continue
		}
		if strings.TrimSpace(section.Content) != "" {
			result.Completed++
			priorTitles = append(priorTitles, section.Title)
			if onProgress != nil {
				onProgress(result.Completed, result.Selected)
			}
			continue
		}

		generated, genErr := s.GenerateSection(ctx, userID, SectionInput{
			Section:     *section,
			BlogTitle:   input.BlogTitle,
			PriorTitles: priorTitles,
			Competitors: input.Competitors,
			Tone:        input.Tone,
			Keywords:    input.Keywords,
			Language:    input.Language,
		})
		if genErr != nil {
			result.Errors[section.Order] = genErr.Error()
			continue
		}

		section.Content = generated.Content
		result.Completed++
		priorTitles = append(priorTitles, section.Title)
		if onProgress != nil {
			onProgress(result.Completed, result.Selected)
		}
	}

	if len(result.Errors) == 0 {
		result.Errors = nil
	}
	result.Sections = sections
	return result, nil
}

func sectionSystemPrompt(language string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(language)), "en") {
		return "You are a professional content writer. Write the requested section in Markdown, without repeating the section title as a heading."
	}
	return "你是一名专业内容作者。请用 Markdown 撰写指定章节，不要重复输出章节标题。"
}

// buildSectionPrompt 组装章节生成提示词，带上已完成章节与相关竞品标题，
// 避免内容重复并保持全文连贯。
func buildSectionPrompt(input SectionInput) string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "文章标题：%s\n", strings.TrimSpace(input.BlogTitle))
	fmt.Fprintf(&builder, "当前章节：%s\n", strings.TrimSpace(input.Section.Title))
	if desc := strings.TrimSpace(input.Section.Description); desc != "" {
		fmt.Fprintf(&builder, "章节要求：%s\n", desc)
	}
	if input.Section.WordCount > 0 {
		fmt.Fprintf(&builder, "目标字数：约 %d 字\n", input.Section.WordCount)
	}
	if tone := strings.TrimSpace(input.Tone); tone != "" {
		fmt.Fprintf(&builder, "写作语气：%s\n", tone)
	}
	if len(input.Keywords) > 0 {
		fmt.Fprintf(&builder, "需要自然融入的关键词：%s\n", strings.Join(input.Keywords, "、"))
	}

	if len(input.PriorTitles) > 0 {
		fmt.Fprintf(&builder, "\n前文已经写过以下章节，请勿重复其内容：%s\n", strings.Join(input.PriorTitles, "、"))
	}

	if headings := relevantCompetitorHeadings(input.Keywords, input.Competitors); len(headings) > 0 {
		fmt.Fprintf(&builder, "\n竞品在相关主题下使用过这些标题，供差异化参考：%s\n", strings.Join(headings, " / "))
	}

	builder.WriteString("\n请直接输出章节正文（Markdown），不要输出章节标题本身。")
	return builder.String()
}

// relevantCompetitorHeadings 用首个关键词做词面过滤，挑出竞品中相关的标题，上限 8 条。
func relevantCompetitorHeadings(keywords []string, competitors []CompetitorSummary) []string {
	if len(competitors) == 0 {
		return nil
	}

	keyword := ""
	if len(keywords) > 0 {
		keyword = strings.ToLower(strings.TrimSpace(keywords[0]))
	}

	var headings []string
	for _, competitor := range competitors {
		for _, heading := range competitor.Headings {
			if keyword != "" && !strings.Contains(strings.ToLower(heading), keyword) {
				continue
			}
			headings = append(headings, heading)
			if len(headings) >= 8 {
				return headings
			}
		}
	}
	return headings
}
