package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// OutlineSection 表示大纲中的一个章节。
type OutlineSection struct {
	Title                string `json:"title"`
	Description          string `json:"description"`
	WordCount            int    `json:"wordCount"`
	Order                int    `json:"order"`
	Selected             bool   `json:"selected"`
	Content              string `json:"content,omitempty"`
	CompetitiveAdvantage string `json:"competitiveAdvantage,omitempty"`
	SEOValue             string `json:"seoValue,omitempty"`
}

// OutlineInput 描述生成大纲所需的全部上下文。
type OutlineInput struct {
	UserID          uint
	Topic           string
	Keywords        []string
	Tone            string
	Language        string
	TargetWords     int
	WordsPerSection int
	Competitors     []CompetitorSummary
}

// OutlineResult 是模型返回的结构化大纲与竞争策略。
type OutlineResult struct {
	Outline        []OutlineSection `json:"outline"`
	SEOStrategy    string           `json:"seoStrategy,omitempty"`
	TargetKeywords []string         `json:"targetKeywords,omitempty"`
	ContentGaps    []string         `json:"contentGaps,omitempty"`
	UniqueValue    string           `json:"uniqueValue,omitempty"`
}

// 章节字数只允许落在这些档位上，模型给出的任意值会被归一到最近档。
var sectionWordBuckets = []int{300, 500, 800, 1200, 1500}

const defaultSectionWords = 500

// OutlineService 负责调用模型生成文章大纲，并把任意形态的响应解析为结构化章节。
type OutlineService struct {
	credentials *CredentialService
	factory     ProviderFactory
}

// NewOutlineService 构造 OutlineService。
func NewOutlineService(credentials *CredentialService) *OutlineService {
	return &OutlineService{
		credentials: credentials,
		factory:     newProviderClient,
	}
}

// SetProviderFactory 替换模型客户端构造方式，主要用于测试。
func (s *OutlineService) SetProviderFactory(factory ProviderFactory) {
	if factory == nil {
		s.factory = newProviderClient
		return
	}
	s.factory = factory
}

// GenerateOutline 调用模型生成大纲。模型响应无论是否符合 JSON 契约，
// 都会经过多级解析兜底，最终总能得到一份可用的大纲。
func (s *OutlineService) GenerateOutline(ctx context.Context, input OutlineInput) (OutlineResult, error) {
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return OutlineResult{}, ErrTopicRequired
	}

	creds, err := s.credentials.GetCredentials(input.UserID)
	if err != nil {
		return OutlineResult{}, err
	}

	client, err := s.factory(creds)
	if err != nil {
		return OutlineResult{}, err
	}

	prompt := buildOutlinePrompt(input)
	logAIExchange("OUTLINE", "prompt", prompt)

	result, err := client.Complete(ctx, CompletionRequest{
		SystemPrompt: outlineSystemPrompt(input.Language),
		UserPrompt:   prompt,
		Temperature:  temperatureForCreativity(creds.Creativity),
		MaxTokens:    2000,
	})
	if err != nil {
		return OutlineResult{}, err
	}
	logAIExchange("OUTLINE", "response", result.Content)

	return ParseOutlineResponse(result.Content, topic, input.WordsPerSection), nil
}

// ParseOutlineResponse 将模型响应解析为大纲，按优先级尝试四种策略：
// 严格 JSON、围栏代码块内 JSON、行级启发式、固定默认大纲。
// 解析永远不会失败，最坏情况返回默认大纲。
func ParseOutlineResponse(raw, topic string, wordsPerSection int) OutlineResult {
	trimmed := strings.TrimSpace(raw)

	if result, ok := parseOutlineJSON(trimmed); ok {
		return normalizeOutline(result, wordsPerSection)
	}

	if fenced := extractFencedBlock(trimmed); fenced != "" {
		if result, ok := parseOutlineJSON(fenced); ok {
			return normalizeOutline(result, wordsPerSection)
		}
	}

	if sections := parseOutlineHeuristic(trimmed); len(sections) > 0 {
		return normalizeOutline(OutlineResult{Outline: sections}, wordsPerSection)
	}

	logAIExchange("OUTLINE", "fallback", "响应无法解析，使用默认大纲")
	return normalizeOutline(OutlineResult{Outline: defaultOutline(topic)}, wordsPerSection)
}

func parseOutlineJSON(input string) (OutlineResult, bool) {
	if input == "" || !strings.HasPrefix(input, "{") {
		return OutlineResult{}, false
	}
	var result OutlineResult
	if err := json.Unmarshal([]byte(input), &result); err != nil {
		return OutlineResult{}, false
	}
	if len(result.Outline) == 0 {
		return OutlineResult{}, false
	}
	return result, true
}

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractFencedBlock 抽取第一个围栏代码块中的 JSON 对象文本。
func extractFencedBlock(input string) string {
	match := fencedBlockPattern.FindStringSubmatch(input)
	if len(match) < 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}

var (
	numberedLinePattern = regexp.MustCompile(`^\s*\d+[\.、\)）]\s*(.+)$`)
	bulletLinePattern   = regexp.MustCompile(`^\s*[-*•]\s*(.+)$`)
	headingLinePattern  = regexp.MustCompile(`^\s*#{1,4}\s*(.+)$`)
)

// parseOutlineHeuristic 按行识别编号、项目符号或 Markdown 标题作为章节边界，
// 其余行累积为紧邻章节的描述。
func parseOutlineHeuristic(input string) []OutlineSection {
	var sections []OutlineSection
	var descriptions []string

	flushDescription := func() {
		if len(sections) == 0 || len(descriptions) == 0 {
			descriptions = nil
			return
		}
		last := &sections[len(sections)-1]
		joined := strings.TrimSpace(strings.Join(descriptions, " "))
		if last.Description == "" {
			last.Description = joined
		} else {
			last.Description += " " + joined
		}
		descriptions = nil
	}

	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}

		title := ""
		for _, pattern := range []*regexp.Regexp{numberedLinePattern, headingLinePattern, bulletLinePattern} {
			if match := pattern.FindStringSubmatch(line); len(match) == 2 {
				title = strings.TrimSpace(match[1])
				break
			}
		}

		if title != "" {
			flushDescription()
			title = strings.Trim(title, "*_`")
			sections = append(sections, OutlineSection{Title: title})
			continue
		}

		if len(sections) > 0 {
			descriptions = append(descriptions, strings.TrimSpace(line))
		}
	}
	flushDescription()

	if len(sections) < 2 {
		return nil
	}
	return sections
}

// defaultOutline 返回与主题无关失败场景下的兜底大纲。
func defaultOutline(topic string) []OutlineSection {
	titles := []struct {
		title       string
		description string
	}{
		{"引言", fmt.Sprintf("介绍 %s 的背景与本文要解决的问题。", topic)},
		{"核心概念", fmt.Sprintf("解释 %s 涉及的关键术语与基本原理。", topic)},
		{"实施步骤", fmt.Sprintf("给出落地 %s 的分步操作指南。", topic)},
		{"进阶策略", fmt.Sprintf("面向有经验读者的 %s 深度技巧。", topic)},
		{"常见误区", fmt.Sprintf("列举实践 %s 时最容易踩的坑及规避方法。", topic)},
		{"工具与资源", fmt.Sprintf("推荐与 %s 相关的工具、文档与社区资源。", topic)},
		{"总结", "回顾要点并给出下一步行动建议。"},
	}

	sections := make([]OutlineSection, 0, len(titles))
	for _, entry := range titles {
		sections = append(sections, OutlineSection{Title: entry.title, Description: entry.description})
	}
	return sections
}

// normalizeOutline 统一大纲的不变量：Selected 默认为 true、
// 字数归一到固定档位、Order 从 1 开始连续递增。
func normalizeOutline(result OutlineResult, wordsPerSection int) OutlineResult {
	fallbackWords := nearestSectionBucket(wordsPerSection)

	normalized := make([]OutlineSection, 0, len(result.Outline))
	for _, section := range result.Outline {
		section.Title = strings.TrimSpace(section.Title)
		if section.Title == "" {
			continue
		}
		section.Description = strings.TrimSpace(section.Description)
		if section.WordCount > 0 {
			section.WordCount = nearestSectionBucket(section.WordCount)
		} else {
			section.WordCount = fallbackWords
		}
		section.Selected = true
		section.Order = len(normalized) + 1
		normalized = append(normalized, section)
	}

	result.Outline = normalized
	return result
}

// nearestSectionBucket 把任意字数归一到最近的合法档位。
func nearestSectionBucket(words int) int {
	if words <= 0 {
		return defaultSectionWords
	}
	best := sectionWordBuckets[0]
	bestDiff := abs(words - best)
	for _, bucket := range sectionWordBuckets[1:] {
		if diff := abs(words - bucket); diff < bestDiff {
			best = bucket
			bestDiff = diff
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// MoveSection 将 index 处的章节上移或下移一位并重排 Order。
// direction 取 "up" 或 "down"；越界移动是无操作。
func MoveSection(sections []OutlineSection, index int, direction string) []OutlineSection {
	if index < 0 || index >= len(sections) {
		return sections
	}

	target := index
	switch direction {
	case "up":
		target = index - 1
	case "down":
		target = index + 1
	default:
		return sections
	}
	if target < 0 || target >= len(sections) {
		return sections
	}

	sections[index], sections[target] = sections[target], sections[index]
	for i := range sections {
		sections[i].Order = i + 1
	}
	return sections
}

func outlineSystemPrompt(language string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(language)), "en") {
		return "You are a senior content strategist. Respond with a single JSON object only, no extra commentary."
	}
	return "你是一名资深内容策划。只输出一个 JSON 对象，不要附加任何解释文字。"
}

// buildOutlinePrompt 组装大纲生成提示词，竞品信号存在时附带竞争分析要求。
func buildOutlinePrompt(input OutlineInput) string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "请为主题「%s」设计一篇文章的大纲。\n", strings.TrimSpace(input.Topic))
	if len(input.Keywords) > 0 {
		fmt.Fprintf(&builder, "目标关键词：%s\n", strings.Join(input.Keywords, "、"))
	}
	if tone := strings.TrimSpace(input.Tone); tone != "" {
		fmt.Fprintf(&builder, "写作语气：%s\n", tone)
	}
	if input.TargetWords > 0 {
		fmt.Fprintf(&builder, "全文目标字数：约 %d 字\n", input.TargetWords)
	}
	if input.WordsPerSection > 0 {
		fmt.Fprintf(&builder, "每章节字数：约 %d 字\n", input.WordsPerSection)
	}

	if len(input.Competitors) > 0 {
		builder.WriteString("\n以下是当前搜索排名靠前的竞品内容概况：\n")
		for _, competitor := range input.Competitors {
			fmt.Fprintf(&builder, "- [第%d名] %s（%s，权威度 %d，约 %d 词）\n",
				competitor.Ranking, competitor.Title, competitor.Domain,
				competitor.EstimatedAuthority, competitor.WordCount)
			if len(competitor.Headings) > 0 {
				limit := len(competitor.Headings)
				if limit > 6 {
					limit = 6
				}
				fmt.Fprintf(&builder, "  标题结构：%s\n", strings.Join(competitor.Headings[:limit], " / "))
			}
		}
		builder.WriteString("\n请分析竞品覆盖的内容，找出它们的空白点，设计一份差异化的大纲。\n")
	}

	builder.WriteString(`
请严格按以下 JSON 结构输出（不要使用 Markdown 围栏）：
{
  "outline": [
    {"title": "章节标题", "description": "章节要覆盖的内容", "wordCount": 500, "competitiveAdvantage": "相对竞品的优势", "seoValue": "该章节的 SEO 价值"}
  ],
  "seoStrategy": "整体 SEO 策略",
  "targetKeywords": ["关键词"],
  "contentGaps": ["竞品未覆盖的内容点"],
  "uniqueValue": "本文的独特价值"
}`)

	return builder.String()
}
