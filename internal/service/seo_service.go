package service

import (
	"strings"

	"github.com/draftforge/internal/db"
)

// SEOAnalysis 是对生成内容的确定性 SEO 评估结果。
type SEOAnalysis struct {
	Score           int      `json:"score"`
	MetaDescription string   `json:"metaDescription"`
	Suggestions     []string `json:"suggestions"`
}

const (
	seoBaseScore          = 40
	seoMaxScore           = 100
	metaDescriptionRunes  = 160
	seoKeywordScoreWeight = 15
)

// SEOService 对 Markdown 内容做纯规则的 SEO 打分，不依赖外部服务。
// 相同输入总是得到相同输出。
type SEOService struct{}

// NewSEOService 构造 SEOService。
func NewSEOService() *SEOService {
	return &SEOService{}
}

// Analyze 计算内容的 SEO 分数并给出元描述与改进建议。
// 分数构成：基础 40 分，字数梯度最多 +30，关键词覆盖最多 +15，
// 结构信号（标题、列表）最多 +15，上限 100。
func (s *SEOService) Analyze(content string, keywords []string) SEOAnalysis {
	words := db.CountWords(content)
	score := seoBaseScore

	if words >= 300 {
		score += 15
	}
	if words >= 800 {
		score += 10
	}
	if words >= 1500 {
		score += 5
	}

	score += keywordCoverageScore(content, keywords)

	if strings.Contains(content, "## ") {
		score += 10
	}
	if hasListMarkers(content) {
		score += 5
	}

	if score > seoMaxScore {
		score = seoMaxScore
	}

	return SEOAnalysis{
		Score:           score,
		MetaDescription: metaDescriptionFor(content),
		Suggestions:     suggestionsFor(words, score),
	}
}

// keywordCoverageScore 按内容实际出现的关键词比例给分。
func keywordCoverageScore(content string, keywords []string) int {
	if len(keywords) == 0 {
		return 0
	}
	lowered := strings.ToLower(content)
	matched := 0
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(lowered, keyword) {
			matched++
		}
	}
	return matched * seoKeywordScoreWeight / len(keywords)
}

func hasListMarkers(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "1. ") {
			return true
		}
	}
	return false
}

// metaDescriptionFor 取第一行非标题正文并截断到 160 个 rune。
func metaDescriptionFor(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		return truncateRunes(trimmed, metaDescriptionRunes)
	}
	return ""
}

func suggestionsFor(words, score int) []string {
	suggestions := []string{
		"在首段自然融入主关键词",
		"为长段落补充小标题以改善可读性",
	}
	if words < 800 {
		suggestions = append(suggestions, "当前篇幅偏短，扩充到 800 字以上有助于搜索排名")
	}
	if score < 70 {
		suggestions = append(suggestions, "增加内部链接与结构化列表以提升内容质量信号")
	}
	suggestions = append(suggestions, "为文章配图添加描述性 alt 文本")
	return suggestions
}
