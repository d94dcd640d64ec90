package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// CompetitorSummary 描述一条头部竞品搜索结果的结构化摘要。
type CompetitorSummary struct {
	Title              string   `json:"title"`
	URL                string   `json:"url"`
	Domain             string   `json:"domain"`
	MetaDescription    string   `json:"metaDescription"`
	Headings           []string `json:"headings"`
	Snippet            string   `json:"snippet"`
	Ranking            int      `json:"ranking"`
	WordCount          int      `json:"wordCount"`
	EstimatedAuthority int      `json:"estimatedAuthority"`
}

const (
	researchResultCount  = 10
	syntheticResultCount = 5
	pageFetchTimeout     = 15 * time.Second
	searchQueryTimeout   = 30 * time.Second
	defaultFetchDelay    = 300 * time.Millisecond
	maxCompetitorHeads   = 12
)

// 正文容器选择器按优先级排列，全部落空时回退整页文本。
var contentSelectors = []string{
	"article",
	"main",
	".post-content",
	".entry-content",
	".article-content",
	".content",
	"#content",
}

// 公认的高权重站点，用于粗粒度的权威度估算。
var highAuthorityDomains = map[string]bool{
	"wikipedia.org":     true,
	"github.com":        true,
	"stackoverflow.com": true,
	"medium.com":        true,
	"dev.to":            true,
	"zhihu.com":         true,
	"juejin.cn":         true,
	"infoq.cn":          true,
	"csdn.net":          true,
	"cnblogs.com":       true,
	"moz.com":           true,
	"hubspot.com":       true,
}

type searchResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

type searchResponse struct {
	Organic []searchResult `json:"organic"`
}

// ResearchService 负责围绕主题收集头部竞品页面的结构化信号。
// 搜索后端不可用或任何内部失败时回退到离线合成数据，Research 永远不会失败。
type ResearchService struct {
	http         httpDoer
	searchAPIURL string
	searchAPIKey string
	fetchDelay   time.Duration
}

// NewResearchService 构造 ResearchService；searchAPIKey 为空时只使用合成数据。
func NewResearchService(searchAPIURL, searchAPIKey string) *ResearchService {
	return &ResearchService{
		http:         &http.Client{Timeout: pageFetchTimeout},
		searchAPIURL: strings.TrimSpace(searchAPIURL),
		searchAPIKey: strings.TrimSpace(searchAPIKey),
		fetchDelay:   defaultFetchDelay,
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (s *ResearchService) SetHTTPClient(client httpDoer) {
	if client == nil {
		s.http = &http.Client{Timeout: pageFetchTimeout}
		return
	}
	s.http = client
}

// SetFetchDelay 调整页面抓取之间的礼貌延迟，测试时可设为 0。
func (s *ResearchService) SetFetchDelay(d time.Duration) {
	if d < 0 {
		return
	}
	s.fetchDelay = d
}

// Research 返回按排名升序（1..N）的竞品摘要列表。
// 单页抓取失败只降级对应条目，搜索后端整体失败则回退合成数据。
func (s *ResearchService) Research(ctx context.Context, topic string) []CompetitorSummary {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil
	}

	if s.searchAPIKey == "" {
		return s.syntheticCompetitors(topic)
	}

	results, err := s.searchTopResults(ctx, topic)
	if err != nil || len(results) == 0 {
		logAIExchange("RESEARCH", "fallback", fmt.Sprintf("搜索后端不可用，使用合成数据: %v", err))
		return s.syntheticCompetitors(topic)
	}

	summaries := make([]CompetitorSummary, 0, len(results))
	for i, result := range results {
		summary, fetchErr := s.fetchCompetitorPage(ctx, result)
		if fetchErr != nil {
			// 单页失败只降级这一条，绝不中断整批
			summary = degradedSummary(result)
		}
		summary.Ranking = i + 1
		summaries = append(summaries, summary)

		if i < len(results)-1 && s.fetchDelay > 0 {
			select {
			case <-ctx.Done():
				return summaries
			case <-time.After(s.fetchDelay):
			}
		}
	}

	return summaries
}

// searchTopResults 查询搜索 API 并返回前 N 条自然结果。
func (s *ResearchService) searchTopResults(ctx context.Context, topic string) ([]searchResult, error) {
	queryCtx, cancel := context.WithTimeout(ctx, searchQueryTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]interface{}{"q": topic, "num": researchResultCount})
	if err != nil {
		return nil, fmt.Errorf("构造搜索请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(queryCtx, http.MethodPost, s.searchAPIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("创建搜索请求失败: %w", err)
	}
	req.Header.Set("X-API-KEY", s.searchAPIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "draftforge-research/1.0")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求搜索接口失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("搜索接口返回错误：%s %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析搜索响应失败: %w", err)
	}

	results := decoded.Organic
	if len(results) > researchResultCount {
		results = results[:researchResultCount]
	}
	return results, nil
}

// fetchCompetitorPage 抓取并解析单个竞品页面；超时或非 200 都按单页失败处理。
func (s *ResearchService) fetchCompetitorPage(ctx context.Context, result searchResult) (CompetitorSummary, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, pageFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, result.Link, nil)
	if err != nil {
		return CompetitorSummary{}, fmt.Errorf("创建页面请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; draftforge-research/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.http.Do(req)
	if err != nil {
		return CompetitorSummary{}, fmt.Errorf("抓取页面失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CompetitorSummary{}, fmt.Errorf("页面返回状态 %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return CompetitorSummary{}, fmt.Errorf("读取页面失败: %w", err)
	}

	summary, err := extractCompetitorPage(result, body)
	if err != nil {
		return CompetitorSummary{}, err
	}
	return summary, nil
}

// extractCompetitorPage 从 HTML 中提取标题层级、描述与正文字数。
func extractCompetitorPage(result searchResult, body []byte) (CompetitorSummary, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return CompetitorSummary{}, fmt.Errorf("解析页面失败: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists {
			title = strings.TrimSpace(ogTitle)
		}
	}
	if title == "" {
		title = strings.TrimSpace(result.Title)
	}

	metaDescription := ""
	if desc, exists := doc.Find("meta[name='description']").Attr("content"); exists {
		metaDescription = strings.TrimSpace(desc)
	}
	if metaDescription == "" {
		if ogDesc, exists := doc.Find("meta[property='og:description']").Attr("content"); exists {
			metaDescription = strings.TrimSpace(ogDesc)
		}
	}
	if metaDescription == "" {
		metaDescription = strings.TrimSpace(result.Snippet)
	}

	var headings []string
	doc.Find("h1, h2, h3, h4").Each(func(_ int, sel *goquery.Selection) {
		if len(headings) >= maxCompetitorHeads {
			return
		}
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text != "" {
			headings = append(headings, text)
		}
	})

	content := ""
	for _, selector := range contentSelectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" {
			content = text
			break
		}
	}
	if content == "" {
		content = strings.TrimSpace(doc.Find("body").Text())
	}

	domain := extractDomain(result.Link)
	return CompetitorSummary{
		Title:              title,
		URL:                result.Link,
		Domain:             domain,
		MetaDescription:    metaDescription,
		Headings:           headings,
		Snippet:            strings.TrimSpace(result.Snippet),
		WordCount:          len(strings.Fields(content)),
		EstimatedAuthority: estimateAuthority(domain),
	}, nil
}

// degradedSummary 在页面无法抓取时仅凭搜索摘要合成降级条目。
func degradedSummary(result searchResult) CompetitorSummary {
	snippet := strings.TrimSpace(result.Snippet)
	domain := extractDomain(result.Link)
	return CompetitorSummary{
		Title:              strings.TrimSpace(result.Title),
		URL:                result.Link,
		Domain:             domain,
		MetaDescription:    snippet,
		Headings:           headingsFromSnippet(snippet),
		Snippet:            snippet,
		WordCount:          len(strings.Fields(snippet)) * 10,
		EstimatedAuthority: estimateAuthority(domain),
	}
}

// headingsFromSnippet 把摘要按句子拆分，充当无法抓取页面时的标题占位。
func headingsFromSnippet(snippet string) []string {
	replacer := strings.NewReplacer("。", ".", "！", ".", "？", ".", "! ", ". ", "? ", ". ")
	normalized := replacer.Replace(snippet)

	var headings []string
	for _, sentence := range strings.Split(normalized, ".") {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		headings = append(headings, trimmed)
		if len(headings) >= 5 {
			break
		}
	}
	return headings
}

// extractDomain 从 URL 中提取去掉 www 前缀的域名。
func extractDomain(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// estimateAuthority 给出确定性的粗粒度权威度（0-100）：
// 知名站点落在 85-95，其余按域名特征散列到 35-70。
func estimateAuthority(domain string) int {
	if domain == "" {
		return 30
	}

	base := domain
	if parts := strings.Split(domain, "."); len(parts) >= 2 {
		base = strings.Join(parts[len(parts)-2:], ".")
	}

	if highAuthorityDomains[base] {
		return 85 + len(base)%11
	}

	hash := 0
	for _, r := range base {
		hash = (hash*31 + int(r)) % 36
	}
	return 35 + hash
}

// syntheticCompetitors 基于主题合成固定规模的离线竞品数据。
// 同一主题的输出完全确定，供演示与测试使用；该路径永远不会失败。
func (s *ResearchService) syntheticCompetitors(topic string) []CompetitorSummary {
	templates := []struct {
		domain   string
		titleFmt string
	}{
		{"zhihu.com", "%s 完全指南：从入门到精通"},
		{"juejin.cn", "深入理解 %s 的核心原理"},
		{"medium.com", "%s Best Practices and Common Pitfalls"},
		{"cnblogs.com", "%s 实战经验总结"},
		{"dev.to", "A Practical Guide to %s"},
	}

	summaries := make([]CompetitorSummary, 0, syntheticResultCount)
	for i, tpl := range templates {
		title := fmt.Sprintf(tpl.titleFmt, topic)
		slug := url.PathEscape(strings.ToLower(strings.Join(strings.Fields(topic), "-")))
		summaries = append(summaries, CompetitorSummary{
			Title:           title,
			URL:             fmt.Sprintf("https://%s/posts/%s-%d", tpl.domain, slug, i+1),
			Domain:          tpl.domain,
			MetaDescription: fmt.Sprintf("关于 %s 的深度解析与实践建议。", topic),
			Headings: []string{
				fmt.Sprintf("什么是 %s", topic),
				fmt.Sprintf("%s 的核心概念", topic),
				fmt.Sprintf("%s 的实施步骤", topic),
				"常见问题与误区",
				"总结与展望",
			},
			Snippet:            fmt.Sprintf("%s 的系统性介绍，覆盖概念、实践与常见陷阱。", topic),
			Ranking:            i + 1,
			WordCount:          1200 + i*350,
			EstimatedAuthority: estimateAuthority(tpl.domain),
		})
	}
	return summaries
}
