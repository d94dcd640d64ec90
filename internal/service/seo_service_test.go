package service

import (
	"strings"
	"testing"
)

func TestSEOAnalyzeScoreRange(t *testing.T) {
	t.Parallel()

	svc := NewSEOService()

	short := svc.Analyze("短文", nil)
	if short.Score != seoBaseScore {
		t.Errorf("minimal content should score the base %d, got %d", seoBaseScore, short.Score)
	}

	rich := svc.Analyze(buildRichContent(), []string{"增长", "留存"})
	if rich.Score <= short.Score {
		t.Errorf("rich content should outscore minimal content: %d vs %d", rich.Score, short.Score)
	}
	if rich.Score > seoMaxScore {
		t.Errorf("score must be capped at %d, got %d", seoMaxScore, rich.Score)
	}
}

func TestSEOAnalyzeIsDeterministic(t *testing.T) {
	t.Parallel()

	svc := NewSEOService()
	content := buildRichContent()
	keywords := []string{"增长"}

	first := svc.Analyze(content, keywords)
	second := svc.Analyze(content, keywords)
	if first.Score != second.Score || first.MetaDescription != second.MetaDescription {
		t.Errorf("analysis must be deterministic: %+v vs %+v", first, second)
	}
}

func TestSEOAnalyzeKeywordCoverage(t *testing.T) {
	t.Parallel()

	svc := NewSEOService()
	content := "本文讨论 增长 策略。"

	full := svc.Analyze(content, []string{"增长"})
	none := svc.Analyze(content, []string{"区块链"})
	if full.Score <= none.Score {
		t.Errorf("matched keywords should raise the score: %d vs %d", full.Score, none.Score)
	}
}

func TestSEOMetaDescription(t *testing.T) {
	t.Parallel()

	svc := NewSEOService()
	content := "# 大标题\n\n这是第一段正文，应当成为元描述。\n\n第二段。"

	analysis := svc.Analyze(content, nil)
	if analysis.MetaDescription != "这是第一段正文，应当成为元描述。" {
		t.Errorf("unexpected meta description %q", analysis.MetaDescription)
	}

	long := strings.Repeat("很长的句子", 100)
	analysis = svc.Analyze(long, nil)
	if got := len([]rune(analysis.MetaDescription)); got > metaDescriptionRunes {
		t.Errorf("meta description should be truncated to %d runes, got %d", metaDescriptionRunes, got)
	}
}

func TestSEOSuggestionsPresent(t *testing.T) {
	t.Parallel()

	svc := NewSEOService()
	analysis := svc.Analyze("非常短", nil)
	if len(analysis.Suggestions) == 0 {
		t.Fatal("analysis should always offer suggestions")
	}
}

func buildRichContent() string {
	var builder strings.Builder
	builder.WriteString("增长 与 留存 的完整指南。\n\n## 第一章\n\n- 要点一\n- 要点二\n\n")
	for i := 0; i < 900; i++ {
		builder.WriteString("词 ")
	}
	return builder.String()
}
