package service

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestGenerateSectionRequiresTitle(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewSectionService(NewCredentialService(gdb))

	_, err := svc.GenerateSection(context.Background(), 1, SectionInput{})
	if !errors.Is(err, ErrTopicRequired) {
		t.Fatalf("expected ErrTopicRequired, got %v", err)
	}
}

func TestGenerateSectionReturnsContent(t *testing.T) {
	gdb := setupServiceTestDB(t)
	user := createTestUser(t, gdb, "section-user")
	seedCredentials(t, gdb, user.ID)

	svc := NewSectionService(NewCredentialService(gdb))

	var seenPrompt string
	svc.SetProviderFactory(func(cred Credentials) (ProviderClient, error) {
		return &fakeProvider{complete: func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
			seenPrompt = req.UserPrompt
			return CompletionResult{Content: "章节 正文 内容"}, nil
		}}, nil
	})

	result, err := svc.GenerateSection(context.Background(), user.ID, SectionInput{
		Section:     OutlineSection{Title: "实施步骤", Description: "分步讲解", WordCount: 800},
		BlogTitle:   "完整指南",
		PriorTitles: []string{"引言"},
	})
	if err != nil {
		t.Fatalf("GenerateSection: %v", err)
	}
	if result.Content != "章节 正文 内容" {
		t.Errorf("unexpected content %q", result.Content)
	}
	if result.WordCount != 3 {
		t.Errorf("word count should be 3, got %d", result.WordCount)
	}
	if !strings.Contains(seenPrompt, "实施步骤") || !strings.Contains(seenPrompt, "引言") {
		t.Errorf("prompt should carry section title and prior titles, got %q", seenPrompt)
	}
}

func TestGenerateAllKeepsGoingPastFailures(t *testing.T) {
	gdb := setupServiceTestDB(t)
	user := createTestUser(t, gdb, "batch-user")
	seedCredentials(t, gdb, user.ID)

	svc := NewSectionService(NewCredentialService(gdb))
	svc.SetProviderFactory(func(cred Credentials) (ProviderClient, error) {
		return &fakeProvider{complete: func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
			if strings.Contains(req.UserPrompt, "故障章节") {
				return CompletionResult{}, &ProviderError{Provider: cred.Provider, Message: "overloaded"}
			}
			return CompletionResult{Content: "生成内容"}, nil
		}}, nil
	})

	var progressCalls int
	result, err := svc.GenerateAll(context.Background(), user.ID, SectionBatchInput{
		BlogTitle: "批量测试",
		Sections: []OutlineSection{
			{Title: "收尾", Order: 3, Selected: true},
			{Title: "故障章节", Order: 2, Selected: true},
			{Title: "开篇", Order: 1, Selected: true},
			{Title: "被跳过", Order: 4, Selected: false},
			{Title: "已有内容", Order: 5, Selected: true, Content: "先前写好的"},
		},
	}, func(completed, selected int) {
		progressCalls++
	})
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}

	if result.Selected != 4 {
		t.Errorf("expected 4 selected sections, got %d", result.Selected)
	}
	if result.Completed != 3 {
		t.Errorf("expected 3 completed sections, got %d", result.Completed)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %v", result.Errors)
	}
	if _, ok := result.Errors[2]; !ok {
		t.Errorf("error should be keyed by section order 2, got %v", result.Errors)
	}
	if progressCalls != 3 {
		t.Errorf("progress callback should fire per completion, got %d", progressCalls)
	}

	// 结果按 Order 排序，失败章节内容保持为空，其余不受影响
	if result.Sections[0].Title != "开篇" || result.Sections[0].Content == "" {
		t.Errorf("first section wrong or empty: %+v", result.Sections[0])
	}
	if result.Sections[1].Content != "" {
		t.Errorf("failed section must stay empty, got %q", result.Sections[1].Content)
	}
	if result.Sections[3].Content != "" {
		t.Errorf("unselected section must stay untouched, got %q", result.Sections[3].Content)
	}
	if result.Sections[4].Content != "先前写好的" {
		t.Errorf("pre-filled section must keep its content, got %q", result.Sections[4].Content)
	}
}

func TestGenerateAllRequiresCredentials(t *testing.T) {
	gdb := setupServiceTestDB(t)
	user := createTestUser(t, gdb, "batch-no-creds")

	svc := NewSectionService(NewCredentialService(gdb))
	_, err := svc.GenerateAll(context.Background(), user.ID, SectionBatchInput{
		Sections: []OutlineSection{{Title: "一", Order: 1, Selected: true}},
	}, nil)
	if !errors.Is(err, ErrCredentialsMissing) {
		t.Fatalf("expected ErrCredentialsMissing, got %v", err)
	}
}

func TestRelevantCompetitorHeadings(t *testing.T) {
	t.Parallel()

	competitors := []CompetitorSummary{
		{Headings: []string{"增长黑客入门", "留存分析", "增长实验设计"}},
		{Headings: []string{"渠道选择", "增长团队搭建"}},
	}

	headings := relevantCompetitorHeadings([]string{"增长"}, competitors)
	if len(headings) != 3 {
		t.Fatalf("expected 3 keyword-matched headings, got %v", headings)
	}

	all := relevantCompetitorHeadings(nil, competitors)
	if len(all) != 5 {
		t.Errorf("without keywords all headings pass, got %d", len(all))
	}
}
