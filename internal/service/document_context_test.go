package service

import (
	"strings"
	"testing"

	"github.com/draftforge/internal/db"
)

func TestBuildDocumentContextJoinsFiles(t *testing.T) {
	t.Parallel()

	files := []db.UploadedFile{
		{Filename: "notes.md", Text: "第一行\r\n\r\n\r\n第二行"},
		{Filename: "", Text: "  多个   空格  "},
		{Filename: "empty.txt", Text: "   "},
	}

	out := BuildDocumentContext(files, 0)
	if !strings.Contains(out, "### 参考资料：notes.md") {
		t.Errorf("missing file header in %q", out)
	}
	if !strings.Contains(out, "### 参考资料：未命名资料") {
		t.Errorf("blank filename should get a placeholder header, got %q", out)
	}
	if strings.Contains(out, "empty.txt") {
		t.Error("files with blank text should be skipped")
	}
	if strings.Contains(out, "\r") {
		t.Error("carriage returns should be normalized away")
	}
	if strings.Contains(out, "多个   空格") {
		t.Error("inline whitespace should be collapsed")
	}
	if strings.Contains(out, "\n\n\n") {
		t.Error("blank runs should fold to a single blank line")
	}
}

func TestBuildDocumentContextTruncates(t *testing.T) {
	t.Parallel()

	files := []db.UploadedFile{{Filename: "big.txt", Text: strings.Repeat("字", 500)}}
	out := BuildDocumentContext(files, 100)
	if got := len([]rune(out)); got != 100 {
		t.Errorf("expected exactly 100 runes, got %d", got)
	}
}

func TestTruncateRunesMultibyteSafe(t *testing.T) {
	t.Parallel()

	out := truncateRunes("中文字符串", 3)
	if out != "中文字" {
		t.Errorf("truncateRunes = %q", out)
	}
}
