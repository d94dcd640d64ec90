package service

import (
	"strings"

	"github.com/draftforge/internal/db"
)

// 参考资料拼接后的默认长度上限（rune 数），防止提示词无限膨胀。
const defaultDocumentContextLimit = 10000

// BuildDocumentContext 将已抽取为纯文本的参考资料拼接为有界的上下文文本。
// 每份资料带文件名标题，空白被归一化，整体按 rune 截断到 limit。
func BuildDocumentContext(files []db.UploadedFile, limit int) string {
	if limit <= 0 {
		limit = defaultDocumentContextLimit
	}

	var builder strings.Builder
	for _, file := range files {
		text := normalizeWhitespace(file.Text)
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		name := strings.TrimSpace(file.Filename)
		if name == "" {
			name = "未命名资料"
		}
		builder.WriteString("### 参考资料：")
		builder.WriteString(name)
		builder.WriteString("\n")
		builder.WriteString(text)
	}

	return truncateRunes(builder.String(), limit)
}

// normalizeWhitespace 统一换行符、压缩行内连续空白，并把多余空行折叠为一个。
func normalizeWhitespace(input string) string {
	normalized := strings.ReplaceAll(input, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	collapsed := make([]string, 0, len(lines))
	blankRun := 0
	for _, line := range lines {
		compact := strings.Join(strings.Fields(line), " ")
		if compact == "" {
			blankRun++
			if blankRun > 1 {
				continue
			}
		} else {
			blankRun = 0
		}
		collapsed = append(collapsed, compact)
	}

	return strings.TrimSpace(strings.Join(collapsed, "\n"))
}

// truncateRunes 按 rune 截断，避免在多字节字符中间截断。
func truncateRunes(input string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(input)
	if len(runes) <= limit {
		return input
	}
	return string(runes[:limit])
}
