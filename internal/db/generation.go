package db

import (
	"encoding/json"
	"strings"

	"gorm.io/gorm"
)

// 生成记录的生命周期状态。draft 同时承担"生成失败"的终态，
// 通过 ErrorMessage 是否为空与真正的草稿区分。
const (
	GenerationStatusGenerating = "generating"
	GenerationStatusDraft      = "draft"
	GenerationStatusCompleted  = "completed"
	GenerationStatusPublished  = "published"
)

// UploadedFile 表示一份已抽取为纯文本的参考资料。
type UploadedFile struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// AttachedImage 表示后处理阶段挂载到文章上的配图。
type AttachedImage struct {
	URL     string `json:"url"`
	Alt     string `json:"alt"`
	Caption string `json:"caption"`
	Section string `json:"section"`
}

// GenerationRecord 定义了一次内容生成任务及其产出的模型。
type GenerationRecord struct {
	gorm.Model
	UserID uint `gorm:"index"`
	User   User

	Title   string `gorm:"size:500;not null"`
	Status  string `gorm:"size:20;index;default:draft"`
	Content string `gorm:"type:text"`

	Language    string `gorm:"size:20"`
	Tone        string `gorm:"size:50"`
	TargetWords int
	WordCount   int
	ReadingTime int

	Keywords        string `gorm:"type:text"`
	MetaDescription string `gorm:"size:500"`
	SEOScore        int
	SEOSuggestions  string `gorm:"type:text"`

	Provider       string `gorm:"size:20"`
	ModelName      string `gorm:"size:100"`
	ElapsedSeconds float64
	ErrorMessage   string `gorm:"type:text"`
	Progress       string `gorm:"size:200"`

	ResearchEnabled bool
	IncludeImages   bool
	SEOOptimize     bool

	OutlineJSON   string `gorm:"type:text"`
	UploadedFiles string `gorm:"type:text"`
	Images        string `gorm:"type:text"`
}

// TableName 指定自定义表名，避免自动复数化导致的歧义。
func (GenerationRecord) TableName() string {
	return "generation_records"
}

// SetContent 写入正文并同步重新计算字数与阅读时长。
// 两个派生字段不允许调用方直接赋值，任何正文变更都必须经过这里。
func (r *GenerationRecord) SetContent(content string) {
	r.Content = content
	r.WordCount = CountWords(content)
	r.ReadingTime = ReadingTimeForWords(r.WordCount)
}

// IsTerminal 判断记录是否已进入不再被后台任务修改的状态。
func (r *GenerationRecord) IsTerminal() bool {
	return r.Status != GenerationStatusGenerating
}

// KeywordList 解码目标关键词列表。
func (r *GenerationRecord) KeywordList() []string {
	return decodeStringList(r.Keywords)
}

// SetKeywords 编码目标关键词列表。
func (r *GenerationRecord) SetKeywords(keywords []string) {
	r.Keywords = encodeJSONList(keywords)
}

// SuggestionList 解码 SEO 优化建议列表。
func (r *GenerationRecord) SuggestionList() []string {
	return decodeStringList(r.SEOSuggestions)
}

// SetSuggestions 编码 SEO 优化建议列表。
func (r *GenerationRecord) SetSuggestions(suggestions []string) {
	r.SEOSuggestions = encodeJSONList(suggestions)
}

// UploadedFileList 解码参考资料列表。
func (r *GenerationRecord) UploadedFileList() []UploadedFile {
	if strings.TrimSpace(r.UploadedFiles) == "" {
		return nil
	}
	var files []UploadedFile
	if err := json.Unmarshal([]byte(r.UploadedFiles), &files); err != nil {
		return nil
	}
	return files
}

// SetUploadedFiles 编码参考资料列表。
func (r *GenerationRecord) SetUploadedFiles(files []UploadedFile) {
	r.UploadedFiles = encodeJSONList(files)
}

// ImageList 解码已挂载的配图列表。
func (r *GenerationRecord) ImageList() []AttachedImage {
	if strings.TrimSpace(r.Images) == "" {
		return nil
	}
	var images []AttachedImage
	if err := json.Unmarshal([]byte(r.Images), &images); err != nil {
		return nil
	}
	return images
}

// SetImages 编码已挂载的配图列表。
func (r *GenerationRecord) SetImages(images []AttachedImage) {
	r.Images = encodeJSONList(images)
}

// CountWords 统计空白分隔的非空词元数量。
func CountWords(content string) int {
	return len(strings.Fields(content))
}

// ReadingTimeForWords 按每分钟 200 词向上取整计算阅读时长（分钟）。
func ReadingTimeForWords(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + 199) / 200
}

func decodeStringList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

func encodeJSONList(value interface{}) string {
	buf, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(buf)
}
