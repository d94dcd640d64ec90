package handler

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	_ "golang.org/x/image/webp"
)

const maxDocumentBytes = 1 << 20

// UploadDocument 接收 txt/md 参考资料并返回抽取出的纯文本。
func (a *API) UploadDocument(c *gin.Context) {
	file, err := c.FormFile("document")
	if err != nil {
		respondError(c, http.StatusBadRequest, "未找到上传的文件")
		return
	}
	if file.Size > maxDocumentBytes {
		respondError(c, http.StatusBadRequest, "文件大小不能超过 1MB")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".txt" && ext != ".md" && ext != ".markdown" {
		respondError(c, http.StatusBadRequest, "只支持 txt 或 markdown 文件")
		return
	}

	opened, err := file.Open()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取文件失败")
		return
	}
	defer opened.Close()

	content, err := io.ReadAll(io.LimitReader(opened, maxDocumentBytes))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取文件失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"filename": filepath.Base(file.Filename),
		"text":     string(content),
	})
}

// UploadImage 处理图片上传请求，返回可访问的 URL 与图片尺寸。
func (a *API) UploadImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		respondError(c, http.StatusBadRequest, "未找到上传的图片")
		return
	}

	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		respondError(c, http.StatusBadRequest, "只允许上传图片文件")
		return
	}

	if err := os.MkdirAll(a.uploadDir, 0755); err != nil {
		respondError(c, http.StatusInternalServerError, "创建上传目录失败")
		return
	}

	ext := filepath.Ext(file.Filename)
	newFilename := fmt.Sprintf("%s-%s%s", time.Now().Format("20060102"), uuid.New().String(), ext)
	filePath := filepath.Join(a.uploadDir, newFilename)

	if err := c.SaveUploadedFile(file, filePath); err != nil {
		respondError(c, http.StatusInternalServerError, "保存文件失败")
		return
	}

	width, height := probeImageSize(filePath)
	fileURL := strings.TrimRight(a.uploadURL, "/") + "/" + newFilename
	c.JSON(http.StatusOK, gin.H{
		"url":    fileURL,
		"width":  width,
		"height": height,
	})
}

// probeImageSize 读取图片尺寸，无法识别的格式返回 0。
func probeImageSize(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
