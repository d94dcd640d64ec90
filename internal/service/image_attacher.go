package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/draftforge/internal/db"
)

// ImageAttacher 为生成的文章挑选配图。
type ImageAttacher interface {
	Attach(ctx context.Context, topic string, sections []string) ([]db.AttachedImage, error)
}

const maxAttachedImages = 3

// stubImageAttacher 在没有接入真实图片服务时生成占位图。
// 占位图地址是确定性的，便于前端与测试。
type stubImageAttacher struct{}

// NewStubImageAttacher 返回占位图实现。
func NewStubImageAttacher() ImageAttacher {
	return stubImageAttacher{}
}

func (stubImageAttacher) Attach(_ context.Context, topic string, sections []string) ([]db.AttachedImage, error) {
	labels := sections
	if len(labels) == 0 {
		labels = []string{strings.TrimSpace(topic)}
	}
	if len(labels) > maxAttachedImages {
		labels = labels[:maxAttachedImages]
	}

	images := make([]db.AttachedImage, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		images = append(images, db.AttachedImage{
			URL:     "https://placehold.co/1200x630?text=" + url.QueryEscape(label),
			Alt:     fmt.Sprintf("%s 配图", label),
			Caption: label,
			Section: label,
		})
	}
	return images, nil
}
