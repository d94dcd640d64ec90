package service

import (
	"errors"
	"time"

	"github.com/draftforge/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultViewDedupWindow = 30 * time.Minute

// AnalyticsService 负责生成内容的浏览统计。
type AnalyticsService struct {
	db          *gorm.DB
	dedupWindow time.Duration
}

// NewAnalyticsService 创建 AnalyticsService，默认去重窗口为 30 分钟。
func NewAnalyticsService(gdb *gorm.DB) *AnalyticsService {
	return &AnalyticsService{db: gdb, dedupWindow: defaultViewDedupWindow}
}

// WithDedupWindow 允许在测试或特定场景下调整去重窗口。
func (s *AnalyticsService) WithDedupWindow(d time.Duration) *AnalyticsService {
	if d <= 0 {
		return s
	}
	s.dedupWindow = d
	return s
}

// RecordGenerationView 记录访客对生成内容的浏览，并返回最新统计。
// 同一访客在去重窗口内的重复访问不会增加 PV。
func (s *AnalyticsService) RecordGenerationView(recordID uint, visitorID string, now time.Time) (*db.GenerationStatistic, error) {
	if visitorID == "" || recordID == 0 {
		return nil, errors.New("invalid visitor or record id")
	}

	var stats db.GenerationStatistic

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		visit := db.GenerationVisit{
			RecordID:      recordID,
			VisitorID:     visitorID,
			LastViewedAt:  now,
			LastCountedAt: now,
		}
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_id"}, {Name: "visitor_id"}},
			DoNothing: true,
		}).Create(&visit)
		if insert.Error != nil {
			return insert.Error
		}

		isNewVisitor := insert.RowsAffected == 1
		countView := true
		if !isNewVisitor {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("record_id = ? AND visitor_id = ?", recordID, visitorID).
				First(&visit).Error; err != nil {
				return err
			}
			countView = now.Sub(visit.LastCountedAt) >= s.dedupWindow
			visit.LastViewedAt = now
			if countView {
				visit.LastCountedAt = now
			}
			if err := tx.Save(&visit).Error; err != nil {
				return err
			}
		}

		statsResult := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("record_id = ?", recordID).
			First(&stats)

		switch {
		case errors.Is(statsResult.Error, gorm.ErrRecordNotFound):
			stats = db.GenerationStatistic{RecordID: recordID}
			if err := tx.Create(&stats).Error; err != nil {
				return err
			}
		case statsResult.Error != nil:
			return statsResult.Error
		}

		if countView {
			stats.PageViews++
		}
		if isNewVisitor {
			stats.UniqueVisitors++
		}
		stats.LastViewedAt = now

		return tx.Save(&stats).Error
	}); err != nil {
		return nil, err
	}

	return &stats, nil
}

// StatsFor 返回单条记录的统计数据，没有任何浏览时返回零值统计。
func (s *AnalyticsService) StatsFor(recordID uint) (*db.GenerationStatistic, error) {
	var stats db.GenerationStatistic
	if err := s.db.Where("record_id = ?", recordID).First(&stats).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &db.GenerationStatistic{RecordID: recordID}, nil
		}
		return nil, err
	}
	return &stats, nil
}
