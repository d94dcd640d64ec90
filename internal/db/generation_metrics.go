package db

import "time"

// GenerationStatistic 汇总生成记录维度的浏览数据。
type GenerationStatistic struct {
	ID             uint   `gorm:"primaryKey"`
	RecordID       uint   `gorm:"uniqueIndex"`
	PageViews      uint64 `gorm:"default:0"`
	UniqueVisitors uint64 `gorm:"default:0"`
	LastViewedAt   time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName 指定自定义表名，避免自动复数化导致的歧义。
func (GenerationStatistic) TableName() string {
	return "generation_statistics"
}

// GenerationVisit 记录访客层面的浏览历史，用于 UV/PV 去重。
type GenerationVisit struct {
	ID            uint   `gorm:"primaryKey"`
	RecordID      uint   `gorm:"uniqueIndex:idx_generation_visits_record_visitor"`
	VisitorID     string `gorm:"size:64;uniqueIndex:idx_generation_visits_record_visitor"`
	LastViewedAt  time.Time
	LastCountedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName 指定自定义表名。
func (GenerationVisit) TableName() string {
	return "generation_visits"
}
