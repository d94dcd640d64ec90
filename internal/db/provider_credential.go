package db

import "gorm.io/gorm"

// ProviderCredential 保存用户为大模型平台配置的凭据。
// 生成流水线将其视为只读输入，缺失时必须在发起生成时同步失败。
type ProviderCredential struct {
	gorm.Model
	UserID     uint   `gorm:"uniqueIndex;not null"`
	Provider   string `gorm:"size:20;not null"`
	APIKey     string `gorm:"size:200;not null"`
	ModelName  string `gorm:"size:100"`
	Creativity string `gorm:"size:20"`
}

// TableName 指定自定义表名。
func (ProviderCredential) TableName() string {
	return "provider_credentials"
}
