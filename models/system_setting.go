package models

import "time"

// Known system setting keys.
const (
	SettingGS1CompanyPrefix = "gs1_company_prefix"
)

// SystemSetting is a single key/value configuration row editable at runtime.
type SystemSetting struct {
	Key       string    `gorm:"column:key;primaryKey;size:64" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (SystemSetting) TableName() string { return "system_settings" }

// SystemSettingFilter represents filter criteria for system setting queries
type SystemSettingFilter struct {
	Key *string
}
