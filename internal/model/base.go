package model

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel 通用审计字段（所有业务模型嵌入）
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// ensureID 主键为空时生成 UUID
// 主键在应用侧生成，PostgreSQL 与 SQLite 行为一致
func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
