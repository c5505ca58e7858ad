package model

import "gorm.io/gorm"

// 评分点响应类型
const (
	ResponseTypeText     = "text"
	ResponseTypePassFail = "passfail"
	ResponseTypeEvidence = "evidence"
)

// PassFail 响应取值
const (
	PassFailPass = "Pass"
	PassFailFail = "Fail"
)

// RubricPoint 评分点表，对应 rubric_points
// 同一活动内 ListOrder 恒为 1..N 的稠密排列
type RubricPoint struct {
	PointID              string `gorm:"type:uuid;primaryKey"          json:"point_id"`
	ActivityID           string `gorm:"type:uuid;not null;index"      json:"activity_id"`
	Title                string `gorm:"type:varchar(255);not null"    json:"title"`
	Instructions         string `gorm:"type:text;not null;default:''" json:"instructions"`
	InstructionsFormat   int    `gorm:"not null;default:1"            json:"instructions_format"`
	MaxGrade             int    `gorm:"not null"                      json:"max_grade"`
	ResponseType         string `gorm:"type:varchar(16);not null"     json:"response_type"`
	EvidenceMaxSizeBytes *int64 `                                     json:"evidence_max_size_bytes,omitempty"`
	ListOrder            int    `gorm:"not null"                      json:"list_order"`
	BaseModel
}

// TableName 指定表名
func (RubricPoint) TableName() string { return "rubric_points" }

// BeforeCreate 生成主键
func (p *RubricPoint) BeforeCreate(*gorm.DB) error {
	ensureID(&p.PointID)
	return nil
}
