package dto

// ── 评分点模块 DTO ──

// CreatePointRequest 创建评分点请求
type CreatePointRequest struct {
	Title              string `json:"title"                validate:"required,max=255"`
	Instructions       string `json:"instructions"`
	InstructionsFormat int    `json:"instructions_format"  validate:"min=0"`
	MaxGrade           int    `json:"max_grade"            validate:"min=0"`
	ResponseType       string `json:"response_type"        validate:"response_type"`
	// EvidenceMaxSizeMB 仅 evidence 类型必填，取值 1..1000
	EvidenceMaxSizeMB *int `json:"evidence_max_size_mb" validate:"omitempty,min=1,max=1000"`
}

// UpdatePointRequest 更新评分点请求（整体替换，不含排序）
type UpdatePointRequest struct {
	Title              string `json:"title"                validate:"required,max=255"`
	Instructions       string `json:"instructions"`
	InstructionsFormat int    `json:"instructions_format"  validate:"min=0"`
	MaxGrade           int    `json:"max_grade"            validate:"min=0"`
	ResponseType       string `json:"response_type"        validate:"response_type"`
	EvidenceMaxSizeMB  *int   `json:"evidence_max_size_mb" validate:"omitempty,min=1,max=1000"`
}

// RubricPointResponse 评分点信息响应
type RubricPointResponse struct {
	ID                   string `json:"id"`
	ActivityID           string `json:"activity_id"`
	Title                string `json:"title"`
	Instructions         string `json:"instructions"`
	InstructionsFormat   int    `json:"instructions_format"`
	MaxGrade             int    `json:"max_grade"`
	ResponseType         string `json:"response_type"`
	EvidenceMaxSizeBytes *int64 `json:"evidence_max_size_bytes,omitempty"`
	ListOrder            int    `json:"list_order"`
}
