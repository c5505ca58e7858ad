package dto

// ── 时间段模块 DTO ──

// CreateTimeslotRequest 创建时间段请求
type CreateTimeslotRequest struct {
	ActivityID      string  `json:"activity_id"      validate:"required"`
	StartTime       int64   `json:"start_time"       validate:"min=0"` // unix 秒
	DurationMinutes int     `json:"duration_minutes" validate:"min=1"`
	ObserverID      string  `json:"observer_id"      validate:"required"`
	ObserveeID      *string `json:"observee_id"      validate:"omitempty,min=1"`
}

// UpdateTimeslotRequest 更新时间段请求
type UpdateTimeslotRequest struct {
	StartTime       int64   `json:"start_time"       validate:"min=0"`
	DurationMinutes int     `json:"duration_minutes" validate:"min=1"`
	ObserverID      string  `json:"observer_id"      validate:"required"`
	ObserveeID      *string `json:"observee_id"      validate:"omitempty,min=1"`
}

// GenerateTimeslotsRequest 按固定间隔批量生成时间段
// 步长 = IntervalAmount × IntervalMultiplier 秒，生成 start, start+step, ... 直到 < EndTime
type GenerateTimeslotsRequest struct {
	ActivityID         string `json:"activity_id"         validate:"required"`
	StartTime          int64  `json:"start_time"          validate:"min=0"`
	DurationMinutes    int    `json:"duration_minutes"    validate:"min=1"`
	ObserverID         string `json:"observer_id"         validate:"required"`
	IntervalAmount     int64  `json:"interval_amount"     validate:"min=1"`
	IntervalMultiplier int64  `json:"interval_multiplier" validate:"min=1"` // 60=分钟 3600=小时 86400=天
	EndTime            int64  `json:"end_time"            validate:"gtefield=StartTime"`
}

// SignupRequest 报名请求
type SignupRequest struct {
	ActivityID string `json:"activity_id" validate:"required"`
	TimeslotID string `json:"timeslot_id" validate:"required"`
	UserID     string `json:"user_id"     validate:"required"`
}

// TimeslotResponse 时间段信息响应
type TimeslotResponse struct {
	ID              string  `json:"id"`
	ActivityID      string  `json:"activity_id"`
	StartTime       int64   `json:"start_time"`
	EndTime         int64   `json:"end_time"`
	DurationMinutes int     `json:"duration_minutes"`
	ObserverID      string  `json:"observer_id"`
	ObserveeID      *string `json:"observee_id,omitempty"`
}

// AssignmentResult 随机分配结果
type AssignmentResult struct {
	Assigned   int      `json:"assigned"`
	Unassigned []string `json:"unassigned"` // 未分配到时间段的用户
}
