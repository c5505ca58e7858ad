package dto

// ── 提醒模块 DTO ──

// CreateNotificationRequest 为已报名的时间段添加提醒
// 提前量 = IntervalAmount × IntervalMultiplier 秒
type CreateNotificationRequest struct {
	ActivityID         string `json:"activity_id"         validate:"required"`
	TimeslotID         string `json:"timeslot_id"         validate:"required"`
	UserID             string `json:"user_id"             validate:"required"`
	IntervalAmount     int64  `json:"interval_amount"     validate:"min=1"`
	IntervalMultiplier int64  `json:"interval_multiplier" validate:"min=1"`
}

// NotificationResponse 提醒信息响应
type NotificationResponse struct {
	ID            string `json:"id"`
	TimeslotID    string `json:"timeslot_id"`
	OffsetSeconds int64  `json:"offset_seconds"`
	NotifyAt      int64  `json:"notify_at"`
}
