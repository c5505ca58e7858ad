package model

// CalendarEvent 日历事件表，对应 calendar_events
// EventRef 写回 Timeslot 的 ObserverEventRef / ObserveeEventRef
type CalendarEvent struct {
	EventRef    string `gorm:"type:varchar(64);primaryKey"   json:"event_ref"`
	UserID      string `gorm:"type:varchar(64);not null;index" json:"user_id"`
	TimeslotID  string `gorm:"type:uuid;not null"            json:"timeslot_id"`
	Summary     string `gorm:"type:varchar(255);not null"    json:"summary"`
	Description string `gorm:"type:text;not null;default:''" json:"description"`
	StartAt     int64  `gorm:"not null"                      json:"start_at"`
	EndAt       int64  `gorm:"not null"                      json:"end_at"`
	BaseModel
}

// TableName 指定表名
func (CalendarEvent) TableName() string { return "calendar_events" }
