package model

import "gorm.io/gorm"

// Timeslot 观察时间段表，对应 timeslots
// ObserveeID 为空表示空闲；同一活动内一个被观察者最多占用一个时间段（部分唯一索引保证）
type Timeslot struct {
	TimeslotID       string  `gorm:"type:uuid;primaryKey"         json:"timeslot_id"`
	ActivityID       string  `gorm:"type:uuid;not null;index"     json:"activity_id"`
	StartTime        int64   `gorm:"not null"                     json:"start_time"` // unix 秒
	DurationMinutes  int     `gorm:"not null"                     json:"duration_minutes"`
	ObserverID       string  `gorm:"type:varchar(64);not null"    json:"observer_id"`
	ObserveeID       *string `gorm:"type:varchar(64)"             json:"observee_id,omitempty"`
	ObserverEventRef *string `gorm:"type:varchar(64)"             json:"observer_event_ref,omitempty"`
	ObserveeEventRef *string `gorm:"type:varchar(64)"             json:"observee_event_ref,omitempty"`
	BaseModel
}

// TableName 指定表名
func (Timeslot) TableName() string { return "timeslots" }

// BeforeCreate 生成主键
func (t *Timeslot) BeforeCreate(*gorm.DB) error {
	ensureID(&t.TimeslotID)
	return nil
}

// EndTime 结束时间（unix 秒）
func (t *Timeslot) EndTime() int64 {
	return t.StartTime + int64(t.DurationMinutes)*60
}

// Occupied 是否已有被观察者
func (t *Timeslot) Occupied() bool {
	return t.ObserveeID != nil && *t.ObserveeID != ""
}

// TimeslotNotification 时间段提醒表，对应 timeslot_notifications
// 时间段删除时级联删除
type TimeslotNotification struct {
	NotificationID string `gorm:"type:uuid;primaryKey"     json:"notification_id"`
	TimeslotID     string `gorm:"type:uuid;not null;index" json:"timeslot_id"`
	OffsetSeconds  int64  `gorm:"not null"                 json:"offset_seconds"` // 开始前多少秒提醒
	BaseModel

	// 关联
	Timeslot *Timeslot `gorm:"foreignKey:TimeslotID;references:TimeslotID;constraint:OnDelete:CASCADE" json:"timeslot,omitempty"`
}

// TableName 指定表名
func (TimeslotNotification) TableName() string { return "timeslot_notifications" }

// BeforeCreate 生成主键
func (n *TimeslotNotification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.NotificationID)
	return nil
}
