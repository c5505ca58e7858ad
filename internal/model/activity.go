package model

import "gorm.io/gorm"

// Activity 观察活动表，对应 activities
type Activity struct {
	ActivityID             string `gorm:"type:uuid;primaryKey"         json:"activity_id"`
	CourseID               string `gorm:"type:varchar(64);not null"    json:"course_id"`
	Name                   string `gorm:"type:varchar(255);not null"   json:"name"`
	StudentsSelfUnregister bool   `gorm:"not null;default:false"       json:"students_self_unregister"`
	GradebookRef           string `gorm:"type:varchar(255);not null"   json:"gradebook_ref"` // 成绩册中的成绩项标识
	BaseModel
}

// TableName 指定表名
func (Activity) TableName() string { return "activities" }

// BeforeCreate 生成主键
func (a *Activity) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ActivityID)
	return nil
}

// Participant 活动参与者表，对应 activity_participants
// 作为课程名册的本地镜像，CanObserve 对应“执行观察”能力
type Participant struct {
	ActivityID     string `gorm:"type:uuid;primaryKey"        json:"activity_id"`
	UserID         string `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	Name           string `gorm:"type:varchar(255);not null"  json:"name"`
	Email          string `gorm:"type:varchar(255);not null"  json:"email"`
	TelegramChatID int64  `gorm:"not null;default:0"          json:"telegram_chat_id"`
	CanObserve     bool   `gorm:"not null;default:false"      json:"can_observe"`
	BaseModel
}

// TableName 指定表名
func (Participant) TableName() string { return "activity_participants" }
