package model

import "gorm.io/gorm"

// 会话状态
const (
	SessionStateInProgress = "inprogress"
	SessionStateComplete   = "complete"
	SessionStateCancelled  = "cancelled"
)

// Session 观察会话表，对应 observation_sessions
type Session struct {
	SessionID    string `gorm:"type:uuid;primaryKey"                       json:"session_id"`
	ActivityID   string `gorm:"type:uuid;not null;index"                   json:"activity_id"`
	ObserverID   string `gorm:"type:varchar(64);not null"                  json:"observer_id"`
	ObserveeID   string `gorm:"type:varchar(64);not null"                  json:"observee_id"`
	State        string `gorm:"type:varchar(16);not null"                  json:"state"`
	StartTime    int64  `gorm:"not null"                                   json:"start_time"`
	FinishTime   *int64 `                                                  json:"finish_time,omitempty"`
	ExtraComment string `gorm:"type:text;not null;default:''"              json:"extra_comment"`
	BaseModel
}

// TableName 指定表名
func (Session) TableName() string { return "observation_sessions" }

// BeforeCreate 生成主键
func (s *Session) BeforeCreate(*gorm.DB) error {
	ensureID(&s.SessionID)
	return nil
}

// PointResponse 评分点作答表，对应 point_responses
// (PointID, SessionID) 唯一，写入按 upsert 语义
type PointResponse struct {
	ResponseID    string `gorm:"type:uuid;primaryKey"                                json:"response_id"`
	PointID       string `gorm:"type:uuid;not null;uniqueIndex:uq_point_session"     json:"point_id"`
	SessionID     string `gorm:"type:uuid;not null;uniqueIndex:uq_point_session"     json:"session_id"`
	GradeGiven    int    `gorm:"not null"                                            json:"grade_given"`
	ResponseValue string `gorm:"type:text;not null"                                  json:"response_value"`
	ExtraComment  string `gorm:"type:text;not null;default:''"                       json:"extra_comment"`
	TimeCreated   int64  `gorm:"not null"                                            json:"time_created"`
	TimeModified  int64  `gorm:"not null"                                            json:"time_modified"`
}

// TableName 指定表名
func (PointResponse) TableName() string { return "point_responses" }

// BeforeCreate 生成主键
func (r *PointResponse) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ResponseID)
	return nil
}
