package dto

// ── 观察会话模块 DTO ──

// StartSessionRequest 开始会话请求
type StartSessionRequest struct {
	ActivityID string `json:"activity_id" validate:"required"`
	ObserverID string `json:"observer_id" validate:"required"`
	ObserveeID string `json:"observee_id" validate:"required"`
}

// SubmitResponseRequest 提交评分点作答
type SubmitResponseRequest struct {
	GradeGiven    int    `json:"grade_given"`
	ResponseValue string `json:"response_value"`
	ExtraComment  string `json:"extra_comment"`
}

// SessionResponse 会话信息响应
type SessionResponse struct {
	ID           string `json:"id"`
	ActivityID   string `json:"activity_id"`
	ObserverID   string `json:"observer_id"`
	ObserveeID   string `json:"observee_id"`
	State        string `json:"state"`
	StartTime    int64  `json:"start_time"`
	FinishTime   *int64 `json:"finish_time,omitempty"`
	ExtraComment string `json:"extra_comment"`
}

// ResponseEntry 评分点作答响应
type ResponseEntry struct {
	ID            string `json:"id"`
	PointID       string `json:"point_id"`
	SessionID     string `json:"session_id"`
	GradeGiven    int    `json:"grade_given"`
	ResponseValue string `json:"response_value"`
	ExtraComment  string `json:"extra_comment"`
	TimeCreated   int64  `json:"time_created"`
	TimeModified  int64  `json:"time_modified"`
}

// GradeResult 会话得分
type GradeResult struct {
	Total int `json:"total"`
	Max   int `json:"max"`
}

// FinishResult 结束会话结果
// Completed=false 表示仍有评分点未作答，会话保持原状态
type FinishResult struct {
	Completed     bool         `json:"completed"`
	MissingCount  int          `json:"missing_count"`
	MissingTitles []string     `json:"missing_titles,omitempty"`
	Grade         *GradeResult `json:"grade,omitempty"`
}
