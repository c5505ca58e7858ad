// Package gradebook 将观察会话的最终成绩同步到外部成绩册
package gradebook

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Grade 一次成绩同步的内容
type Grade struct {
	ActivityID   string
	GradebookRef string
	UserID       string
	RaterID      string
	Total        int
	Max          int
	Comment      string
	GradedAt     time.Time
}

// Sink 成绩册写入端
type Sink interface {
	SyncGrade(ctx context.Context, g Grade) error
}

// LogSink 仅记录日志的成绩册，用于未接入外部成绩册的环境
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink 创建 LogSink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) SyncGrade(_ context.Context, g Grade) error {
	s.logger.Info("同步成绩",
		zap.String("activity_id", g.ActivityID),
		zap.String("gradebook_ref", g.GradebookRef),
		zap.String("user_id", g.UserID),
		zap.String("rater_id", g.RaterID),
		zap.Int("total", g.Total),
		zap.Int("max", g.Max),
	)
	return nil
}
