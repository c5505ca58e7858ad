package service

import (
	"context"

	"observation/backend/internal/repository"
	"observation/backend/pkg/gradebook"
	"observation/backend/pkg/notify"
)

// ── 外部协作接口 ──

// Notifier 消息通知
type Notifier interface {
	SendReminder(ctx context.Context, to notify.Recipient, slot notify.Slot) error
	SendSignupConfirmation(ctx context.Context, to notify.Recipient, slot notify.Slot) error
	SendCancellation(ctx context.Context, to notify.Recipient, slot notify.Slot) error
}

// CalendarEvent 写入日历的事件内容
type CalendarEvent struct {
	UserID      string
	TimeslotID  string
	Summary     string
	Description string
	Start       int64
	End         int64
}

// CalendarSync 用户日历同步，按事件引用增删改
type CalendarSync interface {
	CreateEvent(ctx context.Context, ev CalendarEvent) (string, error)
	UpdateEvent(ctx context.Context, ref string, ev CalendarEvent) error
	DeleteEvent(ctx context.Context, ref string) error
}

// txCalendar 事件与时间段同库存储的日历实现，可绑定到当前事务
type txCalendar interface {
	WithTx(tx *repository.Repository) CalendarSync
}

// GradebookSink 成绩册
type GradebookSink interface {
	SyncGrade(ctx context.Context, g gradebook.Grade) error
}

// CapabilityPerformObservation 执行观察的能力，持有者不参与随机分配
const CapabilityPerformObservation = "perform_observation"

// EnrollmentDirectory 课程名册
type EnrollmentDirectory interface {
	ListParticipants(ctx context.Context, activityID string) ([]string, error)
	ListParticipantsWithCapability(ctx context.Context, activityID, capability string) ([]string, error)
	Contact(ctx context.Context, activityID, userID string) (notify.Recipient, error)
}

// calendarFor 返回绑定到 tx 的日历实现
func calendarFor(cal CalendarSync, tx *repository.Repository) CalendarSync {
	if b, ok := cal.(txCalendar); ok {
		return b.WithTx(tx)
	}
	return cal
}
