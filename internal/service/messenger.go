package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"observation/backend/internal/model"
	"observation/backend/pkg/notify"
)

// messenger 查询联系人后按类型发送通知
type messenger struct {
	notifier  Notifier
	directory EnrollmentDirectory
	loc       *time.Location
	logger    *zap.Logger
}

func (m *messenger) send(ctx context.Context, kind notify.Kind, activity *model.Activity, slot *model.Timeslot, userID string) error {
	if m.notifier == nil || userID == "" {
		return nil
	}

	to := notify.Recipient{UserID: userID}
	if m.directory != nil {
		contact, err := m.directory.Contact(ctx, activity.ActivityID, userID)
		if err != nil {
			return err
		}
		to = contact
	}

	info := notify.Slot{
		ActivityName:    activity.Name,
		Start:           time.Unix(slot.StartTime, 0).In(m.loc),
		DurationMinutes: slot.DurationMinutes,
	}

	switch kind {
	case notify.KindReminder:
		return m.notifier.SendReminder(ctx, to, info)
	case notify.KindSignup:
		return m.notifier.SendSignupConfirmation(ctx, to, info)
	default:
		return m.notifier.SendCancellation(ctx, to, info)
	}
}

// sendLogged 发送失败只记录日志，不影响调用方
func (m *messenger) sendLogged(ctx context.Context, kind notify.Kind, activity *model.Activity, slot *model.Timeslot, userID string) {
	if err := m.send(ctx, kind, activity, slot, userID); err != nil {
		m.logger.Warn("发送通知失败",
			zap.String("kind", string(kind)),
			zap.String("timeslot_id", slot.TimeslotID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
