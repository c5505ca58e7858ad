package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"observation/backend/internal/dto"
	"observation/backend/internal/model"
	"observation/backend/internal/repository"
	pkgerrors "observation/backend/pkg/errors"
	"observation/backend/pkg/metrics"
	"observation/backend/pkg/notify"
	"observation/backend/pkg/redis"
)

// NotificationJobName 提醒定时任务名，同时作为运行锁键
const NotificationJobName = "notifications"

const notificationJobLockTTL = 5 * time.Minute

// NotificationService 时间段提醒业务接口
type NotificationService interface {
	// CreateNotification 用户达到提醒上限时静默忽略，返回 nil, nil
	CreateNotification(ctx context.Context, req *dto.CreateNotificationRequest) (*dto.NotificationResponse, error)
	// ProcessDue 发送 notifyAt < now 的提醒并删除，返回发送成功的数量
	ProcessDue(ctx context.Context, now time.Time) (int, error)
	ListForUser(ctx context.Context, activityID, userID string) ([]dto.NotificationResponse, error)
	Delete(ctx context.Context, notificationID, userID string) error
}

type notificationService struct {
	repo   *repository.Repository
	rdb    *redis.Client
	msg    *messenger
	limit  int
	logger *zap.Logger
}

// NewNotificationService 创建 NotificationService 实例
func NewNotificationService(
	repo *repository.Repository,
	rdb *redis.Client,
	notifier Notifier,
	directory EnrollmentDirectory,
	limit int,
	loc *time.Location,
	logger *zap.Logger,
) NotificationService {
	if loc == nil {
		loc = time.UTC
	}
	return &notificationService{
		repo:   repo,
		rdb:    rdb,
		msg:    &messenger{notifier: notifier, directory: directory, loc: loc, logger: logger},
		limit:  limit,
		logger: logger,
	}
}

// ════════════════════════════════════════════
// CreateNotification
// ════════════════════════════════════════════

func (s *notificationService) CreateNotification(ctx context.Context, req *dto.CreateNotificationRequest) (*dto.NotificationResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	slot, err := loadTimeslot(ctx, s.repo, req.TimeslotID)
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("查询时间段失败", zap.String("timeslot_id", req.TimeslotID), zap.Error(err))
		}
		return nil, err
	}
	if slot.ActivityID != req.ActivityID {
		return nil, ErrTimeslotNotFound
	}
	if !slot.Occupied() || *slot.ObserveeID != req.UserID {
		return nil, ErrNotRegistered
	}

	count, err := s.repo.Notification.CountByUser(ctx, req.ActivityID, req.UserID)
	if err != nil {
		s.logger.Error("统计提醒数量失败", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, err
	}
	if int(count) >= s.limit {
		s.logger.Info("提醒数量已达上限，忽略",
			zap.String("activity_id", req.ActivityID),
			zap.String("user_id", req.UserID),
			zap.Int64("count", count),
		)
		return nil, nil
	}

	n := &model.TimeslotNotification{
		TimeslotID:    slot.TimeslotID,
		OffsetSeconds: req.IntervalAmount * req.IntervalMultiplier,
	}
	if err := s.repo.Notification.Create(ctx, n); err != nil {
		s.logger.Error("创建提醒失败", zap.String("timeslot_id", slot.TimeslotID), zap.Error(err))
		return nil, err
	}
	n.Timeslot = slot
	return toNotificationResponse(n), nil
}

// ════════════════════════════════════════════
// ProcessDue 定时任务入口
// ════════════════════════════════════════════
//
// 先发送再删除，两步不在同一事务内：发送失败的提醒同样删除，不做重试。
// 多实例部署时以 Redis 运行锁避免重复发送。

func (s *notificationService) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	lock, err := s.rdb.TryLock(ctx, redis.JobLockKey(NotificationJobName), notificationJobLockTTL)
	switch {
	case err != nil:
		s.logger.Warn("提醒任务运行锁不可用，继续执行", zap.Error(err))
	case lock == nil:
		s.logger.Info("提醒任务正在其他实例运行，跳过")
		return 0, nil
	default:
		defer lock.Release(ctx)
	}

	due, err := s.repo.Notification.ListDue(ctx, now.Unix())
	if err != nil {
		s.logger.Error("查询待发送提醒失败", zap.Error(err))
		return 0, err
	}

	activities := make(map[string]*model.Activity)
	sent := 0
	for i := range due {
		n := &due[i]
		if n.Timeslot != nil && n.Timeslot.Occupied() {
			if s.sendReminder(ctx, activities, n) {
				sent++
			}
		}

		if err := s.repo.Notification.Delete(ctx, n.NotificationID); err != nil {
			s.logger.Warn("删除已处理提醒失败", zap.String("notification_id", n.NotificationID), zap.Error(err))
		}
	}

	if len(due) > 0 {
		s.logger.Info("提醒处理完成", zap.Int("due", len(due)), zap.Int("sent", sent))
	}
	return sent, nil
}

func (s *notificationService) sendReminder(ctx context.Context, cache map[string]*model.Activity, n *model.TimeslotNotification) bool {
	slot := n.Timeslot

	activity, ok := cache[slot.ActivityID]
	if !ok {
		var err error
		activity, err = loadActivity(ctx, s.repo, slot.ActivityID)
		if err != nil {
			s.logger.Warn("查询提醒所属活动失败", zap.String("activity_id", slot.ActivityID), zap.Error(err))
			metrics.RemindersSent.WithLabelValues("failed").Inc()
			return false
		}
		cache[slot.ActivityID] = activity
	}

	if err := s.msg.send(ctx, notify.KindReminder, activity, slot, *slot.ObserveeID); err != nil {
		s.logger.Warn("发送提醒失败",
			zap.String("notification_id", n.NotificationID),
			zap.String("user_id", *slot.ObserveeID),
			zap.Error(err),
		)
		metrics.RemindersSent.WithLabelValues("failed").Inc()
		return false
	}

	metrics.RemindersSent.WithLabelValues("ok").Inc()
	return true
}

// ════════════════════════════════════════════
// 查询与删除
// ════════════════════════════════════════════

func (s *notificationService) ListForUser(ctx context.Context, activityID, userID string) ([]dto.NotificationResponse, error) {
	list, err := s.repo.Notification.ListByUser(ctx, activityID, userID)
	if err != nil {
		s.logger.Error("列出提醒失败",
			zap.String("activity_id", activityID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}

	result := make([]dto.NotificationResponse, 0, len(list))
	for i := range list {
		result = append(result, *toNotificationResponse(&list[i]))
	}
	return result, nil
}

// Delete 只能删除自己时间段上的提醒，否则视为不存在
func (s *notificationService) Delete(ctx context.Context, notificationID, userID string) error {
	n, err := s.repo.Notification.GetByID(ctx, notificationID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return ErrNotificationNotFound
		}
		s.logger.Error("查询提醒失败", zap.String("notification_id", notificationID), zap.Error(err))
		return err
	}
	if n.Timeslot == nil || !n.Timeslot.Occupied() || *n.Timeslot.ObserveeID != userID {
		return ErrNotificationNotFound
	}

	if err := s.repo.Notification.Delete(ctx, notificationID); err != nil {
		s.logger.Error("删除提醒失败", zap.String("notification_id", notificationID), zap.Error(err))
		return err
	}
	return nil
}

func toNotificationResponse(n *model.TimeslotNotification) *dto.NotificationResponse {
	resp := &dto.NotificationResponse{
		ID:            n.NotificationID,
		TimeslotID:    n.TimeslotID,
		OffsetSeconds: n.OffsetSeconds,
	}
	if n.Timeslot != nil {
		resp.NotifyAt = n.Timeslot.StartTime - n.OffsetSeconds
	}
	return resp
}
