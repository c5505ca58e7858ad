package repository

import (
	"context"

	"gorm.io/gorm"

	"observation/backend/internal/model"
)

// NotificationRepository 时间段提醒数据访问接口
// 提醒归属于时间段当前的被观察者
type NotificationRepository interface {
	Create(ctx context.Context, n *model.TimeslotNotification) error
	GetByID(ctx context.Context, id string) (*model.TimeslotNotification, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, activityID, userID string) ([]model.TimeslotNotification, error)
	CountByUser(ctx context.Context, activityID, userID string) (int64, error)
	DeleteByUser(ctx context.Context, activityID, userID string) error
	// ListDue 返回 start_time - offset_seconds < now 的提醒（含关联时间段）
	ListDue(ctx context.Context, now int64) ([]model.TimeslotNotification, error)
}

type notificationRepo struct {
	db *gorm.DB
}

// NewNotificationRepo 创建 NotificationRepository 实例
func NewNotificationRepo(db *gorm.DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Create(ctx context.Context, n *model.TimeslotNotification) error {
	return r.db.WithContext(ctx).Omit("Timeslot").Create(n).Error
}

func (r *notificationRepo) GetByID(ctx context.Context, id string) (*model.TimeslotNotification, error) {
	var n model.TimeslotNotification
	err := r.db.WithContext(ctx).
		Preload("Timeslot").
		Where("notification_id = ?", id).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("notification_id = ?", id).Delete(&model.TimeslotNotification{}).Error
}

func (r *notificationRepo) userSlots(ctx context.Context, activityID, userID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&model.Timeslot{}).
		Select("timeslot_id").
		Where("activity_id = ? AND observee_id = ?", activityID, userID)
}

func (r *notificationRepo) ListByUser(ctx context.Context, activityID, userID string) ([]model.TimeslotNotification, error) {
	var list []model.TimeslotNotification
	err := r.db.WithContext(ctx).
		Preload("Timeslot").
		Where("timeslot_id IN (?)", r.userSlots(ctx, activityID, userID)).
		Order("offset_seconds DESC").
		Find(&list).Error
	return list, err
}

func (r *notificationRepo) CountByUser(ctx context.Context, activityID, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.TimeslotNotification{}).
		Where("timeslot_id IN (?)", r.userSlots(ctx, activityID, userID)).
		Count(&count).Error
	return count, err
}

func (r *notificationRepo) DeleteByUser(ctx context.Context, activityID, userID string) error {
	return r.db.WithContext(ctx).
		Where("timeslot_id IN (?)", r.userSlots(ctx, activityID, userID)).
		Delete(&model.TimeslotNotification{}).Error
}

func (r *notificationRepo) ListDue(ctx context.Context, now int64) ([]model.TimeslotNotification, error) {
	var list []model.TimeslotNotification
	err := r.db.WithContext(ctx).
		Joins("Timeslot").
		Where(`"Timeslot".start_time - timeslot_notifications.offset_seconds < ?`, now).
		Order("timeslot_notifications.notification_id ASC").
		Find(&list).Error
	return list, err
}
