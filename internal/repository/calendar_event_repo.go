package repository

import (
	"context"

	"gorm.io/gorm"

	"observation/backend/internal/model"
)

// CalendarEventRepository 日历事件数据访问接口
type CalendarEventRepository interface {
	Create(ctx context.Context, event *model.CalendarEvent) error
	GetByRef(ctx context.Context, ref string) (*model.CalendarEvent, error)
	Update(ctx context.Context, event *model.CalendarEvent) error
	Delete(ctx context.Context, ref string) error
	ListByUser(ctx context.Context, userID string) ([]model.CalendarEvent, error)
}

type calendarEventRepo struct {
	db *gorm.DB
}

// NewCalendarEventRepo 创建 CalendarEventRepository 实例
func NewCalendarEventRepo(db *gorm.DB) CalendarEventRepository {
	return &calendarEventRepo{db: db}
}

func (r *calendarEventRepo) Create(ctx context.Context, event *model.CalendarEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *calendarEventRepo) GetByRef(ctx context.Context, ref string) (*model.CalendarEvent, error) {
	var event model.CalendarEvent
	err := r.db.WithContext(ctx).Where("event_ref = ?", ref).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *calendarEventRepo) Update(ctx context.Context, event *model.CalendarEvent) error {
	return r.db.WithContext(ctx).Save(event).Error
}

func (r *calendarEventRepo) Delete(ctx context.Context, ref string) error {
	return r.db.WithContext(ctx).Where("event_ref = ?", ref).Delete(&model.CalendarEvent{}).Error
}

func (r *calendarEventRepo) ListByUser(ctx context.Context, userID string) ([]model.CalendarEvent, error) {
	var list []model.CalendarEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_at ASC").
		Find(&list).Error
	return list, err
}
