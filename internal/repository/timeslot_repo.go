package repository

import (
	"context"

	"gorm.io/gorm"

	"observation/backend/internal/model"
)

// TimeslotRepository 时间段数据访问接口
type TimeslotRepository interface {
	Create(ctx context.Context, slot *model.Timeslot) error
	CreateBatch(ctx context.Context, slots []model.Timeslot) error
	GetByID(ctx context.Context, id string) (*model.Timeslot, error)
	Update(ctx context.Context, slot *model.Timeslot) error
	// Delete 删除时间段及其提醒
	Delete(ctx context.Context, id string) error
	ListByActivity(ctx context.Context, activityID string) ([]model.Timeslot, error)
	ListEmpty(ctx context.Context, activityID string) ([]model.Timeslot, error)
	// ListInRange 返回 start_time ∈ [from, to) 的时间段
	ListInRange(ctx context.Context, activityID string, from, to int64) ([]model.Timeslot, error)
	GetByObservee(ctx context.Context, activityID, userID string) (*model.Timeslot, error)
	ListObservees(ctx context.Context, activityID string) ([]string, error)
	// AssignObservee 条件更新：仅当时间段空闲时写入，返回是否命中
	// 同一活动重复报名时返回 gorm.ErrDuplicatedKey
	AssignObservee(ctx context.Context, slotID, userID string) (bool, error)
	// ClearObservee 清空被观察者及其日历事件引用
	ClearObservee(ctx context.Context, slotID string) error
	UpdateEventRefs(ctx context.Context, slotID string, observerRef, observeeRef *string) error
}

type timeslotRepo struct {
	db *gorm.DB
}

// NewTimeslotRepo 创建 TimeslotRepository 实例
func NewTimeslotRepo(db *gorm.DB) TimeslotRepository {
	return &timeslotRepo{db: db}
}

func (r *timeslotRepo) Create(ctx context.Context, slot *model.Timeslot) error {
	return r.db.WithContext(ctx).Create(slot).Error
}

func (r *timeslotRepo) CreateBatch(ctx context.Context, slots []model.Timeslot) error {
	if len(slots) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&slots, 200).Error
}

func (r *timeslotRepo) GetByID(ctx context.Context, id string) (*model.Timeslot, error) {
	var slot model.Timeslot
	err := r.db.WithContext(ctx).Where("timeslot_id = ?", id).First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *timeslotRepo) Update(ctx context.Context, slot *model.Timeslot) error {
	return r.db.WithContext(ctx).Save(slot).Error
}

func (r *timeslotRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("timeslot_id = ?", id).Delete(&model.TimeslotNotification{}).Error; err != nil {
			return err
		}
		return tx.Where("timeslot_id = ?", id).Delete(&model.Timeslot{}).Error
	})
}

func (r *timeslotRepo) ListByActivity(ctx context.Context, activityID string) ([]model.Timeslot, error) {
	var slots []model.Timeslot
	err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("start_time ASC, timeslot_id ASC").
		Find(&slots).Error
	return slots, err
}

func (r *timeslotRepo) ListEmpty(ctx context.Context, activityID string) ([]model.Timeslot, error) {
	var slots []model.Timeslot
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND observee_id IS NULL", activityID).
		Order("start_time ASC, timeslot_id ASC").
		Find(&slots).Error
	return slots, err
}

func (r *timeslotRepo) ListInRange(ctx context.Context, activityID string, from, to int64) ([]model.Timeslot, error) {
	var slots []model.Timeslot
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND start_time >= ? AND start_time < ?", activityID, from, to).
		Order("start_time ASC, timeslot_id ASC").
		Find(&slots).Error
	return slots, err
}

func (r *timeslotRepo) GetByObservee(ctx context.Context, activityID, userID string) (*model.Timeslot, error) {
	var slot model.Timeslot
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND observee_id = ?", activityID, userID).
		First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *timeslotRepo) ListObservees(ctx context.Context, activityID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Timeslot{}).
		Where("activity_id = ? AND observee_id IS NOT NULL", activityID).
		Pluck("observee_id", &ids).Error
	return ids, err
}

func (r *timeslotRepo) AssignObservee(ctx context.Context, slotID, userID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Timeslot{}).
		Where("timeslot_id = ? AND observee_id IS NULL", slotID).
		Update("observee_id", userID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *timeslotRepo) ClearObservee(ctx context.Context, slotID string) error {
	return r.db.WithContext(ctx).
		Model(&model.Timeslot{}).
		Where("timeslot_id = ?", slotID).
		Updates(map[string]interface{}{
			"observee_id":        nil,
			"observee_event_ref": nil,
		}).Error
}

func (r *timeslotRepo) UpdateEventRefs(ctx context.Context, slotID string, observerRef, observeeRef *string) error {
	return r.db.WithContext(ctx).
		Model(&model.Timeslot{}).
		Where("timeslot_id = ?", slotID).
		Updates(map[string]interface{}{
			"observer_event_ref": observerRef,
			"observee_event_ref": observeeRef,
		}).Error
}
