package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"observation/backend/internal/model"
)

// ActivityRepository 观察活动数据访问接口
type ActivityRepository interface {
	Create(ctx context.Context, activity *model.Activity) error
	GetByID(ctx context.Context, id string) (*model.Activity, error)
	// LockByID 同 GetByID，PostgreSQL 下对活动行加写锁，用于串行化同一活动的评分点排序
	LockByID(ctx context.Context, id string) (*model.Activity, error)
	Update(ctx context.Context, activity *model.Activity) error
}

type activityRepo struct {
	db *gorm.DB
}

// NewActivityRepo 创建 ActivityRepository 实例
func NewActivityRepo(db *gorm.DB) ActivityRepository {
	return &activityRepo{db: db}
}

func (r *activityRepo) Create(ctx context.Context, activity *model.Activity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *activityRepo) GetByID(ctx context.Context, id string) (*model.Activity, error) {
	var activity model.Activity
	err := r.db.WithContext(ctx).Where("activity_id = ?", id).First(&activity).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *activityRepo) LockByID(ctx context.Context, id string) (*model.Activity, error) {
	var activity model.Activity
	err := forUpdate(r.db.WithContext(ctx)).Where("activity_id = ?", id).First(&activity).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *activityRepo) Update(ctx context.Context, activity *model.Activity) error {
	return r.db.WithContext(ctx).Save(activity).Error
}

// ParticipantRepository 活动参与者数据访问接口
type ParticipantRepository interface {
	Upsert(ctx context.Context, p *model.Participant) error
	Get(ctx context.Context, activityID, userID string) (*model.Participant, error)
	List(ctx context.Context, activityID string) ([]model.Participant, error)
	ListObservers(ctx context.Context, activityID string) ([]model.Participant, error)
}

type participantRepo struct {
	db *gorm.DB
}

// NewParticipantRepo 创建 ParticipantRepository 实例
func NewParticipantRepo(db *gorm.DB) ParticipantRepository {
	return &participantRepo{db: db}
}

func (r *participantRepo) Upsert(ctx context.Context, p *model.Participant) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "activity_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "email", "telegram_chat_id", "can_observe", "updated_at"}),
		}).
		Create(p).Error
}

func (r *participantRepo) Get(ctx context.Context, activityID, userID string) (*model.Participant, error) {
	var p model.Participant
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND user_id = ?", activityID, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *participantRepo) List(ctx context.Context, activityID string) ([]model.Participant, error) {
	var list []model.Participant
	err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("user_id ASC").
		Find(&list).Error
	return list, err
}

func (r *participantRepo) ListObservers(ctx context.Context, activityID string) ([]model.Participant, error) {
	var list []model.Participant
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND can_observe = ?", activityID, true).
		Order("user_id ASC").
		Find(&list).Error
	return list, err
}
