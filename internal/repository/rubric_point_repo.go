package repository

import (
	"context"

	"gorm.io/gorm"

	"observation/backend/internal/model"
	"observation/backend/internal/ordering"
)

// RubricPointRepository 评分点数据访问接口
type RubricPointRepository interface {
	Create(ctx context.Context, point *model.RubricPoint) error
	GetByID(ctx context.Context, id string) (*model.RubricPoint, error)
	Update(ctx context.Context, point *model.RubricPoint) error
	Delete(ctx context.Context, id string) error
	// ListByActivity 按 list_order 升序返回
	ListByActivity(ctx context.Context, activityID string) ([]model.RubricPoint, error)
	// ListForUpdate 同 ListByActivity，PostgreSQL 下对结果行加写锁
	ListForUpdate(ctx context.Context, activityID string) ([]model.RubricPoint, error)
	ApplyOrder(ctx context.Context, changes []ordering.Change) error
}

type rubricPointRepo struct {
	db *gorm.DB
}

// NewRubricPointRepo 创建 RubricPointRepository 实例
func NewRubricPointRepo(db *gorm.DB) RubricPointRepository {
	return &rubricPointRepo{db: db}
}

func (r *rubricPointRepo) Create(ctx context.Context, point *model.RubricPoint) error {
	return r.db.WithContext(ctx).Create(point).Error
}

func (r *rubricPointRepo) GetByID(ctx context.Context, id string) (*model.RubricPoint, error) {
	var point model.RubricPoint
	err := r.db.WithContext(ctx).Where("point_id = ?", id).First(&point).Error
	if err != nil {
		return nil, err
	}
	return &point, nil
}

func (r *rubricPointRepo) Update(ctx context.Context, point *model.RubricPoint) error {
	// list_order 只由 ApplyOrder 维护
	return r.db.WithContext(ctx).
		Model(point).
		Select("title", "instructions", "instructions_format", "max_grade", "response_type", "evidence_max_size_bytes", "updated_at").
		Updates(point).Error
}

func (r *rubricPointRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("point_id = ?", id).Delete(&model.RubricPoint{}).Error
}

func (r *rubricPointRepo) ListByActivity(ctx context.Context, activityID string) ([]model.RubricPoint, error) {
	var points []model.RubricPoint
	err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("list_order ASC").
		Find(&points).Error
	return points, err
}

func (r *rubricPointRepo) ListForUpdate(ctx context.Context, activityID string) ([]model.RubricPoint, error) {
	var points []model.RubricPoint
	err := forUpdate(r.db.WithContext(ctx)).
		Where("activity_id = ?", activityID).
		Order("list_order ASC").
		Find(&points).Error
	return points, err
}

func (r *rubricPointRepo) ApplyOrder(ctx context.Context, changes []ordering.Change) error {
	for _, c := range changes {
		err := r.db.WithContext(ctx).
			Model(&model.RubricPoint{}).
			Where("point_id = ?", c.ID).
			Update("list_order", c.NewOrder).Error
		if err != nil {
			return err
		}
	}
	return nil
}
