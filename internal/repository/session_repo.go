package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"observation/backend/internal/model"
)

// SessionRepository 观察会话数据访问接口
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	// Transition 仅当当前状态属于 from 时切换到 to，返回是否命中
	Transition(ctx context.Context, id string, from []string, to string, finishTime int64) (bool, error)
	// UpdateExtraComment 只更新评语列，不触碰状态
	UpdateExtraComment(ctx context.Context, id, text string) (bool, error)
	// LatestInProgress 返回三元组下最近开始的进行中会话
	LatestInProgress(ctx context.Context, activityID, observerID, observeeID string) (*model.Session, error)
	ListByActivity(ctx context.Context, activityID string) ([]model.Session, error)
}

type sessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo 创建 SessionRepository 实例
func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Where("session_id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Transition(ctx context.Context, id string, from []string, to string, finishTime int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("session_id = ? AND state IN ?", id, from).
		Updates(map[string]interface{}{
			"state":       to,
			"finish_time": finishTime,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *sessionRepo) UpdateExtraComment(ctx context.Context, id, text string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("session_id = ?", id).
		Update("extra_comment", text)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *sessionRepo) LatestInProgress(ctx context.Context, activityID, observerID, observeeID string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND observer_id = ? AND observee_id = ? AND state = ?",
			activityID, observerID, observeeID, model.SessionStateInProgress).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) ListByActivity(ctx context.Context, activityID string) ([]model.Session, error) {
	var list []model.Session
	err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("start_time ASC").
		Find(&list).Error
	return list, err
}

// PointResponseRepository 评分点作答数据访问接口
type PointResponseRepository interface {
	// Upsert 按 (point_id, session_id) 插入或更新；更新时保留 time_created
	Upsert(ctx context.Context, resp *model.PointResponse) error
	Get(ctx context.Context, sessionID, pointID string) (*model.PointResponse, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.PointResponse, error)
}

type pointResponseRepo struct {
	db *gorm.DB
}

// NewPointResponseRepo 创建 PointResponseRepository 实例
func NewPointResponseRepo(db *gorm.DB) PointResponseRepository {
	return &pointResponseRepo{db: db}
}

func (r *pointResponseRepo) Upsert(ctx context.Context, resp *model.PointResponse) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "point_id"}, {Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"grade_given", "response_value", "extra_comment", "time_modified"}),
		}).
		Create(resp).Error
}

func (r *pointResponseRepo) Get(ctx context.Context, sessionID, pointID string) (*model.PointResponse, error) {
	var resp model.PointResponse
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND point_id = ?", sessionID, pointID).
		First(&resp).Error
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *pointResponseRepo) ListBySession(ctx context.Context, sessionID string) ([]model.PointResponse, error) {
	var list []model.PointResponse
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&list).Error
	return list, err
}
