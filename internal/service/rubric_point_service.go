package service

import (
	"context"

	"go.uber.org/zap"

	"observation/backend/internal/dto"
	"observation/backend/internal/model"
	"observation/backend/internal/ordering"
	"observation/backend/internal/repository"
	pkgerrors "observation/backend/pkg/errors"
)

const bytesPerMB = 1024 * 1024

// RubricPointService 评分点业务接口
// 同一活动内 list_order 始终保持 1..N 稠密
type RubricPointService interface {
	Create(ctx context.Context, activityID string, req *dto.CreatePointRequest) (*dto.RubricPointResponse, error)
	Get(ctx context.Context, pointID string) (*dto.RubricPointResponse, error)
	List(ctx context.Context, activityID string) ([]dto.RubricPointResponse, error)
	Update(ctx context.Context, pointID string, req *dto.UpdatePointRequest) (*dto.RubricPointResponse, error)
	Delete(ctx context.Context, activityID, pointID string) error
	// Reorder 移动 direction 位，越界时不做修改
	Reorder(ctx context.Context, activityID, pointID string, direction int) error
}

type rubricPointService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewRubricPointService 创建 RubricPointService 实例
func NewRubricPointService(repo *repository.Repository, logger *zap.Logger) RubricPointService {
	return &rubricPointService{repo: repo, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *rubricPointService) Create(ctx context.Context, activityID string, req *dto.CreatePointRequest) (*dto.RubricPointResponse, error) {
	evidenceBytes, err := checkPointRequest(req.ResponseType, req.EvidenceMaxSizeMB, req)
	if err != nil {
		return nil, err
	}

	point := &model.RubricPoint{
		ActivityID:           activityID,
		Title:                req.Title,
		Instructions:         req.Instructions,
		InstructionsFormat:   req.InstructionsFormat,
		MaxGrade:             req.MaxGrade,
		ResponseType:         req.ResponseType,
		EvidenceMaxSizeBytes: evidenceBytes,
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := lockActivity(ctx, tx, activityID, ErrActivityNotFound); err != nil {
			return err
		}

		points, err := tx.RubricPoint.ListForUpdate(ctx, activityID)
		if err != nil {
			return err
		}
		orders := make([]int, len(points))
		for i, p := range points {
			orders[i] = p.ListOrder
		}
		point.ListOrder = ordering.NextOrder(orders)

		return tx.RubricPoint.Create(ctx, point)
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("创建评分点失败", zap.String("activity_id", activityID), zap.Error(err))
		}
		return nil, err
	}

	return toRubricPointResponse(point), nil
}

// ────────────────────── Get / List ──────────────────────

func (s *rubricPointService) Get(ctx context.Context, pointID string) (*dto.RubricPointResponse, error) {
	point, err := s.repo.RubricPoint.GetByID(ctx, pointID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, ErrPointNotFound
		}
		s.logger.Error("查询评分点失败", zap.String("point_id", pointID), zap.Error(err))
		return nil, err
	}
	return toRubricPointResponse(point), nil
}

func (s *rubricPointService) List(ctx context.Context, activityID string) ([]dto.RubricPointResponse, error) {
	points, err := s.repo.RubricPoint.ListByActivity(ctx, activityID)
	if err != nil {
		s.logger.Error("列出评分点失败", zap.String("activity_id", activityID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.RubricPointResponse, 0, len(points))
	for i := range points {
		result = append(result, *toRubricPointResponse(&points[i]))
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

func (s *rubricPointService) Update(ctx context.Context, pointID string, req *dto.UpdatePointRequest) (*dto.RubricPointResponse, error) {
	evidenceBytes, err := checkPointRequest(req.ResponseType, req.EvidenceMaxSizeMB, req)
	if err != nil {
		return nil, err
	}

	point, err := s.repo.RubricPoint.GetByID(ctx, pointID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, ErrPointNotFound
		}
		s.logger.Error("查询评分点失败", zap.String("point_id", pointID), zap.Error(err))
		return nil, err
	}

	point.Title = req.Title
	point.Instructions = req.Instructions
	point.InstructionsFormat = req.InstructionsFormat
	point.MaxGrade = req.MaxGrade
	point.ResponseType = req.ResponseType
	point.EvidenceMaxSizeBytes = evidenceBytes

	if err := s.repo.RubricPoint.Update(ctx, point); err != nil {
		s.logger.Error("更新评分点失败", zap.String("point_id", pointID), zap.Error(err))
		return nil, err
	}
	return toRubricPointResponse(point), nil
}

// ────────────────────── Delete ──────────────────────

func (s *rubricPointService) Delete(ctx context.Context, activityID, pointID string) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := lockActivity(ctx, tx, activityID, ErrPointNotFound); err != nil {
			return err
		}
		points, err := tx.RubricPoint.ListForUpdate(ctx, activityID)
		if err != nil {
			return err
		}

		changes, ok := ordering.Delete(toOrderItems(points), pointID)
		if !ok {
			return ErrPointNotFound
		}
		if err := tx.RubricPoint.Delete(ctx, pointID); err != nil {
			return err
		}
		return tx.RubricPoint.ApplyOrder(ctx, changes)
	})
	if err != nil && !isDomainError(err) {
		s.logger.Error("删除评分点失败", zap.String("point_id", pointID), zap.Error(err))
	}
	return err
}

// ────────────────────── Reorder ──────────────────────

func (s *rubricPointService) Reorder(ctx context.Context, activityID, pointID string, direction int) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := lockActivity(ctx, tx, activityID, ErrPointNotFound); err != nil {
			return err
		}
		points, err := tx.RubricPoint.ListForUpdate(ctx, activityID)
		if err != nil {
			return err
		}

		changes, ok := ordering.Move(toOrderItems(points), pointID, direction)
		if !ok {
			return ErrPointNotFound
		}
		return tx.RubricPoint.ApplyOrder(ctx, changes)
	})
	if err != nil && !isDomainError(err) {
		s.logger.Error("调整评分点顺序失败", zap.String("point_id", pointID), zap.Error(err))
	}
	return err
}

// ── 内部辅助方法 ──

// lockActivity 锁定活动行，串行化同一活动的评分点增删与排序
func lockActivity(ctx context.Context, tx *repository.Repository, activityID string, notFound error) error {
	if _, err := tx.Activity.LockByID(ctx, activityID); err != nil {
		if pkgerrors.IsNotFound(err) {
			return notFound
		}
		return err
	}
	return nil
}

// checkPointRequest 校验请求并换算证据大小上限（MB → 字节）
func checkPointRequest(responseType string, evidenceMB *int, req interface{}) (*int64, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if responseType != model.ResponseTypeEvidence {
		return nil, nil
	}
	if evidenceMB == nil {
		return nil, &ValidationError{Field: "evidence_max_size_mb", Reason: "证据类型必须设置大小上限"}
	}
	bytes := int64(*evidenceMB) * bytesPerMB
	return &bytes, nil
}

func toOrderItems(points []model.RubricPoint) []ordering.Item {
	items := make([]ordering.Item, len(points))
	for i, p := range points {
		items[i] = ordering.Item{ID: p.PointID, Order: p.ListOrder}
	}
	return items
}

func toRubricPointResponse(p *model.RubricPoint) *dto.RubricPointResponse {
	return &dto.RubricPointResponse{
		ID:                   p.PointID,
		ActivityID:           p.ActivityID,
		Title:                p.Title,
		Instructions:         p.Instructions,
		InstructionsFormat:   p.InstructionsFormat,
		MaxGrade:             p.MaxGrade,
		ResponseType:         p.ResponseType,
		EvidenceMaxSizeBytes: p.EvidenceMaxSizeBytes,
		ListOrder:            p.ListOrder,
	}
}
