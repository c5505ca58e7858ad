package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"observation/backend/internal/dto"
	"observation/backend/internal/model"
	"observation/backend/internal/repository"
	pkgerrors "observation/backend/pkg/errors"
	"observation/backend/pkg/gradebook"
	"observation/backend/pkg/metrics"
	"observation/backend/pkg/redis"
)

// SessionService 观察会话业务接口
//
// 状态流转：inprogress → complete | cancelled；complete 可再次 Finish 以重新同步成绩。
type SessionService interface {
	// Start 开始会话；同一三元组在防抖窗口内重复开始返回 ErrRateLimited
	Start(ctx context.Context, req *dto.StartSessionRequest) (*dto.SessionResponse, error)
	SubmitPointResponse(ctx context.Context, sessionID, pointID string, req *dto.SubmitResponseRequest) (*dto.ResponseEntry, error)
	GetIncompletePoints(ctx context.Context, sessionID string) ([]dto.RubricPointResponse, error)
	CalculateGrade(ctx context.Context, sessionID string) (*dto.GradeResult, error)
	// Finish 有未作答评分点时返回 Completed=false，不视为错误
	Finish(ctx context.Context, sessionID string) (*dto.FinishResult, error)
	Cancel(ctx context.Context, sessionID string) error
	SaveExtraComment(ctx context.Context, sessionID, text string) error

	Get(ctx context.Context, sessionID string) (*dto.SessionResponse, error)
	ListResponses(ctx context.Context, sessionID string) ([]dto.ResponseEntry, error)
	ListByActivity(ctx context.Context, activityID string) ([]dto.SessionResponse, error)
}

// sessionStartLockTTL 开始会话锁的兜底过期时间，正常路径在创建后立即释放
const sessionStartLockTTL = 10 * time.Second

type sessionService struct {
	repo    *repository.Repository
	rdb     *redis.Client
	sink    GradebookSink
	lockout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewSessionService 创建 SessionService 实例
// rdb 为 nil 时仅依赖数据库判断防抖窗口
func NewSessionService(
	repo *repository.Repository,
	rdb *redis.Client,
	sink GradebookSink,
	lockout time.Duration,
	logger *zap.Logger,
) SessionService {
	return &sessionService{
		repo:    repo,
		rdb:     rdb,
		sink:    sink,
		lockout: lockout,
		logger:  logger,
		now:     time.Now,
	}
}

// ════════════════════════════════════════════
// Start
// ════════════════════════════════════════════

func (s *sessionService) Start(ctx context.Context, req *dto.StartSessionRequest) (*dto.SessionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if _, err := loadActivity(ctx, s.repo, req.ActivityID); err != nil {
		if !isDomainError(err) {
			s.logger.Error("查询活动失败", zap.String("activity_id", req.ActivityID), zap.Error(err))
		}
		return nil, err
	}

	if s.lockout > 0 {
		// Redis 锁只串行化同一三元组的检查与创建，是否限流由数据库判断
		key := redis.SessionStartKey(req.ActivityID, req.ObserverID, req.ObserveeID)
		lock, err := s.rdb.TryLock(ctx, key, sessionStartLockTTL)
		switch {
		case err != nil:
			s.logger.Warn("会话开始锁不可用，仅使用数据库判断", zap.Error(err))
		case lock == nil:
			return nil, ErrRateLimited
		default:
			defer lock.Release(ctx)
		}
	}

	now := s.now()
	if s.lockout > 0 {
		latest, err := s.repo.Session.LatestInProgress(ctx, req.ActivityID, req.ObserverID, req.ObserveeID)
		if err != nil && !pkgerrors.IsNotFound(err) {
			s.logger.Error("查询进行中会话失败", zap.Error(err))
			return nil, err
		}
		// start_time 只精确到秒，窗口按 created_at 计算
		if latest != nil && now.Sub(latest.CreatedAt) < s.lockout {
			return nil, ErrRateLimited
		}
	}

	session := &model.Session{
		ActivityID: req.ActivityID,
		ObserverID: req.ObserverID,
		ObserveeID: req.ObserveeID,
		State:      model.SessionStateInProgress,
		StartTime:  now.Unix(),
	}
	session.CreatedAt = now
	session.UpdatedAt = now
	if err := s.repo.Session.Create(ctx, session); err != nil {
		s.logger.Error("创建会话失败",
			zap.String("activity_id", req.ActivityID),
			zap.String("observer_id", req.ObserverID),
			zap.String("observee_id", req.ObserveeID),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.SessionsTotal.WithLabelValues(model.SessionStateInProgress).Inc()
	return toSessionResponse(session), nil
}

// ════════════════════════════════════════════
// SubmitPointResponse
// ════════════════════════════════════════════

func (s *sessionService) SubmitPointResponse(ctx context.Context, sessionID, pointID string, req *dto.SubmitResponseRequest) (*dto.ResponseEntry, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == model.SessionStateCancelled {
		return nil, ErrSessionNotActive
	}

	// 满分以当前评分点为准
	point, err := s.repo.RubricPoint.GetByID(ctx, pointID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, ErrPointNotFound
		}
		s.logger.Error("查询评分点失败", zap.String("point_id", pointID), zap.Error(err))
		return nil, err
	}
	if point.ActivityID != session.ActivityID {
		return nil, ErrPointNotFound
	}

	if req.GradeGiven < 0 || req.GradeGiven > point.MaxGrade {
		return nil, ErrInvalidGrade
	}
	if strings.TrimSpace(req.ResponseValue) == "" {
		return nil, ErrMissingResponse
	}
	if point.ResponseType == model.ResponseTypePassFail &&
		req.ResponseValue != model.PassFailPass && req.ResponseValue != model.PassFailFail {
		return nil, &ValidationError{Field: "response_value", Reason: "只能为 Pass 或 Fail"}
	}

	now := s.now().Unix()
	resp := &model.PointResponse{
		PointID:       pointID,
		SessionID:     sessionID,
		GradeGiven:    req.GradeGiven,
		ResponseValue: req.ResponseValue,
		ExtraComment:  req.ExtraComment,
		TimeCreated:   now,
		TimeModified:  now,
	}
	if err := s.repo.PointResponse.Upsert(ctx, resp); err != nil {
		s.logger.Error("保存作答失败",
			zap.String("session_id", sessionID),
			zap.String("point_id", pointID),
			zap.Error(err),
		)
		return nil, err
	}

	saved, err := s.repo.PointResponse.Get(ctx, sessionID, pointID)
	if err != nil {
		s.logger.Error("读取作答失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return toResponseEntry(saved), nil
}

// ════════════════════════════════════════════
// 未作答评分点与成绩
// ════════════════════════════════════════════

func (s *sessionService) GetIncompletePoints(ctx context.Context, sessionID string) ([]dto.RubricPointResponse, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	missing, err := s.incompletePoints(ctx, session)
	if err != nil {
		s.logger.Error("查询未作答评分点失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.RubricPointResponse, 0, len(missing))
	for i := range missing {
		result = append(result, *toRubricPointResponse(&missing[i]))
	}
	return result, nil
}

func (s *sessionService) CalculateGrade(ctx context.Context, sessionID string) (*dto.GradeResult, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	grade, err := s.computeGrade(ctx, session)
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("计算成绩失败", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, err
	}
	return grade, nil
}

// ════════════════════════════════════════════
// Finish 结束会话并同步成绩册
// ════════════════════════════════════════════
//
// 先计算成绩（数据不一致时阻止结束），再在同一事务内写入完成状态并同步成绩册；
// 成绩册写入失败时状态回滚。

func (s *sessionService) Finish(ctx context.Context, sessionID string) (*dto.FinishResult, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == model.SessionStateCancelled {
		return nil, ErrSessionNotActive
	}

	missing, err := s.incompletePoints(ctx, session)
	if err != nil {
		s.logger.Error("查询未作答评分点失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	if len(missing) > 0 {
		titles := make([]string, 0, len(missing))
		for _, p := range missing {
			titles = append(titles, p.Title)
		}
		return &dto.FinishResult{Completed: false, MissingCount: len(missing), MissingTitles: titles}, nil
	}

	grade, err := s.computeGrade(ctx, session)
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("计算成绩失败", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, err
	}

	activity, err := loadActivity(ctx, s.repo, session.ActivityID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		finish := now.Unix()
		ok, err := tx.Session.Transition(ctx, sessionID,
			[]string{model.SessionStateInProgress, model.SessionStateComplete}, model.SessionStateComplete, finish)
		if err != nil {
			return err
		}
		if !ok {
			// 读取之后被并发取消
			return ErrSessionNotActive
		}
		// 评语可能在读取后被修改，以最新值同步
		current, err := tx.Session.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		session = current

		if s.sink == nil {
			return nil
		}
		err = s.sink.SyncGrade(ctx, gradebook.Grade{
			ActivityID:   activity.ActivityID,
			GradebookRef: activity.GradebookRef,
			UserID:       session.ObserveeID,
			RaterID:      session.ObserverID,
			Total:        grade.Total,
			Max:          grade.Max,
			Comment:      session.ExtraComment,
			GradedAt:     now,
		})
		if err != nil {
			metrics.GradebookSyncFailures.Inc()
			return fmt.Errorf("%w: %v", ErrGradebookSyncFailed, err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrStateConflict) {
			s.logger.Error("结束会话失败", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, err
	}

	metrics.SessionsTotal.WithLabelValues(model.SessionStateComplete).Inc()
	if grade.Max > 0 {
		metrics.GradeRatio.Observe(float64(grade.Total) / float64(grade.Max))
	}

	s.logger.Info("会话已完成",
		zap.String("session_id", sessionID),
		zap.Int("total", grade.Total),
		zap.Int("max", grade.Max),
	)
	return &dto.FinishResult{Completed: true, Grade: grade}, nil
}

// ════════════════════════════════════════════
// Cancel / SaveExtraComment
// ════════════════════════════════════════════

func (s *sessionService) Cancel(ctx context.Context, sessionID string) error {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}

	switch session.State {
	case model.SessionStateCancelled:
		return nil
	case model.SessionStateComplete:
		return ErrSessionNotActive
	}

	ok, err := s.repo.Session.Transition(ctx, sessionID,
		[]string{model.SessionStateInProgress}, model.SessionStateCancelled, s.now().Unix())
	if err != nil {
		s.logger.Error("取消会话失败", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}
	if !ok {
		// 读取之后状态已变化，以当前状态为准
		current, err := s.loadSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if current.State == model.SessionStateCancelled {
			return nil
		}
		return ErrSessionNotActive
	}

	metrics.SessionsTotal.WithLabelValues(model.SessionStateCancelled).Inc()
	return nil
}

func (s *sessionService) SaveExtraComment(ctx context.Context, sessionID, text string) error {
	ok, err := s.repo.Session.UpdateExtraComment(ctx, sessionID, text)
	if err != nil {
		s.logger.Error("保存会话评语失败", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// ════════════════════════════════════════════
// 查询
// ════════════════════════════════════════════

func (s *sessionService) Get(ctx context.Context, sessionID string) (*dto.SessionResponse, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(session), nil
}

func (s *sessionService) ListResponses(ctx context.Context, sessionID string) ([]dto.ResponseEntry, error) {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}

	list, err := s.repo.PointResponse.ListBySession(ctx, sessionID)
	if err != nil {
		s.logger.Error("列出作答失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.ResponseEntry, 0, len(list))
	for i := range list {
		result = append(result, *toResponseEntry(&list[i]))
	}
	return result, nil
}

func (s *sessionService) ListByActivity(ctx context.Context, activityID string) ([]dto.SessionResponse, error) {
	list, err := s.repo.Session.ListByActivity(ctx, activityID)
	if err != nil {
		s.logger.Error("列出会话失败", zap.String("activity_id", activityID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.SessionResponse, 0, len(list))
	for i := range list {
		result = append(result, *toSessionResponse(&list[i]))
	}
	return result, nil
}

// ── 内部辅助方法 ──

func (s *sessionService) loadSession(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.repo.Session.GetByID(ctx, sessionID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		s.logger.Error("查询会话失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return session, nil
}

// incompletePoints 活动当前评分点中尚无作答的部分，按 list_order 排列
func (s *sessionService) incompletePoints(ctx context.Context, session *model.Session) ([]model.RubricPoint, error) {
	points, err := s.repo.RubricPoint.ListByActivity(ctx, session.ActivityID)
	if err != nil {
		return nil, err
	}
	responses, err := s.repo.PointResponse.ListBySession(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}

	answered := make(map[string]struct{}, len(responses))
	for _, r := range responses {
		answered[r.PointID] = struct{}{}
	}

	var missing []model.RubricPoint
	for _, p := range points {
		if _, ok := answered[p.PointID]; !ok {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// computeGrade total 只统计当前仍存在的评分点，max 为全部当前评分点满分之和
func (s *sessionService) computeGrade(ctx context.Context, session *model.Session) (*dto.GradeResult, error) {
	points, err := s.repo.RubricPoint.ListByActivity(ctx, session.ActivityID)
	if err != nil {
		return nil, err
	}
	responses, err := s.repo.PointResponse.ListBySession(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}

	return sumGrade(points, responses)
}

// sumGrade 作答中已被删除的评分点不计分；任一分数超过当前满分返回 ErrGradeExceedsMax
func sumGrade(points []model.RubricPoint, responses []model.PointResponse) (*dto.GradeResult, error) {
	maxByPoint := make(map[string]int, len(points))
	result := &dto.GradeResult{}
	for _, p := range points {
		maxByPoint[p.PointID] = p.MaxGrade
		result.Max += p.MaxGrade
	}

	for _, r := range responses {
		limit, ok := maxByPoint[r.PointID]
		if !ok {
			continue
		}
		if r.GradeGiven > limit {
			return nil, ErrGradeExceedsMax
		}
		result.Total += r.GradeGiven
	}
	return result, nil
}

func toSessionResponse(s *model.Session) *dto.SessionResponse {
	return &dto.SessionResponse{
		ID:           s.SessionID,
		ActivityID:   s.ActivityID,
		ObserverID:   s.ObserverID,
		ObserveeID:   s.ObserveeID,
		State:        s.State,
		StartTime:    s.StartTime,
		FinishTime:   s.FinishTime,
		ExtraComment: s.ExtraComment,
	}
}

func toResponseEntry(r *model.PointResponse) *dto.ResponseEntry {
	return &dto.ResponseEntry{
		ID:            r.ResponseID,
		PointID:       r.PointID,
		SessionID:     r.SessionID,
		GradeGiven:    r.GradeGiven,
		ResponseValue: r.ResponseValue,
		ExtraComment:  r.ExtraComment,
		TimeCreated:   r.TimeCreated,
		TimeModified:  r.TimeModified,
	}
}
