package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"observation/backend/internal/dto"
	"observation/backend/internal/model"
	"observation/backend/internal/repository"
	pkgerrors "observation/backend/pkg/errors"
	"observation/backend/pkg/metrics"
	"observation/backend/pkg/notify"
)

// TimeslotService 时间段业务接口
//
// 设计说明：
//   - 报名依赖存储层条件更新 + 部分唯一索引，同一时间段只有一个报名者成功
//   - 创建/更新时日历同步失败会回滚；报名、取消、删除时日历同步尽力而为
//   - 通知在事务提交后发送，失败只记录日志
type TimeslotService interface {
	Create(ctx context.Context, req *dto.CreateTimeslotRequest, callerID string) (*dto.TimeslotResponse, error)
	Update(ctx context.Context, slotID string, req *dto.UpdateTimeslotRequest, callerID string) (*dto.TimeslotResponse, error)
	GenerateByInterval(ctx context.Context, req *dto.GenerateTimeslotsRequest, callerID string) ([]dto.TimeslotResponse, error)
	Signup(ctx context.Context, req *dto.SignupRequest) (*dto.TimeslotResponse, error)
	Unenrol(ctx context.Context, activityID, slotID, userID string) error
	RemoveObservee(ctx context.Context, activityID, slotID, actingUserID string) error
	Delete(ctx context.Context, activityID, slotID, actingUserID string) error

	GetByID(ctx context.Context, slotID string) (*dto.TimeslotResponse, error)
	List(ctx context.Context, activityID string) ([]dto.TimeslotResponse, error)
	GetEmpty(ctx context.Context, activityID string) ([]dto.TimeslotResponse, error)
	// GetRegisteredSlot 用户未报名时返回 nil, nil
	GetRegisteredSlot(ctx context.Context, activityID, userID string) (*dto.TimeslotResponse, error)
	// GetForCalendar 返回指定年月（按配置时区）开始的时间段
	GetForCalendar(ctx context.Context, activityID string, month, year int) ([]dto.TimeslotResponse, error)
}

// DefaultMaxGeneratedSlots 按间隔生成的默认数量上限
const DefaultMaxGeneratedSlots = 1000

type timeslotService struct {
	repo         *repository.Repository
	calendar     CalendarSync
	msg          *messenger
	loc          *time.Location
	maxGenerated int64
	logger       *zap.Logger
}

// TimeslotOption 可选参数
type TimeslotOption func(*timeslotService)

// WithMaxGeneratedSlots 设置单次批量生成的数量上限，n < 1 时忽略
func WithMaxGeneratedSlots(n int) TimeslotOption {
	return func(s *timeslotService) {
		if n > 0 {
			s.maxGenerated = int64(n)
		}
	}
}

// NewTimeslotService 创建 TimeslotService 实例
func NewTimeslotService(
	repo *repository.Repository,
	calendar CalendarSync,
	notifier Notifier,
	directory EnrollmentDirectory,
	loc *time.Location,
	logger *zap.Logger,
	opts ...TimeslotOption,
) TimeslotService {
	if loc == nil {
		loc = time.UTC
	}
	s := &timeslotService{
		repo:         repo,
		calendar:     calendar,
		msg:          &messenger{notifier: notifier, directory: directory, loc: loc, logger: logger},
		loc:          loc,
		maxGenerated: DefaultMaxGeneratedSlots,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ════════════════════════════════════════════
// Create / Update
// ════════════════════════════════════════════

func (s *timeslotService) Create(ctx context.Context, req *dto.CreateTimeslotRequest, callerID string) (*dto.TimeslotResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	slot := &model.Timeslot{
		ActivityID:      req.ActivityID,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		ObserverID:      req.ObserverID,
		ObserveeID:      nonEmpty(req.ObserveeID),
	}

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		activity, err := loadActivity(ctx, tx, req.ActivityID)
		if err != nil {
			return err
		}
		if err := tx.Timeslot.Create(ctx, slot); err != nil {
			if pkgerrors.IsDuplicate(err) {
				return ErrAlreadyRegistered
			}
			return err
		}
		return s.syncEvents(ctx, tx, activity, slot)
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("创建时间段失败",
				zap.String("activity_id", req.ActivityID),
				zap.String("caller_id", callerID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.logger.Info("时间段已创建",
		zap.String("timeslot_id", slot.TimeslotID),
		zap.String("caller_id", callerID),
	)
	return toTimeslotResponse(slot), nil
}

func (s *timeslotService) Update(ctx context.Context, slotID string, req *dto.UpdateTimeslotRequest, callerID string) (*dto.TimeslotResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var slot *model.Timeslot
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		slot, err = loadTimeslot(ctx, tx, slotID)
		if err != nil {
			return err
		}
		activity, err := loadActivity(ctx, tx, slot.ActivityID)
		if err != nil {
			return err
		}

		// 被观察者被移除时旧事件同时失效
		newObservee := nonEmpty(req.ObserveeID)
		if slot.ObserveeID != nil && (newObservee == nil || *newObservee != *slot.ObserveeID) {
			// 提醒按时间段归属查找，须在改写被观察者之前删除
			if err := tx.Notification.DeleteByUser(ctx, slot.ActivityID, *slot.ObserveeID); err != nil {
				return err
			}
		}
		if slot.ObserveeEventRef != nil && newObservee == nil {
			s.deleteEventBestEffort(ctx, tx, *slot.ObserveeEventRef)
			slot.ObserveeEventRef = nil
		}

		slot.StartTime = req.StartTime
		slot.DurationMinutes = req.DurationMinutes
		slot.ObserverID = req.ObserverID
		slot.ObserveeID = newObservee

		if err := tx.Timeslot.Update(ctx, slot); err != nil {
			if pkgerrors.IsDuplicate(err) {
				return ErrAlreadyRegistered
			}
			return err
		}
		return s.syncEvents(ctx, tx, activity, slot)
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("更新时间段失败",
				zap.String("timeslot_id", slotID),
				zap.String("caller_id", callerID),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return toTimeslotResponse(slot), nil
}

// ════════════════════════════════════════════
// GenerateByInterval 按固定间隔批量生成
// ════════════════════════════════════════════
//
// 生成 start, start+step, ... 直到 < end，共 ceil((end-start)/step) 个。
// 步长溢出或数量超过上限时拒绝。
// 全部时间段在一个事务内写入，任一失败则全部回滚。

func (s *timeslotService) GenerateByInterval(ctx context.Context, req *dto.GenerateTimeslotsRequest, callerID string) ([]dto.TimeslotResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	count, err := s.generatedCount(req)
	if err != nil {
		return nil, err
	}

	step := req.IntervalAmount * req.IntervalMultiplier
	slots := make([]model.Timeslot, 0, count)
	for i := int64(0); i < count; i++ {
		slots = append(slots, model.Timeslot{
			ActivityID:      req.ActivityID,
			StartTime:       req.StartTime + i*step,
			DurationMinutes: req.DurationMinutes,
			ObserverID:      req.ObserverID,
		})
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		activity, err := loadActivity(ctx, tx, req.ActivityID)
		if err != nil {
			return err
		}
		if err := tx.Timeslot.CreateBatch(ctx, slots); err != nil {
			return err
		}
		for i := range slots {
			if err := s.syncEvents(ctx, tx, activity, &slots[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("批量生成时间段失败",
				zap.String("activity_id", req.ActivityID),
				zap.String("caller_id", callerID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.logger.Info("批量生成时间段完成",
		zap.String("activity_id", req.ActivityID),
		zap.Int("count", len(slots)),
		zap.String("caller_id", callerID),
	)

	result := make([]dto.TimeslotResponse, 0, len(slots))
	for i := range slots {
		result = append(result, *toTimeslotResponse(&slots[i]))
	}
	return result, nil
}

// generatedCount 计算生成数量，StartTime >= 0 且 EndTime >= StartTime 已由校验保证
func (s *timeslotService) generatedCount(req *dto.GenerateTimeslotsRequest) (int64, error) {
	if req.IntervalAmount > math.MaxInt64/req.IntervalMultiplier {
		return 0, &ValidationError{Field: "interval_multiplier", Reason: "间隔过大"}
	}
	step := req.IntervalAmount * req.IntervalMultiplier

	span := req.EndTime - req.StartTime
	count := span / step
	if span%step != 0 {
		count++
	}
	if count > s.maxGenerated {
		return 0, &ValidationError{
			Field:  "end_time",
			Reason: fmt.Sprintf("最多生成 %d 个时间段", s.maxGenerated),
		}
	}
	return count, nil
}

// ════════════════════════════════════════════
// Signup / Unenrol / RemoveObservee
// ════════════════════════════════════════════

func (s *timeslotService) Signup(ctx context.Context, req *dto.SignupRequest) (*dto.TimeslotResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var (
		activity *model.Activity
		slot     *model.Timeslot
	)
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if activity, err = loadActivity(ctx, tx, req.ActivityID); err != nil {
			return err
		}
		if slot, err = loadTimeslot(ctx, tx, req.TimeslotID); err != nil {
			return err
		}
		if slot.ActivityID != req.ActivityID {
			return ErrTimeslotNotFound
		}

		if err := signupInTx(ctx, tx, slot, req.UserID); err != nil {
			return err
		}
		s.createObserveeEventBestEffort(ctx, tx, activity, slot)
		return nil
	})
	metrics.SignupsTotal.WithLabelValues("self", signupOutcome(err)).Inc()
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("报名时间段失败",
				zap.String("timeslot_id", req.TimeslotID),
				zap.String("user_id", req.UserID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.msg.sendLogged(ctx, notify.KindSignup, activity, slot, req.UserID)
	return toTimeslotResponse(slot), nil
}

func (s *timeslotService) Unenrol(ctx context.Context, activityID, slotID, userID string) error {
	var (
		activity *model.Activity
		slot     *model.Timeslot
	)
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if activity, err = loadActivity(ctx, tx, activityID); err != nil {
			return err
		}
		if !activity.StudentsSelfUnregister {
			return ErrUnenrolNotAllowed
		}
		if slot, err = loadTimeslot(ctx, tx, slotID); err != nil {
			return err
		}
		if slot.ActivityID != activityID || !slot.Occupied() || *slot.ObserveeID != userID {
			return ErrNotRegistered
		}
		return s.releaseInTx(ctx, tx, slot)
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("取消报名失败",
				zap.String("timeslot_id", slotID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		return err
	}

	s.msg.sendLogged(ctx, notify.KindCancellation, activity, slot, userID)
	return nil
}

func (s *timeslotService) RemoveObservee(ctx context.Context, activityID, slotID, actingUserID string) error {
	var (
		activity *model.Activity
		slot     *model.Timeslot
		observee string
	)
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if activity, err = loadActivity(ctx, tx, activityID); err != nil {
			return err
		}
		if slot, err = loadTimeslot(ctx, tx, slotID); err != nil {
			return err
		}
		if slot.ActivityID != activityID || !slot.Occupied() {
			return ErrNotRegistered
		}
		observee = *slot.ObserveeID
		return s.releaseInTx(ctx, tx, slot)
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("移除被观察者失败",
				zap.String("timeslot_id", slotID),
				zap.String("acting_user_id", actingUserID),
				zap.Error(err),
			)
		}
		return err
	}

	s.logger.Info("被观察者已移除",
		zap.String("timeslot_id", slotID),
		zap.String("observee_id", observee),
		zap.String("acting_user_id", actingUserID),
	)
	s.msg.sendLogged(ctx, notify.KindCancellation, activity, slot, observee)
	return nil
}

// ════════════════════════════════════════════
// Delete
// ════════════════════════════════════════════

func (s *timeslotService) Delete(ctx context.Context, activityID, slotID, actingUserID string) error {
	var (
		activity *model.Activity
		slot     *model.Timeslot
	)
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if activity, err = loadActivity(ctx, tx, activityID); err != nil {
			return err
		}
		if slot, err = loadTimeslot(ctx, tx, slotID); err != nil {
			return err
		}
		if slot.ActivityID != activityID {
			return ErrTimeslotNotFound
		}

		for _, ref := range []*string{slot.ObserverEventRef, slot.ObserveeEventRef} {
			if ref != nil {
				s.deleteEventBestEffort(ctx, tx, *ref)
			}
		}
		return tx.Timeslot.Delete(ctx, slotID)
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("删除时间段失败",
				zap.String("timeslot_id", slotID),
				zap.String("acting_user_id", actingUserID),
				zap.Error(err),
			)
		}
		return err
	}

	if slot.Occupied() {
		s.msg.sendLogged(ctx, notify.KindCancellation, activity, slot, *slot.ObserveeID)
	}
	return nil
}

// ════════════════════════════════════════════
// 查询
// ════════════════════════════════════════════

func (s *timeslotService) GetByID(ctx context.Context, slotID string) (*dto.TimeslotResponse, error) {
	slot, err := loadTimeslot(ctx, s.repo, slotID)
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("查询时间段失败", zap.String("timeslot_id", slotID), zap.Error(err))
		}
		return nil, err
	}
	return toTimeslotResponse(slot), nil
}

func (s *timeslotService) List(ctx context.Context, activityID string) ([]dto.TimeslotResponse, error) {
	slots, err := s.repo.Timeslot.ListByActivity(ctx, activityID)
	if err != nil {
		s.logger.Error("列出时间段失败", zap.String("activity_id", activityID), zap.Error(err))
		return nil, err
	}
	return toTimeslotResponses(slots), nil
}

func (s *timeslotService) GetEmpty(ctx context.Context, activityID string) ([]dto.TimeslotResponse, error) {
	slots, err := s.repo.Timeslot.ListEmpty(ctx, activityID)
	if err != nil {
		s.logger.Error("列出空闲时间段失败", zap.String("activity_id", activityID), zap.Error(err))
		return nil, err
	}
	return toTimeslotResponses(slots), nil
}

func (s *timeslotService) GetRegisteredSlot(ctx context.Context, activityID, userID string) (*dto.TimeslotResponse, error) {
	slot, err := s.repo.Timeslot.GetByObservee(ctx, activityID, userID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, nil
		}
		s.logger.Error("查询已报名时间段失败",
			zap.String("activity_id", activityID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}
	return toTimeslotResponse(slot), nil
}

func (s *timeslotService) GetForCalendar(ctx context.Context, activityID string, month, year int) ([]dto.TimeslotResponse, error) {
	if month < 1 || month > 12 {
		return nil, &ValidationError{Field: "month", Reason: "取值范围 1..12"}
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 1, 0)

	slots, err := s.repo.Timeslot.ListInRange(ctx, activityID, from.Unix(), to.Unix())
	if err != nil {
		s.logger.Error("按月查询时间段失败",
			zap.String("activity_id", activityID),
			zap.Int("year", year),
			zap.Int("month", month),
			zap.Error(err),
		)
		return nil, err
	}
	return toTimeslotResponses(slots), nil
}

// ── 内部辅助方法 ──

// signupInTx 在 tx 内为 userID 占用 slot
// 时间段已被占用返回 ErrSlotTaken，用户已持有本活动其他时间段返回 ErrAlreadyRegistered
func signupInTx(ctx context.Context, tx *repository.Repository, slot *model.Timeslot, userID string) error {
	if slot.Occupied() {
		return ErrSlotTaken
	}

	existing, err := tx.Timeslot.GetByObservee(ctx, slot.ActivityID, userID)
	if err == nil && existing != nil {
		return ErrAlreadyRegistered
	}
	if err != nil && !pkgerrors.IsNotFound(err) {
		return err
	}

	ok, err := tx.Timeslot.AssignObservee(ctx, slot.TimeslotID, userID)
	if err != nil {
		if pkgerrors.IsDuplicate(err) {
			return ErrAlreadyRegistered
		}
		return err
	}
	if !ok {
		return ErrSlotTaken
	}

	slot.ObserveeID = &userID
	return nil
}

// releaseInTx 清空被观察者：删除其在本活动的提醒、清空引用并尽力删除日历事件
func (s *timeslotService) releaseInTx(ctx context.Context, tx *repository.Repository, slot *model.Timeslot) error {
	if err := tx.Notification.DeleteByUser(ctx, slot.ActivityID, *slot.ObserveeID); err != nil {
		return err
	}
	if err := tx.Timeslot.ClearObservee(ctx, slot.TimeslotID); err != nil {
		return err
	}
	if slot.ObserveeEventRef != nil {
		s.deleteEventBestEffort(ctx, tx, *slot.ObserveeEventRef)
	}
	return nil
}

// syncEvents 为观察者和被观察者创建或更新日历事件，失败时返回 ErrCalendarSyncFailed
func (s *timeslotService) syncEvents(ctx context.Context, tx *repository.Repository, activity *model.Activity, slot *model.Timeslot) error {
	if s.calendar == nil {
		return nil
	}
	cal := calendarFor(s.calendar, tx)

	observerRef, err := upsertEvent(ctx, cal, slot.ObserverEventRef, slotEvent(activity, slot, slot.ObserverID, true))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCalendarSyncFailed, err)
	}

	observeeRef := slot.ObserveeEventRef
	if slot.Occupied() {
		observeeRef, err = upsertEvent(ctx, cal, slot.ObserveeEventRef, slotEvent(activity, slot, *slot.ObserveeID, false))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCalendarSyncFailed, err)
		}
	}

	slot.ObserverEventRef = observerRef
	slot.ObserveeEventRef = observeeRef
	return tx.Timeslot.UpdateEventRefs(ctx, slot.TimeslotID, observerRef, observeeRef)
}

// createObserveeEventBestEffort 报名后为被观察者创建日历事件，失败仅记录日志
func (s *timeslotService) createObserveeEventBestEffort(ctx context.Context, tx *repository.Repository, activity *model.Activity, slot *model.Timeslot) {
	if s.calendar == nil {
		return
	}
	err := tx.Transaction(ctx, func(inner *repository.Repository) error {
		ref, err := calendarFor(s.calendar, inner).CreateEvent(ctx, slotEvent(activity, slot, *slot.ObserveeID, false))
		if err != nil {
			return err
		}
		if err := inner.Timeslot.UpdateEventRefs(ctx, slot.TimeslotID, slot.ObserverEventRef, &ref); err != nil {
			return err
		}
		slot.ObserveeEventRef = &ref
		return nil
	})
	if err != nil {
		s.logger.Warn("创建日历事件失败", zap.String("timeslot_id", slot.TimeslotID), zap.Error(err))
	}
}

func (s *timeslotService) deleteEventBestEffort(ctx context.Context, tx *repository.Repository, ref string) {
	if s.calendar == nil {
		return
	}
	err := tx.Transaction(ctx, func(inner *repository.Repository) error {
		return calendarFor(s.calendar, inner).DeleteEvent(ctx, ref)
	})
	if err != nil {
		s.logger.Warn("删除日历事件失败", zap.String("event_ref", ref), zap.Error(err))
	}
}

// upsertEvent 有引用则更新，否则创建并返回新引用
func upsertEvent(ctx context.Context, cal CalendarSync, ref *string, ev CalendarEvent) (*string, error) {
	if ref != nil {
		if err := cal.UpdateEvent(ctx, *ref, ev); err != nil {
			return nil, err
		}
		return ref, nil
	}
	newRef, err := cal.CreateEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	return &newRef, nil
}

func slotEvent(activity *model.Activity, slot *model.Timeslot, userID string, asObserver bool) CalendarEvent {
	summary := activity.Name + " - 被观察"
	if asObserver {
		summary = activity.Name + " - 观察"
	}
	return CalendarEvent{
		UserID:      userID,
		TimeslotID:  slot.TimeslotID,
		Summary:     summary,
		Description: fmt.Sprintf("观察时间段 %d 分钟", slot.DurationMinutes),
		Start:       slot.StartTime,
		End:         slot.EndTime(),
	}
}

func signupOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	default:
		return "error"
	}
}

func loadActivity(ctx context.Context, repo *repository.Repository, activityID string) (*model.Activity, error) {
	activity, err := repo.Activity.GetByID(ctx, activityID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	return activity, nil
}

func loadTimeslot(ctx context.Context, repo *repository.Repository, slotID string) (*model.Timeslot, error) {
	slot, err := repo.Timeslot.GetByID(ctx, slotID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, ErrTimeslotNotFound
		}
		return nil, err
	}
	return slot, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

func toTimeslotResponse(t *model.Timeslot) *dto.TimeslotResponse {
	return &dto.TimeslotResponse{
		ID:              t.TimeslotID,
		ActivityID:      t.ActivityID,
		StartTime:       t.StartTime,
		EndTime:         t.EndTime(),
		DurationMinutes: t.DurationMinutes,
		ObserverID:      t.ObserverID,
		ObserveeID:      t.ObserveeID,
	}
}

func toTimeslotResponses(slots []model.Timeslot) []dto.TimeslotResponse {
	result := make([]dto.TimeslotResponse, 0, len(slots))
	for i := range slots {
		result = append(result, *toTimeslotResponse(&slots[i]))
	}
	return result
}
