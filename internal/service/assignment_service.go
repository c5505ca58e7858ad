package service

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"observation/backend/internal/dto"
	"observation/backend/internal/model"
	"observation/backend/internal/repository"
	"observation/backend/pkg/metrics"
	"observation/backend/pkg/notify"
)

// AssignmentService 随机分配业务接口
type AssignmentService interface {
	// RandomlyAssign 将未报名的参与者随机分配到空闲时间段
	// 持有观察能力的用户不参与分配；返回分配数量及未分配到时间段的用户
	RandomlyAssign(ctx context.Context, activityID string) (*dto.AssignmentResult, error)
}

type assignmentService struct {
	repo      *repository.Repository
	directory EnrollmentDirectory
	msg       *messenger
	logger    *zap.Logger
}

// NewAssignmentService 创建 AssignmentService 实例
func NewAssignmentService(
	repo *repository.Repository,
	directory EnrollmentDirectory,
	notifier Notifier,
	loc *time.Location,
	logger *zap.Logger,
) AssignmentService {
	if loc == nil {
		loc = time.UTC
	}
	return &assignmentService{
		repo:      repo,
		directory: directory,
		msg:       &messenger{notifier: notifier, directory: directory, loc: loc, logger: logger},
		logger:    logger,
	}
}

// ════════════════════════════════════════════
// RandomlyAssign
// ════════════════════════════════════════════
//
// 候选人 = 参与者 − 观察者 − 已报名用户；空闲时间段与候选人各自打乱后从尾部配对。
// 每次配对在外层事务内的 SAVEPOINT 中报名：
//   - ErrSlotTaken：该时间段被并发占用，丢弃时间段，候选人继续尝试下一个
//   - ErrAlreadyRegistered：候选人已并发报名，丢弃候选人
// 报名确认在事务提交后发送。

func (s *assignmentService) RandomlyAssign(ctx context.Context, activityID string) (*dto.AssignmentResult, error) {
	var (
		activity *model.Activity
		assigned []model.Timeslot
		leftover []string
	)

	// 名册在事务外读取
	participants, observers, err := s.roster(ctx, activityID)
	if err != nil {
		s.logger.Error("读取课程名册失败", zap.String("activity_id", activityID), zap.Error(err))
		return nil, err
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if activity, err = loadActivity(ctx, tx, activityID); err != nil {
			return err
		}

		registered, err := tx.Timeslot.ListObservees(ctx, activityID)
		if err != nil {
			return err
		}
		candidates := subtractUsers(participants, observers, registered)

		slots, err := tx.Timeslot.ListEmpty(ctx, activityID)
		if err != nil {
			return err
		}

		rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		rand.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })

		assigned = assigned[:0]
		for len(candidates) > 0 && len(slots) > 0 {
			user := candidates[len(candidates)-1]
			slot := slots[len(slots)-1]

			err := tx.Transaction(ctx, func(inner *repository.Repository) error {
				return signupInTx(ctx, inner, &slot, user)
			})
			metrics.SignupsTotal.WithLabelValues("random", signupOutcome(err)).Inc()

			switch {
			case err == nil:
				assigned = append(assigned, slot)
				candidates = candidates[:len(candidates)-1]
				slots = slots[:len(slots)-1]
			case errors.Is(err, ErrSlotTaken):
				slots = slots[:len(slots)-1]
			case errors.Is(err, ErrAlreadyRegistered):
				candidates = candidates[:len(candidates)-1]
			default:
				return err
			}
		}

		leftover = candidates
		return nil
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("随机分配失败", zap.String("activity_id", activityID), zap.Error(err))
		}
		return nil, err
	}

	for i := range assigned {
		s.msg.sendLogged(ctx, notify.KindSignup, activity, &assigned[i], *assigned[i].ObserveeID)
	}

	s.logger.Info("随机分配完成",
		zap.String("activity_id", activityID),
		zap.Int("assigned", len(assigned)),
		zap.Int("unassigned", len(leftover)),
	)

	if leftover == nil {
		leftover = []string{}
	}
	return &dto.AssignmentResult{Assigned: len(assigned), Unassigned: leftover}, nil
}

func (s *assignmentService) roster(ctx context.Context, activityID string) ([]string, []string, error) {
	participants, err := s.directory.ListParticipants(ctx, activityID)
	if err != nil {
		return nil, nil, err
	}
	observers, err := s.directory.ListParticipantsWithCapability(ctx, activityID, CapabilityPerformObservation)
	if err != nil {
		return nil, nil, err
	}
	return participants, observers, nil
}

// subtractUsers 返回 all 中不属于任一 excluded 集合的用户，去重并保持顺序
func subtractUsers(all []string, excluded ...[]string) []string {
	skip := make(map[string]struct{})
	for _, list := range excluded {
		for _, id := range list {
			skip[id] = struct{}{}
		}
	}

	result := make([]string, 0, len(all))
	for _, id := range all {
		if _, ok := skip[id]; ok {
			continue
		}
		skip[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
