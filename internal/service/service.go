package service

import (
	"go.uber.org/zap"

	"observation/backend/config"
	"observation/backend/internal/repository"
	"observation/backend/pkg/redis"
)

// Service 所有 Service 的聚合入口
type Service struct {
	RubricPoint  RubricPointService
	Timeslot     TimeslotService
	Assignment   AssignmentService
	Session      SessionService
	Notification NotificationService
	Export       ExportService
	Calendar     *ICSCalendar
}

// NewService 创建 Service 聚合
// rdb 可为 nil；notifier 与 sink 由调用方按配置选择实现
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	rdb *redis.Client,
	notifier Notifier,
	sink GradebookSink,
	logger *zap.Logger,
) *Service {
	loc := cfg.Observation.Location()
	directory := NewParticipantDirectory(repo)
	calendar := NewICSCalendar(repo)

	timeslots := NewTimeslotService(repo, calendar, notifier, directory, loc, logger,
		WithMaxGeneratedSlots(cfg.Observation.MaxGeneratedSlots))

	return &Service{
		RubricPoint:  NewRubricPointService(repo, logger),
		Timeslot:     timeslots,
		Assignment:   NewAssignmentService(repo, directory, notifier, loc, logger),
		Session:      NewSessionService(repo, rdb, sink, cfg.Observation.SessionLockout, logger),
		Notification: NewNotificationService(repo, rdb, notifier, directory, cfg.Observation.MaxNotifications, loc, logger),
		Export:       NewExportService(repo, loc, logger),
		Calendar:     calendar,
	}
}
