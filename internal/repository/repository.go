package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	Activity      ActivityRepository
	Participant   ParticipantRepository
	RubricPoint   RubricPointRepository
	Timeslot      TimeslotRepository
	Notification  NotificationRepository
	Session       SessionRepository
	PointResponse PointResponseRepository
	CalendarEvent CalendarEventRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:            db,
		Activity:      NewActivityRepo(db),
		Participant:   NewParticipantRepo(db),
		RubricPoint:   NewRubricPointRepo(db),
		Timeslot:      NewTimeslotRepo(db),
		Notification:  NewNotificationRepo(db),
		Session:       NewSessionRepo(db),
		PointResponse: NewPointResponseRepo(db),
		CalendarEvent: NewCalendarEventRepo(db),
	}
}

// Transaction 在同一事务内执行 fn，fn 收到绑定该事务的 Repository
//
// 在事务内再次调用时使用 SAVEPOINT，内层失败只回滚内层。
// 未绑定数据库（测试中手工组装的聚合）时直接以自身调用 fn。
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// forUpdate PostgreSQL 下追加 FOR UPDATE 行锁；SQLite 以库级写锁串行化，无需行锁
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}
