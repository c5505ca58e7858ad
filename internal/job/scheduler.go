// Package job 定时任务：按 cron 表达式触发到期提醒的发送
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"observation/backend/internal/service"
	"observation/backend/pkg/metrics"
)

// runTimeout 单次运行的最长时间
const runTimeout = 5 * time.Minute

// DueProcessor 处理到期提醒
type DueProcessor interface {
	ProcessDue(ctx context.Context, now time.Time) (int, error)
}

// Scheduler 提醒定时任务
type Scheduler struct {
	cron      *gocron.Scheduler
	processor DueProcessor
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduler 创建 Scheduler 实例，expr 为标准 5 段 cron 表达式
func NewScheduler(expr string, processor DueProcessor, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      gocron.NewScheduler(time.UTC),
		processor: processor,
		logger:    logger,
		now:       time.Now,
	}

	// 上一次运行未结束时跳过本次触发
	_, err := s.cron.Cron(expr).Tag(service.NotificationJobName).SingletonMode().Do(s.Run, context.Background())
	if err != nil {
		return nil, fmt.Errorf("注册提醒任务失败: %w", err)
	}
	return s, nil
}

// Start 异步启动调度
func (s *Scheduler) Start() {
	s.cron.StartAsync()
	s.logger.Info("提醒定时任务已启动", zap.Time("next_run", s.nextRun()))
}

// Stop 停止调度，等待运行中的任务结束
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("提醒定时任务已停止")
}

// Run 执行一次到期提醒处理
func (s *Scheduler) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	start := time.Now()
	sent, err := s.processor.ProcessDue(ctx, s.now())
	metrics.JobDuration.WithLabelValues(service.NotificationJobName).Observe(time.Since(start).Seconds())

	if err != nil {
		s.logger.Error("提醒任务运行失败", zap.Error(err))
		return
	}
	s.logger.Debug("提醒任务运行完成", zap.Int("sent", sent), zap.Duration("elapsed", time.Since(start)))
}

func (s *Scheduler) nextRun() time.Time {
	_, next := s.cron.NextRun()
	return next
}
