package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"observation/backend/config"
	"observation/backend/internal/api/handler"
	"observation/backend/internal/api/router"
	"observation/backend/internal/job"
	"observation/backend/internal/model"
	"observation/backend/internal/repository"
	"observation/backend/internal/service"
	"observation/backend/pkg/database"
	"observation/backend/pkg/gradebook"
	"observation/backend/pkg/jwt"
	applogger "observation/backend/pkg/logger"
	"observation/backend/pkg/notify"
	"observation/backend/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 连接数据库并迁移
	db, err := openDB(cfg, logger)
	if err != nil {
		logger.Fatal("数据库初始化失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：未配置或连接失败时降级为单实例运行）
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis 连接失败，锁定与任务互斥仅在本实例内生效", zap.Error(err))
			rdb = nil
		}
	}

	// 5. 外部协作方
	notifier, err := notify.FromConfig(&cfg.Notifier, logger)
	if err != nil {
		logger.Fatal("初始化通知渠道失败", zap.Error(err))
	}

	sink, err := newGradebookSink(cfg, logger)
	if err != nil {
		logger.Fatal("初始化成绩册失败", zap.Error(err))
	}

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, rdb, notifier, sink, logger)

	// 7. 提醒定时任务
	var scheduler *job.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler, err = job.NewScheduler(cfg.Scheduler.NotificationCron, svc.Notification, logger)
		if err != nil {
			logger.Fatal("初始化定时任务失败", zap.Error(err))
		}
		scheduler.Start()
	}

	// 8. HTTP 服务（健康检查、指标、签名链接下载）
	var srv *http.Server
	if cfg.Server.Enabled {
		links := jwt.NewManager(&cfg.Link)
		engine := router.Setup(handler.NewHandler(svc, links), links, logger)

		srv = &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("HTTP 服务器异常", zap.Error(err))
			}
		}()
	}

	// 9. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("服务器关闭异常", zap.Error(err))
		}
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	// 关闭数据库连接
	closeDB, _ := db.DB()
	if closeDB != nil {
		closeDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务已关闭")
}

// openDB 按驱动打开数据库：postgres 走版本化迁移，sqlite 直接按模型建表
func openDB(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	if cfg.Database.Driver == "sqlite" {
		db, err := database.NewSQLite(cfg.Database.Path, logger)
		if err != nil {
			return nil, err
		}
		if err := database.AutoMigrate(db, model.All()...); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("数据库连接成功")

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		return nil, err
	}
	return db, nil
}

func newGradebookSink(cfg *config.Config, logger *zap.Logger) (service.GradebookSink, error) {
	if cfg.Gradebook.Driver == "sheets" {
		sink, err := gradebook.NewSheetsSink(context.Background(), &cfg.Gradebook.Sheets)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	return gradebook.NewLogSink(logger), nil
}
