package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewSQLite 打开 SQLite 数据库，path 为 ":memory:" 时使用内存库
// 单连接运行：SQLite 写操作本就串行，且内存库的数据只存在于单个连接中
func NewSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	logger.Info("SQLite 数据库已打开", zap.String("path", path))
	return db, nil
}

// AutoMigrate 按模型建表，并补充 AutoMigrate 无法表达的部分唯一索引
func AutoMigrate(db *gorm.DB, models ...interface{}) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("自动建表失败: %w", err)
	}
	err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uq_timeslots_activity_observee
		ON timeslots (activity_id, observee_id) WHERE observee_id IS NOT NULL`).Error
	if err != nil {
		return fmt.Errorf("创建部分唯一索引失败: %w", err)
	}
	return nil
}
