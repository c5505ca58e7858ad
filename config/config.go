package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Database    DatabaseConfig    `mapstructure:"db"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Server      ServerConfig      `mapstructure:"server"`
	Link        LinkConfig        `mapstructure:"link"`
	Observation ObservationConfig `mapstructure:"observation"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Notifier    NotifierConfig    `mapstructure:"notifier"`
	Gradebook   GradebookConfig   `mapstructure:"gradebook"`
}

// DatabaseConfig 数据库配置
// Driver=postgres 为生产配置；sqlite 仅用于本地开发，Path 为数据库文件路径
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 分钟
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置，Addr 为空时不启用
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig HTTP 服务配置：健康检查、Prometheus 指标、日历订阅与导出下载
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LinkConfig 签名链接配置
// Secret 为空时不开放日历订阅与导出下载
type LinkConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// ObservationConfig 观察活动业务参数
type ObservationConfig struct {
	SessionLockout   time.Duration `mapstructure:"session_lockout"`
	MaxNotifications int           `mapstructure:"max_notifications"`
	Timezone         string        `mapstructure:"timezone"`
	// MaxGeneratedSlots 单次按间隔生成的时间段上限
	MaxGeneratedSlots int `mapstructure:"max_generated_slots"`
}

// Location 返回日历查询使用的时区，解析失败时退回 UTC
func (c *ObservationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	NotificationCron string `mapstructure:"notification_cron"`
}

// NotifierConfig 通知渠道配置
type NotifierConfig struct {
	Channels []string       `mapstructure:"channels"` // log / mail / telegram
	Mail     MailConfig     `mapstructure:"mail"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// MailConfig SendGrid 邮件配置
type MailConfig struct {
	APIKey   string `mapstructure:"api_key"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

// TelegramConfig Telegram 机器人配置
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

// GradebookConfig 成绩册同步配置
type GradebookConfig struct {
	Driver string       `mapstructure:"driver"` // log / sheets
	Sheets SheetsConfig `mapstructure:"sheets"`
}

// SheetsConfig Google Sheets 成绩册配置
type SheetsConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	SheetName       string `mapstructure:"sheet_name"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("OBSERVATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.path", "observation.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "observation")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("link.secret", "")
	v.SetDefault("link.ttl", "720h")

	v.SetDefault("observation.session_lockout", "3s")
	v.SetDefault("observation.max_notifications", 3)
	v.SetDefault("observation.timezone", "UTC")
	v.SetDefault("observation.max_generated_slots", 1000)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.notification_cron", "0 * * * *")

	v.SetDefault("notifier.channels", []string{"log"})
	v.SetDefault("notifier.mail.from_name", "Observation")

	v.SetDefault("gradebook.driver", "log")
	v.SetDefault("gradebook.sheets.sheet_name", "Grades")
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("配置校验失败: 未知数据库驱动 %q", c.Database.Driver)
	}
	if c.Observation.SessionLockout < 0 {
		return fmt.Errorf("配置校验失败: observation.session_lockout 不能为负数")
	}
	if c.Observation.MaxNotifications < 1 {
		return fmt.Errorf("配置校验失败: observation.max_notifications 至少为 1")
	}
	if c.Observation.MaxGeneratedSlots < 1 {
		return fmt.Errorf("配置校验失败: observation.max_generated_slots 至少为 1")
	}
	if _, err := time.LoadLocation(c.Observation.Timezone); err != nil {
		return fmt.Errorf("配置校验失败: observation.timezone 无效: %w", err)
	}
	if c.Link.Secret != "" && len(c.Link.Secret) < 32 {
		return fmt.Errorf("配置校验失败: link.secret 长度至少 32 字符")
	}
	if c.Link.TTL <= 0 {
		return fmt.Errorf("配置校验失败: link.ttl 必须为正数")
	}
	if c.Scheduler.Enabled && c.Scheduler.NotificationCron == "" {
		return fmt.Errorf("配置校验失败: scheduler.notification_cron 不能为空")
	}

	for _, ch := range c.Notifier.Channels {
		switch ch {
		case "log":
		case "mail":
			if c.Notifier.Mail.APIKey == "" || c.Notifier.Mail.From == "" {
				return fmt.Errorf("配置校验失败: 启用 mail 通知时 notifier.mail.api_key 与 notifier.mail.from 不能为空")
			}
		case "telegram":
			if c.Notifier.Telegram.BotToken == "" {
				return fmt.Errorf("配置校验失败: 启用 telegram 通知时 notifier.telegram.bot_token 不能为空")
			}
		default:
			return fmt.Errorf("配置校验失败: 未知通知渠道 %q", ch)
		}
	}

	switch c.Gradebook.Driver {
	case "log":
	case "sheets":
		if c.Gradebook.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("配置校验失败: gradebook.sheets.spreadsheet_id 不能为空")
		}
	default:
		return fmt.Errorf("配置校验失败: 未知成绩册驱动 %q", c.Gradebook.Driver)
	}

	return nil
}
