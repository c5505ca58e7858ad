package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"observation/backend/config"
)

// Client Redis 客户端封装
// 当前用于短期互斥锁：会话开始防抖、提醒任务单实例运行
// 接收者为 nil 时所有锁操作直接放行，便于 Redis 不可用时降级运行
type Client struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// Wrap 包装已有的 go-redis 客户端
func Wrap(rdb *goredis.Client, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// ── 锁键前缀 ──

const (
	sessionStartPrefix = "observation:session:start:"
	jobLockPrefix      = "observation:job:"
)

// SessionStartKey 会话开始防抖锁键：同一 (活动, 观察者, 被观察者) 三元组
func SessionStartKey(activityID, observerID, observeeID string) string {
	return sessionStartPrefix + activityID + ":" + observerID + ":" + observeeID
}

// JobLockKey 定时任务运行锁键
func JobLockKey(name string) string {
	return jobLockPrefix + name
}

// Lock 已获取的锁，Release 仅删除自己持有的键
type Lock struct {
	client *Client
	key    string
	token  string
}

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock 以 SET NX PX 尝试获取锁
// 返回 (nil, nil) 表示锁已被占用
func (c *Client) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if c == nil {
		return &Lock{key: key}, nil
	}

	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("获取 Redis 锁失败: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &Lock{client: c, key: key, token: token}, nil
}

// Release 释放锁；锁已过期或被他人持有时不做任何事
func (l *Lock) Release(ctx context.Context) {
	if l == nil || l.client == nil {
		return
	}
	if err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.token).Err(); err != nil {
		l.client.logger.Warn("释放 Redis 锁失败", zap.String("key", l.key), zap.Error(err))
	}
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
