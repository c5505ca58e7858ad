package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb, zap.NewNop()), mr
}

func TestTryLock_Exclusive(t *testing.T) {
	c, _ := setupTestClient(t)
	ctx := context.Background()
	key := SessionStartKey("act-1", "obs-1", "stu-1")

	first, err := c.TryLock(ctx, key, 3*time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := c.TryLock(ctx, key, 3*time.Second)
	require.NoError(t, err)
	assert.Nil(t, second, "锁未释放时第二次获取应失败")

	first.Release(ctx)

	third, err := c.TryLock(ctx, key, 3*time.Second)
	require.NoError(t, err)
	assert.NotNil(t, third, "释放后应可再次获取")
}

func TestTryLock_Expires(t *testing.T) {
	c, mr := setupTestClient(t)
	ctx := context.Background()
	key := JobLockKey("notifications")

	lock, err := c.TryLock(ctx, key, time.Second)
	require.NoError(t, err)
	require.NotNil(t, lock)

	mr.FastForward(2 * time.Second)

	again, err := c.TryLock(ctx, key, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)

	// 过期的旧锁不能删除新持有者的键
	lock.Release(ctx)
	assert.True(t, mr.Exists(key))
}

func TestNilClient_AlwaysGrants(t *testing.T) {
	var c *Client
	lock, err := c.TryLock(context.Background(), "any", time.Second)
	require.NoError(t, err)
	assert.NotNil(t, lock)
	lock.Release(context.Background())
	assert.NoError(t, c.Close())
}

func TestTryLock_ServerDown(t *testing.T) {
	c, mr := setupTestClient(t)
	mr.Close()

	_, err := c.TryLock(context.Background(), "k", time.Second)
	assert.Error(t, err)
}
