package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cache Redis 缓存实现。
//
// 承担两类短生命周期数据：限流计数和 JWT 黑名单。
// 传输元数据与文件内容不经过 Redis。
type Cache struct {
	client *goredis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例。
func NewCache(addr, password string, db int) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// ========== JWT 黑名单 ==========

// AddToBlacklist 将令牌加入黑名单，ttl 取令牌剩余有效期。
func (c *Cache) AddToBlacklist(token string, ttl time.Duration) error {
	key := fmt.Sprintf("jwt:blacklist:%s", token)
	return c.client.Set(c.ctx, key, "1", ttl).Err()
}

// IsBlacklisted 检查令牌是否在黑名单中。
func (c *Cache) IsBlacklisted(token string) (bool, error) {
	key := fmt.Sprintf("jwt:blacklist:%s", token)
	n, err := c.client.Exists(c.ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ========== 限流计数 ==========

// IncrementRateLimit 自增限流计数，首次自增时设置窗口过期。
func (c *Cache) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)
	count, err := c.client.Incr(c.ctx, redisKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		c.client.Expire(c.ctx, redisKey, window)
	}
	return count, nil
}

// GetRateLimit 读取当前限流计数。
func (c *Cache) GetRateLimit(key string) (int64, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)
	count, err := c.client.Get(c.ctx, redisKey).Int64()
	if err != nil {
		if err == goredis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// ========== 工具方法 ==========

// Close 关闭 Redis 连接。
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health 检查 Redis 连接健康状态。
func (c *Cache) Health() error {
	ctx, cancel := context.WithTimeout(c.ctx, 3*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err()
}
