package hybrid

import (
	"fmt"
	"time"

	"fileoff/backend/internal/config"
	"fileoff/backend/internal/storage"
	redisstore "fileoff/backend/internal/storage/redis"
	sqlstore "fileoff/backend/internal/storage/sql"
)

// Store 混合存储：SQL 持久化元数据 + Redis 承担限流计数与 JWT 黑名单。
//
// Redis 不可用时退化为纯 SQL 模式，安全相关的缓存功能返回降级结果
// （黑名单视为空、限流计数始终为零），不阻塞核心传输路径。
type Store struct {
	*sqlstore.Store
	cache *redisstore.Cache
}

// NewStore 创建混合存储实例。
func NewStore(dbCfg *config.DatabaseConfig, redisCfg *config.RedisConfig) (*Store, error) {
	sqlStore, err := sqlstore.NewStore(
		dbCfg.Type,
		dbCfg.DSN,
		dbCfg.MaxOpenConns,
		dbCfg.MaxIdleConns,
		dbCfg.ConnMaxLifetime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sql store: %w", err)
	}

	var cache *redisstore.Cache
	if redisCfg != nil && redisCfg.Address != "" {
		cache, err = redisstore.NewCache(redisCfg.Address, redisCfg.Password, redisCfg.DB)
		if err != nil {
			sqlStore.Close()
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
	}

	return &Store{
		Store: sqlStore,
		cache: cache,
	}, nil
}

// ========== JWT 黑名单 ==========

// AddToBlacklist 实现 storage.TokenBlacklist。
func (s *Store) AddToBlacklist(token string, ttl time.Duration) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.AddToBlacklist(token, ttl)
}

// IsBlacklisted 实现 storage.TokenBlacklist。
func (s *Store) IsBlacklisted(token string) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	return s.cache.IsBlacklisted(token)
}

// ========== 限流计数 ==========

// IncrementRateLimit 实现 storage.RateLimitRepository。
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementRateLimit(key, window)
}

// GetRateLimit 实现 storage.RateLimitRepository。
func (s *Store) GetRateLimit(key string) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.GetRateLimit(key)
}

// ========== 工具方法 ==========

// Close 关闭 SQL 与 Redis 连接。
func (s *Store) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return s.Store.Close()
}

// Health 检查 SQL 与 Redis 健康状态。
func (s *Store) Health() error {
	if err := s.Store.Health(); err != nil {
		return err
	}
	if s.cache != nil {
		return s.cache.Health()
	}
	return nil
}

// 编译期校验接口实现
var (
	_ storage.Store               = (*Store)(nil)
	_ storage.TokenBlacklist      = (*Store)(nil)
	_ storage.RateLimitRepository = (*Store)(nil)
)
