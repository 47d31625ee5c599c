package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"fileoff/backend/internal/monitoring"
	"fileoff/backend/internal/storage"
)

// RateLimiter 按客户端 IP 限流
//
// 进程内用 token bucket，多实例部署时叠加 Redis 计数做全局上限。
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	rps     rate.Limit
	burst   int
	repo    storage.RateLimitRepository // 可以为 nil
	window  time.Duration
	maxHits int64
	metrics *monitoring.Metrics
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 创建限流器
//
// perMinute 为每 IP 每分钟允许的请求数；repo 为 nil 时只做进程内限流。
func NewRateLimiter(perMinute int, repo storage.RateLimitRepository, metrics *monitoring.Metrics) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		repo:     repo,
		window:   time.Minute,
		maxHits:  int64(perMinute),
		metrics:  metrics,
	}
	go rl.cleanupLoop()
	return rl
}

// Limit 限流中间件
func (rl *RateLimiter) Limit(limitType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		if !rl.allow(ip) {
			rl.block(c, limitType)
			return
		}

		if rl.repo != nil {
			key := fmt.Sprintf("%s:%s", limitType, ip)
			hits, err := rl.repo.IncrementRateLimit(key, rl.window)
			// 计数存储不可用时退回进程内限流
			if err == nil && hits > rl.maxHits {
				rl.block(c, limitType)
				return
			}
		}

		c.Next()
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (rl *RateLimiter) block(c *gin.Context, limitType string) {
	if rl.metrics != nil {
		rl.metrics.RecordRateLimitBlock(limitType)
	}
	c.Header("Retry-After", "60")
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error": "rate limit exceeded",
	})
	c.Abort()
}

// cleanupLoop 定期清理长时间没有请求的 IP
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}
