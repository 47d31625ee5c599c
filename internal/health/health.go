package health

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"fileoff/backend/internal/storage"
)

// HealthChecker 健康检查器
type HealthChecker struct {
	health   healthcheck.Handler
	store    storage.Store
	blobPath string
	logger   *zap.Logger
}

// NewHealthChecker 创建健康检查器
//
// blobPath 是文件内容目录，用于检查磁盘可写。
func NewHealthChecker(store storage.Store, blobPath string, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health:   healthcheck.NewHandler(),
		store:    store,
		blobPath: blobPath,
		logger:   logger,
	}

	hc.addChecks()

	return hc
}

func (hc *HealthChecker) addChecks() {
	// 元数据存储检查
	hc.health.AddReadinessCheck("storage", func() error {
		return hc.store.Health()
	})

	// Redis 连接检查（hybrid 部署才有）
	if cache, ok := hc.store.(storage.RateLimitRepository); ok {
		hc.health.AddReadinessCheck("redis", func() error {
			_, err := cache.GetRateLimit("health_check")
			return err
		})
	}

	// 文件内容目录可访问
	hc.health.AddLivenessCheck("blob_dir", func() error {
		if hc.blobPath == "" {
			return nil
		}
		_, err := os.Stat(hc.blobPath)
		return err
	})
}

// Handler 返回健康检查处理器
//
// 暴露 /live 和 /ready 两个端点。
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行健康检查，返回各组件状态
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := hc.store.Health(); err != nil {
		results["storage"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["storage"] = "OK"
	}

	if cache, ok := hc.store.(storage.RateLimitRepository); ok {
		if _, err := cache.GetRateLimit("health_check"); err != nil {
			results["redis"] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results["redis"] = "OK"
		}
	}

	if hc.blobPath != "" {
		if _, err := os.Stat(hc.blobPath); err != nil {
			results["blob_dir"] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results["blob_dir"] = "OK"
		}
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}
