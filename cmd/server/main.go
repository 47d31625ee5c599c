package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fileoff/backend/internal/auth"
	jwtpkg "fileoff/backend/internal/auth/jwt"
	"fileoff/backend/internal/config"
	"fileoff/backend/internal/health"
	"fileoff/backend/internal/logger"
	"fileoff/backend/internal/monitoring"
	"fileoff/backend/internal/service"
	"fileoff/backend/internal/storage"
	"fileoff/backend/internal/storage/filesystem"
	"fileoff/backend/internal/storage/hybrid"
	"fileoff/backend/internal/storage/memory"
	httptransport "fileoff/backend/internal/transport/http"
	"fileoff/backend/internal/websocket"
)

// main 启动文件中转服务：HTTP API、通知 Hub 与过期清理任务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting fileoff server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化元数据存储
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = hybrid.NewStore(&cfg.Database, &cfg.Redis)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage",
			zap.String("type", cfg.Database.Type),
			zap.Bool("redis", cfg.Redis.Address != ""),
		)
	} else {
		// 内存存储（开发环境）
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 初始化文件内容存储
	blobs, err := filesystem.NewStore(cfg.Storage.BlobPath)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize blob storage: %v", err))
	}
	log.Info("blob storage initialized", zap.String("path", cfg.Storage.BlobPath))

	// 初始化监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, cfg.Storage.BlobPath, log)

	// 初始化服务层
	transferService := service.NewTransferService(store, store, blobs, cfg, log)
	sweeper := service.NewSweeper(transferService, cfg.Transfer.SweepInterval, log).
		WithMetrics(metrics)

	// 初始化认证
	authService := auth.NewService(store)
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)

	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
		zap.Duration("refresh_expiry", cfg.JWT.RefreshExpiry),
	)

	// 创建 WebSocket Hub 并接上上传通知
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, log)
	transferService.SetNotifier(wsHub)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:          cfg,
		TransferService: transferService,
		AuthService:     authService,
		JWTManager:      jwtManager,
		WebSocketHub:    wsHub,
		Store:           store,
		Metrics:         metrics,
		HealthChecker:   healthChecker,
		Logger:          log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Minute, // 大文件上传
		WriteTimeout:      10 * time.Minute, // 大文件下载
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 过期清理 goroutine
	group.Go(func() error {
		sweeper.Run(groupCtx)
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 周期性指标上报 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				metrics.UpdateUsersOnline(wsHub.OnlineUsers())
				if cs, ok := store.(interface{ OpenConnections() int }); ok {
					metrics.UpdateDatabaseConnections(cs.OpenConnections())
				}
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
