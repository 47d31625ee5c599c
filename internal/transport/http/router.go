package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fileoff/backend/internal/auth"
	jwtpkg "fileoff/backend/internal/auth/jwt"
	"fileoff/backend/internal/config"
	"fileoff/backend/internal/health"
	"fileoff/backend/internal/middleware"
	"fileoff/backend/internal/monitoring"
	"fileoff/backend/internal/service"
	"fileoff/backend/internal/storage"
	"fileoff/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config          *config.Config
	TransferService *service.TransferService
	AuthService     *auth.Service
	JWTManager      *jwtpkg.Manager
	WebSocketHub    *websocket.Hub
	Store           storage.Store
	Metrics         *monitoring.Metrics   // 可以为 nil
	HealthChecker   *health.HealthChecker // 可以为 nil
	Logger          *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())

	if deps.Metrics != nil {
		mon := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
		router.Use(mon.HTTPMetrics())
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:  deps.Config.CORS.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Accept-Language", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 允许所有来源时必须关闭凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 黑名单存储可选，纯内存部署时没有
	var blacklist storage.TokenBlacklist
	if bl, ok := deps.Store.(storage.TokenBlacklist); ok {
		blacklist = bl
	}

	// 创建处理器
	authHandler := NewAuthHandler(deps.AuthService, deps.JWTManager, blacklist, deps.Metrics, deps.Logger)
	transferHandler := NewTransferHandler(deps.TransferService, deps.Metrics, deps.Logger)

	// 创建中间件
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, blacklist, deps.Logger)

	var rateRepo storage.RateLimitRepository
	if rr, ok := deps.Store.(storage.RateLimitRepository); ok {
		rateRepo = rr
	}
	uploadLimit := middleware.NewRateLimiter(deps.Config.Transfer.UploadsPerMin, rateRepo, deps.Metrics)

	// 上传端点的请求体上限：文件大小加 multipart 报头余量
	uploadBodyLimit := middleware.BodySizeLimit(deps.Config.Transfer.MaxFileSize + 1024*1024)

	// 健康检查与指标
	if deps.HealthChecker != nil {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.HealthChecker.CheckHealth())
		})
		router.GET("/health/live", gin.WrapH(deps.HealthChecker.Handler()))
		router.GET("/health/ready", gin.WrapH(deps.HealthChecker.Handler()))
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// V1 API
	v1 := router.Group("/api/v1")
	{
		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/register", middleware.BodySizeLimit(middleware.DefaultBodyLimit), authHandler.Register)
			authRoutes.POST("/login", middleware.BodySizeLimit(middleware.DefaultBodyLimit), authHandler.Login)
			authRoutes.POST("/refresh", middleware.BodySizeLimit(middleware.DefaultBodyLimit), authHandler.Refresh)
			authRoutes.POST("/logout", jwtAuth.RequireAuth(), authHandler.Logout)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		// ========== File Routes ==========
		fileRoutes := v1.Group("/files", jwtAuth.RequireAuth())
		{
			fileRoutes.POST("", uploadLimit.Limit("upload"), uploadBodyLimit, transferHandler.Upload)
			fileRoutes.GET("/download", transferHandler.Download)
			fileRoutes.DELETE("", transferHandler.Delete)
			fileRoutes.GET("/sent", transferHandler.ListSent)
			fileRoutes.GET("/received", transferHandler.ListReceived)
		}

		// ========== WebSocket ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", deps.WebSocketHub.HandleConnection)
		}
	}

	return router
}
