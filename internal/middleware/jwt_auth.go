package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fileoff/backend/internal/auth/jwt"
	"fileoff/backend/internal/storage"
)

// JWTAuth JWT 认证中间件
type JWTAuth struct {
	jwtManager *jwt.Manager
	blacklist  storage.TokenBlacklist
	log        *zap.Logger
}

// NewJWTAuth 创建 JWT 认证中间件
//
// blacklist 可以为 nil，此时跳过吊销检查（纯内存部署没有黑名单存储）。
func NewJWTAuth(jwtManager *jwt.Manager, blacklist storage.TokenBlacklist, log *zap.Logger) *JWTAuth {
	return &JWTAuth{
		jwtManager: jwtManager,
		blacklist:  blacklist,
		log:        log.With(zap.String("component", "jwt_auth")),
	}
}

// RequireAuth 要求 JWT 认证
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			c.Abort()
			return
		}

		claims, err := ja.jwtManager.ValidateToken(token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			c.Abort()
			return
		}

		if ja.blacklist != nil {
			revoked, err := ja.blacklist.IsBlacklisted(token)
			if err != nil {
				// 黑名单存储不可用时放行，吊销是尽力而为的
				ja.log.Warn("blacklist check failed", zap.Error(err))
			} else if revoked {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": "token revoked",
				})
				c.Abort()
				return
			}
		}

		// 将用户信息存储到上下文，原始令牌供注销时写黑名单
		c.Set("userID", claims.UserID)
		c.Set("login", claims.Login)
		c.Set("token", token)

		c.Next()
	}
}

// OptionalAuth 可选的 JWT 认证
func (ja *JWTAuth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := ja.jwtManager.ValidateToken(token)
		if err == nil {
			c.Set("userID", claims.UserID)
			c.Set("login", claims.Login)
			c.Set("authenticated", true)
		}

		c.Next()
	}
}

// extractToken 从请求中提取 JWT token
func (ja *JWTAuth) extractToken(c *gin.Context) string {
	// 1. 从 Authorization header 提取
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// 2. 从 cookie 提取（WebSocket 握手走这条路）
	token, err := c.Cookie("access_token")
	if err == nil && token != "" {
		return token
	}

	return ""
}
