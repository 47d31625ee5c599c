package httptransport

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fileoff/backend/internal/auth"
	jwtpkg "fileoff/backend/internal/auth/jwt"
	"fileoff/backend/internal/domain"
	"fileoff/backend/internal/monitoring"
	"fileoff/backend/internal/storage"
)

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service          // 认证业务服务
	jwtManager  *jwtpkg.Manager        // JWT 令牌管理器
	blacklist   storage.TokenBlacklist // 可以为 nil
	metrics     *monitoring.Metrics    // 可以为 nil
	log         *zap.Logger            // 结构化日志记录器
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *auth.Service, jwtManager *jwtpkg.Manager, blacklist storage.TokenBlacklist, metrics *monitoring.Metrics, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtManager:  jwtManager,
		blacklist:   blacklist,
		metrics:     metrics,
		log:         log.With(zap.String("component", "auth_handler")),
	}
}

type registerRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type authResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
}

type userResponse struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{ID: u.ID, Login: u.Login}
}

// Register 处理用户注册请求
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, T(c, msgInvalidRequest))
		return
	}

	user, err := h.authService.Register(auth.RegisterInput{
		Login:    req.Login,
		Password: req.Password,
	})

	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidLogin):
			BadRequest(c, T(c, msgInvalidLogin))
		case errors.Is(err, auth.ErrLoginExists):
			Conflict(c, T(c, msgLoginExists))
		case errors.Is(err, auth.ErrInvalidPassword):
			BadRequest(c, T(c, msgInvalidPassword))
		default:
			if key, ok := errKey(err); ok {
				BadRequest(c, T(c, key))
				return
			}
			h.log.Error("failed to register user", zap.Error(err))
			InternalError(c, T(c, msgRegisterFailed))
		}
		return
	}

	tokens, err := h.jwtManager.GenerateTokenPair(user.ID, user.Login)
	if err != nil {
		h.log.Error("failed to generate tokens", zap.Error(err))
		InternalError(c, T(c, msgInternalError))
		return
	}

	if h.metrics != nil {
		h.metrics.RecordUserRegistered()
	}

	h.log.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("login", user.Login),
	)

	Created(c, "registered", authResponse{
		User:         toUserResponse(user),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	})
}

// Login 处理用户登录请求
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, T(c, msgInvalidRequest))
		return
	}

	user, err := h.authService.Login(auth.LoginInput{
		Login:    req.Login,
		Password: req.Password,
	})

	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			Unauthorized(c, T(c, msgInvalidCredentials))
			return
		}
		h.log.Error("failed to login", zap.Error(err))
		InternalError(c, T(c, msgLoginFailed))
		return
	}

	tokens, err := h.jwtManager.GenerateTokenPair(user.ID, user.Login)
	if err != nil {
		h.log.Error("failed to generate tokens", zap.Error(err))
		InternalError(c, T(c, msgInternalError))
		return
	}

	h.log.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("login", user.Login),
	)

	Success(c, authResponse{
		User:         toUserResponse(user),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	})
}

// Refresh 刷新访问令牌
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, T(c, msgInvalidRequest))
		return
	}

	accessToken, err := h.jwtManager.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, jwtpkg.ErrExpiredToken):
			Unauthorized(c, T(c, msgTokenExpired))
		case errors.Is(err, jwtpkg.ErrInvalidToken):
			Unauthorized(c, T(c, msgTokenInvalid))
		default:
			h.log.Error("failed to refresh token", zap.Error(err))
			InternalError(c, T(c, msgInternalError))
		}
		return
	}

	Success(c, gin.H{
		"accessToken": accessToken,
	})
}

// Logout 注销当前访问令牌
//
// 令牌进入黑名单直到自然过期。没有黑名单存储（纯内存部署）时
// 注销只能靠客户端丢弃令牌。
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString("token")
	if token == "" {
		Unauthorized(c, T(c, msgAuthRequired))
		return
	}

	if h.blacklist != nil {
		claims, err := h.jwtManager.ValidateToken(token)
		if err == nil && claims.ExpiresAt != nil {
			if ttl := time.Until(claims.ExpiresAt.Time); ttl > 0 {
				if err := h.blacklist.AddToBlacklist(token, ttl); err != nil {
					h.log.Warn("failed to blacklist token", zap.Error(err))
				}
			}
		}
	}

	SuccessWithMsg(c, T(c, msgLoggedOut), nil)
}

// Me 获取当前用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		Unauthorized(c, T(c, msgAuthRequired))
		return
	}

	user, err := h.authService.GetUserByID(userID.(string))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			NotFound(c, T(c, msgInvalidCredentials))
			return
		}
		h.log.Error("failed to get user", zap.Error(err))
		InternalError(c, T(c, msgInternalError))
		return
	}

	Success(c, toUserResponse(user))
}
