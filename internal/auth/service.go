package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fileoff/backend/internal/domain"
	"fileoff/backend/internal/storage"
)

var (
	// ErrInvalidLogin 登录名格式不合法
	ErrInvalidLogin = errors.New("invalid login format")
	// ErrInvalidPassword 密码不符合要求
	ErrInvalidPassword = errors.New("invalid password")
	// ErrLoginExists 登录名已被占用
	ErrLoginExists = errors.New("login already exists")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// 登录名只允许字母数字和少量分隔符，3-32 位
var loginRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]{2,31}$`)

// Service 认证服务
//
// 负责注册、登录和密码校验。令牌的签发与验证由 jwt.Manager 负责。
type Service struct {
	users storage.UserRepository
}

// NewService 创建认证服务
func NewService(users storage.UserRepository) *Service {
	return &Service{users: users}
}

// RegisterInput 注册输入
type RegisterInput struct {
	Login    string
	Password string
}

// LoginInput 登录输入
type LoginInput struct {
	Login    string
	Password string
}

// Register 用户注册
func (s *Service) Register(input RegisterInput) (*domain.User, error) {
	login := strings.ToLower(strings.TrimSpace(input.Login))

	if !ValidateLogin(login) {
		return nil, ErrInvalidLogin
	}
	if err := ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Login:        login,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	// 唯一性由存储层保证，竞争条件下两个同名注册只会成功一个
	if err := s.users.CreateUser(user); err != nil {
		if errors.Is(err, storage.ErrLoginExists) {
			return nil, ErrLoginExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Login 用户登录
func (s *Service) Login(input LoginInput) (*domain.User, error) {
	login := strings.ToLower(strings.TrimSpace(input.Login))

	user, err := s.users.GetUserByLogin(login)
	if err != nil {
		// 不区分"用户不存在"和"密码错误"，避免探测已注册的登录名
		return nil, ErrInvalidCredentials
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	_ = s.users.UpdateLastLogin(user.ID)

	return user, nil
}

// GetUserByID 根据 ID 获取用户
func (s *Service) GetUserByID(userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ValidateLogin 验证登录名格式
func ValidateLogin(login string) bool {
	return loginRegex.MatchString(login)
}

// ValidatePassword 验证密码强度
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	// bcrypt 只处理前 72 字节
	if len(password) > 72 {
		return errors.New("password must be at most 72 characters")
	}
	return nil
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
