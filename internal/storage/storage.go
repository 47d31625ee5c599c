package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"fileoff/backend/internal/domain"
)

var (
	// ErrTransferNotFound 传输记录不存在（从未存在、已过期或已被取走）
	ErrTransferNotFound = errors.New("transfer not found")
	// ErrTransferExists 同一 (发送者, 接收者, 文件名) 三元组已存在记录
	ErrTransferExists = errors.New("transfer already exists")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrLoginExists 登录名已被占用
	ErrLoginExists = errors.New("login already exists")
	// ErrBlobNotFound 文件内容不存在
	ErrBlobNotFound = errors.New("blob not found")
)

// TransferRepository 定义传输元数据索引的存取操作。
//
// InsertTransfer 必须是对三元组的原子 insert-if-absent：
// 已存在时返回 ErrTransferExists，检查与插入之间不允许竞态窗口。
// 所有读取操作对已过期的记录一律视为不存在（惰性过期）。
type TransferRepository interface {
	InsertTransfer(t *domain.Transfer) error
	GetTransfer(id string) (*domain.Transfer, error)
	GetTransferByReceiver(receiverID, filename string) (*domain.Transfer, error)
	GetTransferBySender(senderID, receiverID, filename string) (*domain.Transfer, error)
	ListTransfersBySender(senderID string) ([]domain.Transfer, error)
	ListTransfersByReceiver(receiverID string) ([]domain.Transfer, error)
	ListExpiredTransfers(before time.Time) ([]domain.Transfer, error)
	DeleteTransfer(id string) error
}

// BlobStore 定义文件字节内容的流式存取操作。
//
// Save 要么写入完整内容，要么不留任何残余；部分写入必须回滚。
type BlobStore interface {
	Save(ctx context.Context, id string, r io.Reader) (int64, error)
	Open(id string) (io.ReadCloser, error)
	Delete(id string) error
	Exists(id string) bool
}

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByLogin(login string) (*domain.User, error)
	UpdateLastLogin(userID string) error
}

// TokenBlacklist 定义 JWT 黑名单操作。
type TokenBlacklist interface {
	AddToBlacklist(token string, ttl time.Duration) error
	IsBlacklisted(token string) (bool, error)
}

// RateLimitRepository 定义限流计数操作。
type RateLimitRepository interface {
	IncrementRateLimit(key string, window time.Duration) (int64, error)
	GetRateLimit(key string) (int64, error)
}

// Store 定义完整的元数据存储接口。
type Store interface {
	TransferRepository
	UserRepository

	Close() error
	Health() error
}
