package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fileoff/backend/internal/domain"
	"fileoff/backend/internal/storage"
)

// Store SQL 元数据索引实现（支持 MySQL 5.7+ 和 PostgreSQL）。
//
// 三元组唯一性由 idx_transfer_triple 复合唯一索引在数据库层保证，
// 并发上传同一三元组时由唯一键冲突裁决，不存在 check-then-insert 竞态。
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 元数据存储。
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var dialector gorm.Dialector
	if driverName == "mysql" {
		dialector = mysql.New(mysql.Config{Conn: db})
	} else {
		dialector = postgres.New(postgres.Config{Conn: db})
	}

	gormDB, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 执行数据库迁移（使用 GORM AutoMigrate）。
func (s *Store) migrate() error {
	return s.gormDB.AutoMigrate(
		&domain.User{},
		&domain.Transfer{},
	)
}

// ========== 传输记录 ==========

// InsertTransfer 插入传输记录，三元组冲突时返回 ErrTransferExists。
func (s *Store) InsertTransfer(t *domain.Transfer) error {
	err := s.gormDB.Transaction(func(tx *gorm.DB) error {
		// 已过期但尚未被清理的旧记录占着唯一索引位，先腾出来
		if err := tx.Where(
			"sender_id = ? AND receiver_id = ? AND filename = ? AND expire_at <= ?",
			t.SenderID, t.ReceiverID, t.Filename, time.Now().UTC(),
		).Delete(&domain.Transfer{}).Error; err != nil {
			return err
		}
		return tx.Create(t).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrTransferExists
		}
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

// GetTransfer 根据 ID 获取传输记录。
func (s *Store) GetTransfer(id string) (*domain.Transfer, error) {
	var t domain.Transfer
	err := s.activeTransfers().Where("id = ?", id).First(&t).Error
	return transferResult(&t, err)
}

// GetTransferByReceiver 根据接收者与文件名获取传输记录。
//
// 多个发送者发送同名文件时返回最早创建的一条。
func (s *Store) GetTransferByReceiver(receiverID, filename string) (*domain.Transfer, error) {
	var t domain.Transfer
	err := s.activeTransfers().
		Where("receiver_id = ? AND filename = ?", receiverID, filename).
		Order("created_at ASC").
		First(&t).Error
	return transferResult(&t, err)
}

// GetTransferBySender 根据完整三元组获取传输记录。
func (s *Store) GetTransferBySender(senderID, receiverID, filename string) (*domain.Transfer, error) {
	var t domain.Transfer
	err := s.activeTransfers().
		Where("sender_id = ? AND receiver_id = ? AND filename = ?", senderID, receiverID, filename).
		First(&t).Error
	return transferResult(&t, err)
}

// ListTransfersBySender 返回指定发送者的全部未过期记录，按创建时间升序。
func (s *Store) ListTransfersBySender(senderID string) ([]domain.Transfer, error) {
	var list []domain.Transfer
	err := s.activeTransfers().
		Where("sender_id = ?", senderID).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers by sender: %w", err)
	}
	return list, nil
}

// ListTransfersByReceiver 返回指定接收者的全部未过期记录，按创建时间升序。
func (s *Store) ListTransfersByReceiver(receiverID string) ([]domain.Transfer, error) {
	var list []domain.Transfer
	err := s.activeTransfers().
		Where("receiver_id = ?", receiverID).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers by receiver: %w", err)
	}
	return list, nil
}

// ListExpiredTransfers 返回在指定时刻之前过期的全部记录，供清理任务使用。
func (s *Store) ListExpiredTransfers(before time.Time) ([]domain.Transfer, error) {
	var list []domain.Transfer
	err := s.gormDB.Model(&domain.Transfer{}).
		Where("expire_at <= ?", before.UTC()).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired transfers: %w", err)
	}
	return list, nil
}

// DeleteTransfer 删除传输记录。
func (s *Store) DeleteTransfer(id string) error {
	result := s.gormDB.Where("id = ?", id).Delete(&domain.Transfer{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete transfer: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrTransferNotFound
	}
	return nil
}

// activeTransfers 返回过滤掉已过期记录的查询（惰性过期）。
func (s *Store) activeTransfers() *gorm.DB {
	return s.gormDB.Model(&domain.Transfer{}).Where("expire_at > ?", time.Now().UTC())
}

// transferResult 统一转换单条查询结果。
func transferResult(t *domain.Transfer, err error) (*domain.Transfer, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to query transfer: %w", err)
	}
	return t, nil
}

// ========== 用户 ==========

// CreateUser 创建用户，登录名重复时返回 ErrLoginExists。
func (s *Store) CreateUser(user *domain.User) error {
	if err := s.gormDB.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrLoginExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	var user domain.User
	if err := s.gormDB.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// GetUserByLogin 根据登录名获取用户。
func (s *Store) GetUserByLogin(login string) (*domain.User, error) {
	var user domain.User
	if err := s.gormDB.Where("login = ?", login).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// UpdateLastLogin 更新用户最近登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	now := time.Now().UTC()
	result := s.gormDB.Model(&domain.User{}).
		Where("id = ?", userID).
		Update("last_login_at", &now)
	if result.Error != nil {
		return fmt.Errorf("failed to update last login: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// ========== 工具方法 ==========

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// OpenConnections 当前打开的数据库连接数，供指标上报使用。
func (s *Store) OpenConnections() int {
	if s.db == nil {
		return 0
	}
	return s.db.Stats().OpenConnections
}
