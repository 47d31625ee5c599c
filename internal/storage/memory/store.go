package memory

import (
	"sort"
	"sync"
	"time"

	"fileoff/backend/internal/domain"
	"fileoff/backend/internal/storage"
)

// Store 使用内存保存传输记录与用户数据，主要用于开发验证与测试。
//
// 过期记录对所有读取操作不可见（惰性过期），但元数据不会在读取路径上被
// 物理删除：物理删除始终与文件内容一起由传输引擎的删除操作完成，
// 避免留下无主的文件内容。
type Store struct {
	mu        sync.RWMutex
	transfers map[string]*domain.Transfer // transferID -> transfer
	byTriple  map[tripleKey]string        // (sender, receiver, filename) -> transferID
	users     map[string]*domain.User     // userID -> user
	byLogin   map[string]string           // login -> userID
}

// tripleKey 三元组索引键。
type tripleKey struct {
	senderID   string
	receiverID string
	filename   string
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		transfers: make(map[string]*domain.Transfer),
		byTriple:  make(map[tripleKey]string),
		users:     make(map[string]*domain.User),
		byLogin:   make(map[string]string),
	}
}

// ========== 传输记录 ==========

// InsertTransfer 原子地插入传输记录。
//
// 三元组已被占用时返回 ErrTransferExists；检查与写入在同一次持锁内完成。
// 占用三元组的旧记录若已过期，则视为不存在，允许覆盖其索引位。
func (s *Store) InsertTransfer(t *domain.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tripleKey{t.SenderID, t.ReceiverID, t.Filename}
	if existingID, ok := s.byTriple[key]; ok {
		existing := s.transfers[existingID]
		if existing != nil && !existing.Expired(time.Now()) {
			return storage.ErrTransferExists
		}
	}

	cp := *t
	s.transfers[t.ID] = &cp
	s.byTriple[key] = t.ID
	return nil
}

// GetTransfer 根据 ID 获取传输记录。
func (s *Store) GetTransfer(id string) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transfers[id]
	if !ok || t.Expired(time.Now()) {
		return nil, storage.ErrTransferNotFound
	}
	cp := *t
	return &cp, nil
}

// GetTransferByReceiver 根据接收者与文件名获取传输记录。
//
// 多个发送者向同一接收者发送同名文件时，返回最早创建的一条。
func (s *Store) GetTransferByReceiver(receiverID, filename string) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var found *domain.Transfer
	for _, t := range s.transfers {
		if t.ReceiverID != receiverID || t.Filename != filename || t.Expired(now) {
			continue
		}
		if found == nil || t.CreatedAt.Before(found.CreatedAt) {
			found = t
		}
	}
	if found == nil {
		return nil, storage.ErrTransferNotFound
	}
	cp := *found
	return &cp, nil
}

// GetTransferBySender 根据完整三元组获取传输记录。
func (s *Store) GetTransferBySender(senderID, receiverID, filename string) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byTriple[tripleKey{senderID, receiverID, filename}]
	if !ok {
		return nil, storage.ErrTransferNotFound
	}
	t, ok := s.transfers[id]
	if !ok || t.Expired(time.Now()) {
		return nil, storage.ErrTransferNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTransfersBySender 返回指定发送者的全部未过期记录，按创建时间升序。
func (s *Store) ListTransfersBySender(senderID string) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	result := make([]domain.Transfer, 0)
	for _, t := range s.transfers {
		if t.SenderID == senderID && !t.Expired(now) {
			result = append(result, *t)
		}
	}
	sortByCreatedAt(result)
	return result, nil
}

// ListTransfersByReceiver 返回指定接收者的全部未过期记录，按创建时间升序。
func (s *Store) ListTransfersByReceiver(receiverID string) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	result := make([]domain.Transfer, 0)
	for _, t := range s.transfers {
		if t.ReceiverID == receiverID && !t.Expired(now) {
			result = append(result, *t)
		}
	}
	sortByCreatedAt(result)
	return result, nil
}

// ListExpiredTransfers 返回在指定时刻之前过期的全部记录，供清理任务使用。
func (s *Store) ListExpiredTransfers(before time.Time) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transfer, 0)
	for _, t := range s.transfers {
		if t.Expired(before) {
			result = append(result, *t)
		}
	}
	sortByCreatedAt(result)
	return result, nil
}

// DeleteTransfer 删除传输记录。
func (s *Store) DeleteTransfer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return storage.ErrTransferNotFound
	}

	key := tripleKey{t.SenderID, t.ReceiverID, t.Filename}
	if s.byTriple[key] == id {
		delete(s.byTriple, key)
	}
	delete(s.transfers, id)
	return nil
}

// ========== 用户 ==========

// CreateUser 创建用户，登录名重复时返回 ErrLoginExists。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byLogin[user.Login]; ok {
		return storage.ErrLoginExists
	}

	cp := *user
	s.users[user.ID] = &cp
	s.byLogin[user.Login] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// GetUserByLogin 根据登录名获取用户。
func (s *Store) GetUserByLogin(login string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byLogin[login]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

// UpdateLastLogin 更新用户最近登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	now := time.Now().UTC()
	user.LastLoginAt = &now
	return nil
}

// ========== 工具方法 ==========

// Close 实现 storage.Store 接口，内存存储无需释放资源。
func (s *Store) Close() error {
	return nil
}

// Health 实现 storage.Store 接口。
func (s *Store) Health() error {
	return nil
}

// sortByCreatedAt 按创建时间升序排序，保证列表顺序稳定。
func sortByCreatedAt(list []domain.Transfer) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
