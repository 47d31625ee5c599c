package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fileoff/backend/internal/config"
	"fileoff/backend/internal/domain"
	"fileoff/backend/internal/security"
	"fileoff/backend/internal/storage"
)

var (
	// ErrSelfTransfer 不允许给自己发送文件
	ErrSelfTransfer = errors.New("cannot send file to yourself")
	// ErrReceiverNotFound 接收者不存在
	ErrReceiverNotFound = errors.New("receiver not found")
	// ErrFilenameRequired 文件名不能为空
	ErrFilenameRequired = errors.New("filename is required")
	// ErrFileTooLarge 文件超过大小限制
	ErrFileTooLarge = errors.New("file too large")
	// ErrUploadFailed 上传过程中发生 I/O 错误，已写入的内容已回滚
	ErrUploadFailed = errors.New("upload failed")
	// ErrDeleteFailed 文件内容删除失败，元数据保留以便重试
	ErrDeleteFailed = errors.New("delete failed")
)

// Notifier 在上传完成后向接收者推送通知。
type Notifier interface {
	NotifyTransfer(receiverID string, t *domain.Transfer)
}

// TransferService 封装文件传输的核心业务操作。
//
// 所有依赖在构造时注入：元数据索引、Blob 存储、用户查询。
// 服务自身不持有其他可变共享状态，记录只会被创建和删除，不会原地修改。
type TransferService struct {
	repo     storage.TransferRepository
	users    storage.UserRepository
	blobs    storage.BlobStore
	cfg      *config.Config
	logger   *zap.Logger
	notifier Notifier
}

// NewTransferService 创建传输业务服务。
func NewTransferService(
	repo storage.TransferRepository,
	users storage.UserRepository,
	blobs storage.BlobStore,
	cfg *config.Config,
	logger *zap.Logger,
) *TransferService {
	return &TransferService{
		repo:   repo,
		users:  users,
		blobs:  blobs,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "transfer_service")),
	}
}

// SetNotifier 设置上传完成通知器（可选）。
func (s *TransferService) SetNotifier(n Notifier) {
	s.notifier = n
}

// UploadInput 定义上传所需的输入。
type UploadInput struct {
	SenderID      string
	ReceiverLogin string
	Filename      string
	MimeType      string
	ExpiresIn     string // 保留时长，如 "24h"；为空或无效时使用默认值
	Content       io.Reader
}

// Upload 接收文件流并创建传输记录。
//
// 流程：校验接收者 → 查重 → 流式写入 Blob → 原子插入元数据。
// 任何一步失败都不会留下孤立的 Blob 或元数据：Blob 写入失败即回滚，
// 元数据插入失败时删除刚写入的 Blob。
func (s *TransferService) Upload(ctx context.Context, input UploadInput) (*domain.Transfer, error) {
	filename := security.SanitizeFilename(input.Filename)
	if filename == "" {
		return nil, ErrFilenameRequired
	}

	receiver, err := s.users.GetUserByLogin(strings.TrimSpace(input.ReceiverLogin))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, err
	}
	if receiver.ID == input.SenderID {
		return nil, ErrSelfTransfer
	}

	// 提前查重，避免白白搬运字节；最终裁决仍由索引层的原子插入完成
	if _, err := s.repo.GetTransferBySender(input.SenderID, receiver.ID, filename); err == nil {
		return nil, storage.ErrTransferExists
	} else if !errors.Is(err, storage.ErrTransferNotFound) {
		return nil, err
	}

	id := uuid.NewString()

	// 多读一个字节以区分"正好等于上限"和"超限"
	content := input.Content
	maxSize := s.cfg.Transfer.MaxFileSize
	if maxSize > 0 {
		content = io.LimitReader(content, maxSize+1)
	}

	size, err := s.blobs.Save(ctx, id, content)
	if err != nil {
		s.logger.Error("blob write failed, rolled back",
			zap.String("transfer_id", id),
			zap.String("filename", filename),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	if maxSize > 0 && size > maxSize {
		if delErr := s.blobs.Delete(id); delErr != nil && !errors.Is(delErr, storage.ErrBlobNotFound) {
			s.logger.Error("failed to clean up oversized blob",
				zap.String("transfer_id", id),
				zap.Error(delErr),
			)
		}
		return nil, ErrFileTooLarge
	}

	now := time.Now().UTC()
	transfer := &domain.Transfer{
		ID:         id,
		Filename:   filename,
		MimeType:   input.MimeType,
		Size:       size,
		SenderID:   input.SenderID,
		ReceiverID: receiver.ID,
		CreatedAt:  now,
		ExpireAt:   now.Add(s.resolveTTL(input.ExpiresIn)),
	}

	if err := s.repo.InsertTransfer(transfer); err != nil {
		// 元数据没写成，Blob 不能留
		if delErr := s.blobs.Delete(id); delErr != nil && !errors.Is(delErr, storage.ErrBlobNotFound) {
			s.logger.Error("failed to clean up blob after metadata insert failure",
				zap.String("transfer_id", id),
				zap.Error(delErr),
			)
		}
		if errors.Is(err, storage.ErrTransferExists) {
			return nil, storage.ErrTransferExists
		}
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	s.logger.Info("file uploaded",
		zap.String("transfer_id", id),
		zap.String("filename", filename),
		zap.Int64("size", size),
		zap.String("sender_id", input.SenderID),
		zap.String("receiver_id", receiver.ID),
		zap.Time("expire_at", transfer.ExpireAt),
	)

	if s.notifier != nil {
		s.notifier.NotifyTransfer(receiver.ID, transfer)
	}

	return transfer, nil
}

// BeginDownload 查找接收者的文件并返回内容读取流。
//
// 返回的流由调用方负责关闭；记录此时尚未删除。
// 调用方在确认全部字节送达后调用 CompleteDownload 触发删除，
// 中途放弃则什么都不用做，记录保持可重试。
func (s *TransferService) BeginDownload(receiverID, filename string) (*domain.Transfer, io.ReadCloser, error) {
	transfer, err := s.repo.GetTransferByReceiver(receiverID, filename)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.blobs.Open(transfer.ID)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			// 与并发删除竞争输了，对外表现为记录不存在
			return nil, nil, storage.ErrTransferNotFound
		}
		return nil, nil, err
	}

	return transfer, rc, nil
}

// CompleteDownload 在调用方确认完整送达后删除文件内容与元数据。
//
// 与并发下载或清理任务竞争时删除是幂等的：内容或元数据已被对方删除
// 则视为已完成，不作为错误。
func (s *TransferService) CompleteDownload(t *domain.Transfer) error {
	if err := s.blobs.Delete(t.ID); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	if err := s.repo.DeleteTransfer(t.ID); err != nil && !errors.Is(err, storage.ErrTransferNotFound) {
		return err
	}

	s.logger.Info("file delivered and removed",
		zap.String("transfer_id", t.ID),
		zap.String("filename", t.Filename),
		zap.String("receiver_id", t.ReceiverID),
	)
	return nil
}

// Delete 发送者主动删除未被取走的文件。
//
// Blob 删除失败时保留元数据返回 ErrDeleteFailed，调用方可重试；
// 不会出现有元数据而无内容的中间态对外可见。
func (s *TransferService) Delete(senderID, receiverLogin, filename string) error {
	receiver, err := s.users.GetUserByLogin(strings.TrimSpace(receiverLogin))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrReceiverNotFound
		}
		return err
	}

	transfer, err := s.repo.GetTransferBySender(senderID, receiver.ID, filename)
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(transfer.ID); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		s.logger.Error("blob delete failed, metadata kept for retry",
			zap.String("transfer_id", transfer.ID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	if err := s.repo.DeleteTransfer(transfer.ID); err != nil && !errors.Is(err, storage.ErrTransferNotFound) {
		return err
	}

	s.logger.Info("file deleted by sender",
		zap.String("transfer_id", transfer.ID),
		zap.String("filename", filename),
		zap.String("sender_id", senderID),
	)
	return nil
}

// ListSent 返回用户发出的全部文件，附带接收者登录名，按创建时间升序。
func (s *TransferService) ListSent(userID string) ([]domain.SentEntry, error) {
	transfers, err := s.repo.ListTransfersBySender(userID)
	if err != nil {
		return nil, err
	}

	logins := s.resolveLogins(transfers, func(t *domain.Transfer) string { return t.ReceiverID })
	entries := make([]domain.SentEntry, 0, len(transfers))
	for _, t := range transfers {
		entries = append(entries, domain.SentEntry{
			Filename:      t.Filename,
			CreatedAt:     t.CreatedAt,
			ReceiverLogin: logins[t.ReceiverID],
		})
	}
	return entries, nil
}

// ListReceived 返回发给用户的全部文件，附带发送者登录名，按创建时间升序。
func (s *TransferService) ListReceived(userID string) ([]domain.ReceivedEntry, error) {
	transfers, err := s.repo.ListTransfersByReceiver(userID)
	if err != nil {
		return nil, err
	}

	logins := s.resolveLogins(transfers, func(t *domain.Transfer) string { return t.SenderID })
	entries := make([]domain.ReceivedEntry, 0, len(transfers))
	for _, t := range transfers {
		entries = append(entries, domain.ReceivedEntry{
			Filename:    t.Filename,
			CreatedAt:   t.CreatedAt,
			SenderLogin: logins[t.SenderID],
		})
	}
	return entries, nil
}

// resolveLogins 批量解析用户登录名，同一用户只查询一次。
func (s *TransferService) resolveLogins(transfers []domain.Transfer, pick func(*domain.Transfer) string) map[string]string {
	logins := make(map[string]string)
	for i := range transfers {
		id := pick(&transfers[i])
		if _, ok := logins[id]; ok {
			continue
		}
		user, err := s.users.GetUserByID(id)
		if err != nil {
			s.logger.Warn("failed to resolve user login", zap.String("user_id", id), zap.Error(err))
			logins[id] = ""
			continue
		}
		logins[id] = user.Login
	}
	return logins
}

// resolveTTL 解析上传方指定的保留时长。
//
// 为空、格式错误或非正数时回退到默认值，超过上限时取上限；
// 保留时长问题从不导致上传失败。
func (s *TransferService) resolveTTL(expiresIn string) time.Duration {
	if expiresIn == "" {
		return s.cfg.Transfer.DefaultTTL
	}
	ttl, err := time.ParseDuration(expiresIn)
	if err != nil || ttl <= 0 {
		s.logger.Debug("invalid expiry duration, using default",
			zap.String("expires_in", expiresIn),
			zap.Duration("default", s.cfg.Transfer.DefaultTTL),
		)
		return s.cfg.Transfer.DefaultTTL
	}
	if ttl > s.cfg.Transfer.MaxTTL {
		return s.cfg.Transfer.MaxTTL
	}
	return ttl
}
