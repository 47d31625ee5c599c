package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fileoff/backend/internal/config"
	"fileoff/backend/internal/domain"
	"fileoff/backend/internal/storage"
	"fileoff/backend/internal/storage/filesystem"
	"fileoff/backend/internal/storage/memory"
)

// MockBlobStore 用于注入 Blob 层故障
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Save(ctx context.Context, id string, r io.Reader) (int64, error) {
	args := m.Called(ctx, id, r)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBlobStore) Open(id string) (io.ReadCloser, error) {
	args := m.Called(id)
	if rc, ok := args.Get(0).(io.ReadCloser); ok {
		return rc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBlobStore) Delete(id string) error {
	return m.Called(id).Error(0)
}

func (m *MockBlobStore) Exists(id string) bool {
	return m.Called(id).Bool(0)
}

// MockTransferRepo 用于模拟元数据插入阶段的竞争失败
type MockTransferRepo struct {
	mock.Mock
}

func (m *MockTransferRepo) InsertTransfer(t *domain.Transfer) error {
	return m.Called(t).Error(0)
}

func (m *MockTransferRepo) GetTransfer(id string) (*domain.Transfer, error) {
	args := m.Called(id)
	if t, ok := args.Get(0).(*domain.Transfer); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransferRepo) GetTransferByReceiver(receiverID, filename string) (*domain.Transfer, error) {
	args := m.Called(receiverID, filename)
	if t, ok := args.Get(0).(*domain.Transfer); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransferRepo) GetTransferBySender(senderID, receiverID, filename string) (*domain.Transfer, error) {
	args := m.Called(senderID, receiverID, filename)
	if t, ok := args.Get(0).(*domain.Transfer); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransferRepo) ListTransfersBySender(senderID string) ([]domain.Transfer, error) {
	args := m.Called(senderID)
	if list, ok := args.Get(0).([]domain.Transfer); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransferRepo) ListTransfersByReceiver(receiverID string) ([]domain.Transfer, error) {
	args := m.Called(receiverID)
	if list, ok := args.Get(0).([]domain.Transfer); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransferRepo) ListExpiredTransfers(before time.Time) ([]domain.Transfer, error) {
	args := m.Called(before)
	if list, ok := args.Get(0).([]domain.Transfer); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransferRepo) DeleteTransfer(id string) error {
	return m.Called(id).Error(0)
}

type captureNotifier struct {
	receiverID string
	transfer   *domain.Transfer
}

func (n *captureNotifier) NotifyTransfer(receiverID string, t *domain.Transfer) {
	n.receiverID = receiverID
	n.transfer = t
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Transfer.DefaultTTL = 24 * time.Hour
	cfg.Transfer.MaxTTL = 7 * 24 * time.Hour
	cfg.Transfer.MaxFileSize = 1024
	return cfg
}

func newTestService(t *testing.T) (*TransferService, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	blobs, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	svc := NewTransferService(store, store, blobs, testConfig(), zap.NewNop())

	require.NoError(t, store.CreateUser(&domain.User{ID: "u-alice", Login: "alice", CreatedAt: time.Now()}))
	require.NoError(t, store.CreateUser(&domain.User{ID: "u-bob", Login: "bob", CreatedAt: time.Now()}))

	return svc, store
}

func TestTransferService_Upload(t *testing.T) {
	t.Run("上传成功并推送通知", func(t *testing.T) {
		svc, store := newTestService(t)
		notifier := &captureNotifier{}
		svc.SetNotifier(notifier)

		transfer, err := svc.Upload(context.Background(), UploadInput{
			SenderID:      "u-alice",
			ReceiverLogin: "bob",
			Filename:      "report.pdf",
			MimeType:      "application/pdf",
			Content:       strings.NewReader("file body"),
		})
		require.NoError(t, err)
		assert.Equal(t, "report.pdf", transfer.Filename)
		assert.Equal(t, int64(9), transfer.Size)
		assert.Equal(t, "u-bob", transfer.ReceiverID)
		assert.True(t, svc.blobs.Exists(transfer.ID))

		got, err := store.GetTransfer(transfer.ID)
		require.NoError(t, err)
		assert.Equal(t, transfer.ID, got.ID)

		assert.Equal(t, "u-bob", notifier.receiverID)
		require.NotNil(t, notifier.transfer)
		assert.Equal(t, transfer.ID, notifier.transfer.ID)
	})

	t.Run("文件名为空时拒绝", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Upload(context.Background(), UploadInput{
			SenderID:      "u-alice",
			ReceiverLogin: "bob",
			Filename:      "   ",
			Content:       strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, ErrFilenameRequired)
	})

	t.Run("路径穿越文件名被清洗为基础名", func(t *testing.T) {
		svc, _ := newTestService(t)
		transfer, err := svc.Upload(context.Background(), UploadInput{
			SenderID:      "u-alice",
			ReceiverLogin: "bob",
			Filename:      "../../etc/passwd",
			Content:       strings.NewReader("x"),
		})
		require.NoError(t, err)
		assert.Equal(t, "passwd", transfer.Filename)
	})

	t.Run("接收者不存在", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Upload(context.Background(), UploadInput{
			SenderID:      "u-alice",
			ReceiverLogin: "nobody",
			Filename:      "a.txt",
			Content:       strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, ErrReceiverNotFound)
	})

	t.Run("不允许发给自己", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Upload(context.Background(), UploadInput{
			SenderID:      "u-alice",
			ReceiverLogin: "alice",
			Filename:      "a.txt",
			Content:       strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, ErrSelfTransfer)
	})

	t.Run("同一三元组重复上传被拒绝", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Upload(context.Background(), UploadInput{
			SenderID:      "u-alice",
			ReceiverLogin: "bob",
			Filename:      "a.txt",
			Content:       strings.NewReader("first"),
		})
		require.NoError(t, err)

		_, err = svc.Upload(context.Background(), UploadInput{
			SenderID:      "u-alice",
			ReceiverLogin: "bob",
			Filename:      "a.txt",
			Content:       strings.NewReader("second"),
		})
		assert.ErrorIs(t, err, storage.ErrTransferExists)
	})

	t.Run("超过大小限制的文件被拒绝且不留 Blob", func(t *testing.T) {
		svc, store := newTestService(t)
		_, err := svc.Upload(context.Background(), UploadInput{
			SenderID:      "u-alice",
			ReceiverLogin: "bob",
			Filename:      "big.bin",
			Content:       strings.NewReader(strings.Repeat("x", 2048)),
		})
		assert.ErrorIs(t, err, ErrFileTooLarge)

		// 元数据没写入，三元组仍然可用
		_, err = store.GetTransferBySender("u-alice", "u-bob", "big.bin")
		assert.ErrorIs(t, err, storage.ErrTransferNotFound)
	})

	t.Run("刚好等于大小限制的文件通过", func(t *testing.T) {
		svc, _ := newTestService(t)
		transfer, err := svc.Upload(context.Background(), UploadInput{
			SenderID:      "u-alice",
			ReceiverLogin: "bob",
			Filename:      "exact.bin",
			Content:       strings.NewReader(strings.Repeat("x", 1024)),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1024), transfer.Size)
	})
}

func TestTransferService_UploadBlobFailure(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.CreateUser(&domain.User{ID: "u-alice", Login: "alice"}))
	require.NoError(t, store.CreateUser(&domain.User{ID: "u-bob", Login: "bob"}))

	blobs := new(MockBlobStore)
	blobs.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), io.ErrUnexpectedEOF)

	svc := NewTransferService(store, store, blobs, testConfig(), zap.NewNop())

	_, err := svc.Upload(context.Background(), UploadInput{
		SenderID:      "u-alice",
		ReceiverLogin: "bob",
		Filename:      "a.txt",
		Content:       strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, ErrUploadFailed)
	blobs.AssertExpectations(t)
}

func TestTransferService_UploadInsertRaceCleansBlob(t *testing.T) {
	// 预检通过但原子插入输给并发请求时，刚写入的 Blob 必须被删除
	store := memory.NewStore()
	require.NoError(t, store.CreateUser(&domain.User{ID: "u-alice", Login: "alice"}))
	require.NoError(t, store.CreateUser(&domain.User{ID: "u-bob", Login: "bob"}))

	repo := new(MockTransferRepo)
	repo.On("GetTransferBySender", "u-alice", "u-bob", "a.txt").Return(nil, storage.ErrTransferNotFound)
	repo.On("InsertTransfer", mock.Anything).Return(storage.ErrTransferExists)

	blobs := new(MockBlobStore)
	blobs.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(int64(1), nil)
	blobs.On("Delete", mock.Anything).Return(nil)

	svc := NewTransferService(repo, store, blobs, testConfig(), zap.NewNop())

	_, err := svc.Upload(context.Background(), UploadInput{
		SenderID:      "u-alice",
		ReceiverLogin: "bob",
		Filename:      "a.txt",
		Content:       strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, storage.ErrTransferExists)
	blobs.AssertCalled(t, "Delete", mock.Anything)
}

func TestTransferService_TwoPhaseDownload(t *testing.T) {
	svc, store := newTestService(t)

	uploaded, err := svc.Upload(context.Background(), UploadInput{
		SenderID:      "u-alice",
		ReceiverLogin: "bob",
		Filename:      "doc.txt",
		Content:       strings.NewReader("payload"),
	})
	require.NoError(t, err)

	t.Run("开始下载不删除记录", func(t *testing.T) {
		transfer, rc, err := svc.BeginDownload("u-bob", "doc.txt")
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "payload", string(data))
		assert.Equal(t, uploaded.ID, transfer.ID)

		// 未确认送达，记录保持可重试
		_, err = store.GetTransfer(uploaded.ID)
		assert.NoError(t, err)
	})

	t.Run("中断后可以重新下载", func(t *testing.T) {
		_, rc, err := svc.BeginDownload("u-bob", "doc.txt")
		require.NoError(t, err)
		require.NoError(t, rc.Close())

		_, rc, err = svc.BeginDownload("u-bob", "doc.txt")
		require.NoError(t, err)
		require.NoError(t, rc.Close())
	})

	t.Run("确认送达后记录与内容都被删除", func(t *testing.T) {
		transfer, rc, err := svc.BeginDownload("u-bob", "doc.txt")
		require.NoError(t, err)
		require.NoError(t, rc.Close())

		require.NoError(t, svc.CompleteDownload(transfer))
		assert.False(t, svc.blobs.Exists(transfer.ID))

		_, err = store.GetTransfer(transfer.ID)
		assert.ErrorIs(t, err, storage.ErrTransferNotFound)

		_, _, err = svc.BeginDownload("u-bob", "doc.txt")
		assert.ErrorIs(t, err, storage.ErrTransferNotFound)

		// 幂等：重复确认不报错
		assert.NoError(t, svc.CompleteDownload(transfer))
	})
}

func TestTransferService_BeginDownloadNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.BeginDownload("u-bob", "nothing.txt")
	assert.ErrorIs(t, err, storage.ErrTransferNotFound)
}

func TestTransferService_Delete(t *testing.T) {
	t.Run("发送者删除未取走的文件", func(t *testing.T) {
		svc, store := newTestService(t)
		transfer, err := svc.Upload(context.Background(), UploadInput{
			SenderID:      "u-alice",
			ReceiverLogin: "bob",
			Filename:      "a.txt",
			Content:       strings.NewReader("x"),
		})
		require.NoError(t, err)

		require.NoError(t, svc.Delete("u-alice", "bob", "a.txt"))
		assert.False(t, svc.blobs.Exists(transfer.ID))
		_, err = store.GetTransfer(transfer.ID)
		assert.ErrorIs(t, err, storage.ErrTransferNotFound)
	})

	t.Run("接收者不存在", func(t *testing.T) {
		svc, _ := newTestService(t)
		err := svc.Delete("u-alice", "nobody", "a.txt")
		assert.ErrorIs(t, err, ErrReceiverNotFound)
	})

	t.Run("记录不存在", func(t *testing.T) {
		svc, _ := newTestService(t)
		err := svc.Delete("u-alice", "bob", "nothing.txt")
		assert.ErrorIs(t, err, storage.ErrTransferNotFound)
	})

	t.Run("内容删除失败时保留元数据", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.CreateUser(&domain.User{ID: "u-alice", Login: "alice"}))
		require.NoError(t, store.CreateUser(&domain.User{ID: "u-bob", Login: "bob"}))

		now := time.Now()
		require.NoError(t, store.InsertTransfer(&domain.Transfer{
			ID: "t1", Filename: "a.txt", SenderID: "u-alice", ReceiverID: "u-bob",
			CreatedAt: now, ExpireAt: now.Add(time.Hour),
		}))

		blobs := new(MockBlobStore)
		blobs.On("Delete", "t1").Return(io.ErrClosedPipe)

		svc := NewTransferService(store, store, blobs, testConfig(), zap.NewNop())

		err := svc.Delete("u-alice", "bob", "a.txt")
		assert.ErrorIs(t, err, ErrDeleteFailed)

		// 元数据保留，调用方可以重试
		_, err = store.GetTransferBySender("u-alice", "u-bob", "a.txt")
		assert.NoError(t, err)
	})
}

func TestTransferService_Lists(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Upload(context.Background(), UploadInput{
		SenderID: "u-alice", ReceiverLogin: "bob", Filename: "a.txt",
		Content: strings.NewReader("x"),
	})
	require.NoError(t, err)
	_, err = svc.Upload(context.Background(), UploadInput{
		SenderID: "u-alice", ReceiverLogin: "bob", Filename: "b.txt",
		Content: strings.NewReader("x"),
	})
	require.NoError(t, err)
	_, err = svc.Upload(context.Background(), UploadInput{
		SenderID: "u-bob", ReceiverLogin: "alice", Filename: "reply.txt",
		Content: strings.NewReader("x"),
	})
	require.NoError(t, err)

	t.Run("发送列表带接收者登录名", func(t *testing.T) {
		sent, err := svc.ListSent("u-alice")
		require.NoError(t, err)
		require.Len(t, sent, 2)
		assert.Equal(t, "a.txt", sent[0].Filename)
		assert.Equal(t, "bob", sent[0].ReceiverLogin)
		assert.Equal(t, "b.txt", sent[1].Filename)
	})

	t.Run("接收列表带发送者登录名", func(t *testing.T) {
		received, err := svc.ListReceived("u-alice")
		require.NoError(t, err)
		require.Len(t, received, 1)
		assert.Equal(t, "reply.txt", received[0].Filename)
		assert.Equal(t, "bob", received[0].SenderLogin)
	})

	t.Run("没有记录时返回空列表", func(t *testing.T) {
		require.NoError(t, svc.users.(*memory.Store).CreateUser(&domain.User{ID: "u-carol", Login: "carol"}))
		sent, err := svc.ListSent("u-carol")
		require.NoError(t, err)
		assert.Empty(t, sent)
	})
}

func TestTransferService_ResolveTTL(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name      string
		expiresIn string
		want      time.Duration
	}{
		{"为空时使用默认值", "", 24 * time.Hour},
		{"格式错误时使用默认值", "tomorrow", 24 * time.Hour},
		{"非正数时使用默认值", "-1h", 24 * time.Hour},
		{"合法值原样使用", "2h", 2 * time.Hour},
		{"超过上限时取上限", "720h", 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.resolveTTL(tt.expiresIn))
		})
	}
}
