package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fileoff/backend/internal/domain"
	"fileoff/backend/internal/storage"
)

func TestSweeper_RunOnce(t *testing.T) {
	svc, store := newTestService(t)

	// 一条已过期、一条未过期
	now := time.Now()
	expired := &domain.Transfer{
		ID: "t-expired", Filename: "old.txt", SenderID: "u-alice", ReceiverID: "u-bob",
		CreatedAt: now.Add(-2 * time.Hour), ExpireAt: now.Add(-time.Hour),
	}
	require.NoError(t, store.InsertTransfer(expired))
	_, err := svc.blobs.Save(context.Background(), expired.ID, strings.NewReader("stale"))
	require.NoError(t, err)

	fresh, err := svc.Upload(context.Background(), UploadInput{
		SenderID: "u-alice", ReceiverLogin: "bob", Filename: "fresh.txt",
		Content: strings.NewReader("keep me"),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := NewSweeper(svc, time.Minute, zap.NewNop())
	sw.workers.Start(ctx)
	defer sw.workers.Stop()

	removed, failed := sw.RunOnce(ctx)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, failed)

	// 过期记录连同内容一起消失
	assert.False(t, svc.blobs.Exists(expired.ID))
	list, err := store.ListExpiredTransfers(time.Now())
	require.NoError(t, err)
	assert.Empty(t, list)

	// 未过期的记录不受影响
	_, err = store.GetTransfer(fresh.ID)
	assert.NoError(t, err)
	assert.True(t, svc.blobs.Exists(fresh.ID))
}

func TestSweeper_RunOnceEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	ctx := context.Background()
	sw := NewSweeper(svc, time.Minute, zap.NewNop())
	sw.workers.Start(ctx)
	defer sw.workers.Stop()

	removed, failed := sw.RunOnce(ctx)
	assert.Zero(t, removed)
	assert.Zero(t, failed)
}

func TestSweeper_RunOnceReturnsWhenPoolStopsAccepting(t *testing.T) {
	// 池因关停不再接收任务时，RunOnce 必须及时返回而不是挂在 wg.Wait 上
	svc, store := newTestService(t)

	now := time.Now()
	for _, id := range []string{"t-exp-1", "t-exp-2"} {
		require.NoError(t, store.InsertTransfer(&domain.Transfer{
			ID: id, Filename: id + ".txt", SenderID: "u-alice", ReceiverID: "u-bob",
			CreatedAt: now.Add(-2 * time.Hour), ExpireAt: now.Add(-time.Hour),
		}))
	}

	poolCtx, cancel := context.WithCancel(context.Background())
	sw := NewSweeper(svc, time.Minute, zap.NewNop())
	sw.workers.Start(poolCtx)
	cancel()

	done := make(chan struct{})
	var removed, failed int
	go func() {
		removed, failed = sw.RunOnce(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunOnce did not return after the pool stopped accepting tasks")
	}
	sw.workers.Stop()

	assert.Zero(t, removed)
	assert.Zero(t, failed)
	// 没清掉的记录留给下一轮
	list, err := store.ListExpiredTransfers(time.Now())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSweeper_PurgeToleratesMissingBlob(t *testing.T) {
	// 与下载确认竞争时 Blob 可能已被删除，元数据仍要清掉
	svc, store := newTestService(t)

	now := time.Now()
	require.NoError(t, store.InsertTransfer(&domain.Transfer{
		ID: "t-no-blob", Filename: "gone.txt", SenderID: "u-alice", ReceiverID: "u-bob",
		CreatedAt: now.Add(-2 * time.Hour), ExpireAt: now.Add(-time.Hour),
	}))

	ctx := context.Background()
	sw := NewSweeper(svc, time.Minute, zap.NewNop())
	sw.workers.Start(ctx)
	defer sw.workers.Stop()

	removed, failed := sw.RunOnce(ctx)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, failed)

	_, err := store.ListExpiredTransfers(now)
	require.NoError(t, err)
	err = store.DeleteTransfer("t-no-blob")
	assert.ErrorIs(t, err, storage.ErrTransferNotFound)
}
