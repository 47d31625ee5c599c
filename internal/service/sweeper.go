package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fileoff/backend/internal/monitoring"
	"fileoff/backend/internal/pool"
	"fileoff/backend/internal/storage"
)

// Sweeper 周期性删除过期的传输记录及其文件内容。
//
// 每轮先取出过期记录集合，再通过协程池并发执行逐条删除。
// 单条记录删除失败只记录日志并计数，不影响本轮其余记录。
// 与在途下载的竞争由删除操作的幂等性化解：谁先删成功算谁的，
// 输家观察到的只是"记录已不存在"。
type Sweeper struct {
	svc      *TransferService
	interval time.Duration
	workers  *pool.WorkerPool
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewSweeper 创建过期清理任务。
func NewSweeper(svc *TransferService, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		svc:      svc,
		interval: interval,
		workers:  pool.NewWorkerPool(4, 64).WithLogger(logger),
		logger:   logger.With(zap.String("component", "sweeper")),
	}
}

// WithMetrics 设置指标收集器（可选）。
func (s *Sweeper) WithMetrics(m *monitoring.Metrics) *Sweeper {
	s.metrics = m
	return s
}

// Run 按固定间隔执行清理，直到 ctx 取消。
func (s *Sweeper) Run(ctx context.Context) {
	s.workers.Start(ctx)
	defer s.workers.Stop()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			start := time.Now()
			removed, failed := s.RunOnce(ctx)
			if s.metrics != nil {
				s.metrics.RecordSweep(removed, failed, time.Since(start))
			}
			if removed > 0 || failed > 0 {
				s.logger.Info("expiry sweep completed",
					zap.Int("removed", removed),
					zap.Int("failed", failed),
				)
			}
		}
	}
}

// RunOnce 执行一轮清理，返回成功删除与失败的记录数。
func (s *Sweeper) RunOnce(ctx context.Context) (removed, failed int) {
	expired, err := s.svc.repo.ListExpiredTransfers(time.Now())
	if err != nil {
		s.logger.Error("failed to list expired transfers", zap.Error(err))
		return 0, 0
	}
	if len(expired) == 0 {
		return 0, 0
	}

	var (
		wg         sync.WaitGroup
		removedCnt atomic.Int64
		failedCnt  atomic.Int64
	)

	for i := range expired {
		if ctx.Err() != nil {
			break
		}
		t := expired[i]
		wg.Add(1)
		ok := s.workers.Submit(func() {
			defer wg.Done()
			if err := s.purge(t.ID); err != nil {
				failedCnt.Add(1)
				s.logger.Warn("failed to purge expired transfer",
					zap.String("transfer_id", t.ID),
					zap.String("filename", t.Filename),
					zap.Error(err),
				)
				return
			}
			removedCnt.Add(1)
		})
		if !ok {
			// 池已停止接收，撤销计数并结束本轮
			wg.Done()
			break
		}
	}

	wg.Wait()
	return int(removedCnt.Load()), int(failedCnt.Load())
}

// purge 删除单条记录的内容与元数据，两者都容忍"已被别人删掉"。
func (s *Sweeper) purge(transferID string) error {
	if err := s.svc.blobs.Delete(transferID); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		// 内容删不掉就保留元数据，下一轮重试
		return err
	}
	if err := s.svc.repo.DeleteTransfer(transferID); err != nil && !errors.Is(err, storage.ErrTransferNotFound) {
		return err
	}
	return nil
}
