package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPool 固定大小的协程池
//
// 清理任务和通知推送都通过它执行，避免每条记录起一个协程。
// ctx 取消后池不再接收新任务，已入队的任务仍会执行完。
type WorkerPool struct {
	maxWorkers int
	tasks      chan func()
	ctx        context.Context
	wg         sync.WaitGroup
	logger     *zap.Logger
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - maxWorkers: 工作协程数量
//   - queueSize: 任务队列容量
func NewWorkerPool(maxWorkers, queueSize int) *WorkerPool {
	return &WorkerPool{
		maxWorkers: maxWorkers,
		tasks:      make(chan func(), queueSize),
		ctx:        context.Background(),
		logger:     zap.NewNop(),
	}
}

// WithLogger 设置日志器，任务 panic 时记录堆栈
func (p *WorkerPool) WithLogger(logger *zap.Logger) *WorkerPool {
	p.logger = logger.With(zap.String("component", "worker_pool"))
	return p
}

// Start 启动工作协程，ctx 只控制是否接收新任务
func (p *WorkerPool) Start(ctx context.Context) {
	p.ctx = ctx
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit 提交任务，队列满时阻塞
//
// ctx 已取消时拒绝任务并返回 false。
func (p *WorkerPool) Submit(task func()) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// TrySubmit 提交任务，队列满或 ctx 已取消时立即返回 false
func (p *WorkerPool) TrySubmit(task func()) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop 关闭队列并等待所有已入队任务执行完
func (p *WorkerPool) Stop() {
	close(p.tasks)
	p.wg.Wait()
}

// worker 只在队列关闭时退出，保证入队的任务不丢
func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for task := range p.tasks {
		p.run(task)
	}
}

// run 执行单个任务并吞掉 panic，单个任务崩溃不能拖垮整个池
func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task()
}
