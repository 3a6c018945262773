package taskscheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Swind/go-task-scheduler/core"
)

// GoroutineThreadPool is a fixed set of worker goroutines implementing core.Executor.
// Work submitted after Stop, or still queued when the pool stops, runs on the calling
// goroutine so every submission future resolves.
type GoroutineThreadPool struct {
	id        string
	workers   int
	queue     *core.WorkQueue
	logger    core.Logger
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex
}

var _ core.Executor = (*GoroutineThreadPool)(nil)

// NewGoroutineThreadPool creates a new GoroutineThreadPool
func NewGoroutineThreadPool(id string, workers int) *GoroutineThreadPool {
	return NewGoroutineThreadPoolWithLogger(id, workers, core.NewDefaultLogger())
}

func NewGoroutineThreadPoolWithLogger(id string, workers int, logger core.Logger) *GoroutineThreadPool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &GoroutineThreadPool{
		id:      id,
		workers: workers,
		queue:   core.NewWorkQueue(workers),
		logger:  logger,
	}
}

// Start starts all worker goroutines
func (tg *GoroutineThreadPool) Start(ctx context.Context) {
	tg.runningMu.Lock()
	defer tg.runningMu.Unlock()

	if tg.running {
		return // Already running
	}

	tg.ctx, tg.cancel = context.WithCancel(ctx)
	tg.running = true

	for i := 0; i < tg.workers; i++ {
		tg.wg.Add(1)
		go tg.workerLoop(i, tg.ctx)
	}
}

// Submit queues work for the next free worker.
func (tg *GoroutineThreadPool) Submit(work func()) *core.CompletionFuture {
	done, resolve := core.NewCompletionFuture()
	item := core.WorkItem{Work: work, Done: resolve}
	if !tg.queue.Push(item) {
		tg.runItem(-1, item)
	}
	return done
}

// Stop stops the workers. Queued work that no worker picked up runs on the caller.
func (tg *GoroutineThreadPool) Stop() {
	tg.queue.Close()

	tg.runningMu.Lock()
	wasRunning := tg.running
	tg.runningMu.Unlock()

	if wasRunning {
		if tg.cancel != nil {
			tg.cancel()
		}
		tg.Join()

		tg.runningMu.Lock()
		tg.running = false
		tg.runningMu.Unlock()
	}

	tg.drainOnCaller()
}

// StopGraceful waits for queued work to be picked up and finished before stopping.
// Returns error if timeout is exceeded before the queue drains.
func (tg *GoroutineThreadPool) StopGraceful(timeout time.Duration) error {
	tg.queue.Close()

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var err error
wait:
	for tg.IsRunning() {
		select {
		case <-deadline:
			err = fmt.Errorf("thread pool %s: graceful stop timeout after %v", tg.id, timeout)
			break wait
		case <-ticker.C:
			if tg.queue.QueuedCount() == 0 && tg.queue.ActiveCount() == 0 {
				break wait
			}
		}
	}

	tg.Stop()
	return err
}

func (tg *GoroutineThreadPool) drainOnCaller() {
	dropped := tg.queue.Clear()
	if len(dropped) == 0 {
		return
	}
	tg.logger.Warn("thread pool stopped with queued work, running it on caller",
		core.F("pool", tg.id),
		core.F("queued", len(dropped)),
	)
	for _, item := range dropped {
		tg.runItem(-1, item)
	}
}

// ID returns the ID of the thread pool
func (tg *GoroutineThreadPool) ID() string {
	return tg.id
}

// IsRunning returns whether the thread pool is running
func (tg *GoroutineThreadPool) IsRunning() bool {
	tg.runningMu.RLock()
	defer tg.runningMu.RUnlock()
	return tg.running
}

// workerLoop is the main loop for each worker
func (tg *GoroutineThreadPool) workerLoop(id int, ctx context.Context) {
	defer tg.wg.Done()
	stopCh := ctx.Done()

	for {
		item, ok := tg.queue.GetWork(stopCh)
		if !ok {
			return
		}
		tg.runItem(id, item)
	}
}

func (tg *GoroutineThreadPool) runItem(worker int, item core.WorkItem) {
	tg.queue.OnWorkStart()
	defer func() {
		tg.queue.OnWorkEnd()
		if r := recover(); r != nil {
			tg.logger.Error("worker recovered from panic",
				core.F("pool", tg.id),
				core.F("worker", worker),
				core.F("panic", r),
				core.F("stack", string(debug.Stack())),
			)
		}
		item.Done()
	}()
	item.Work()
}

// Join waits for all worker goroutines to finish
func (tg *GoroutineThreadPool) Join() {
	tg.wg.Wait()
}

// WorkerCount returns the number of workers
func (tg *GoroutineThreadPool) WorkerCount() int {
	return tg.workers
}

func (tg *GoroutineThreadPool) QueuedTaskCount() int {
	return tg.queue.QueuedCount()
}

func (tg *GoroutineThreadPool) ActiveTaskCount() int {
	return tg.queue.ActiveCount()
}

// Stats returns current observability data for this pool.
func (tg *GoroutineThreadPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:      tg.id,
		Workers: tg.workers,
		Queued:  tg.QueuedTaskCount(),
		Active:  tg.ActiveTaskCount(),
		Running: tg.IsRunning(),
	}
}

// =============================================================================
// Global Scheduler Helper (Singleton)
// =============================================================================

var (
	globalThreadPool *GoroutineThreadPool
	globalScheduler  *TasksScheduler
	globalMu         sync.Mutex
)

// InitGlobalScheduler starts a global thread pool sized to the allocation map and a
// scheduler dispatching onto it. Subsequent calls are no-ops.
func InitGlobalScheduler(allocations ThreadAllocationsMap) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		return // Already initialized
	}

	globalThreadPool = NewGoroutineThreadPool("global-pool", core.ComputeThreadsCount(allocations))
	globalThreadPool.Start(context.Background())
	globalScheduler = core.NewTasksScheduler(allocations, globalThreadPool)
}

// GetGlobalScheduler returns the global scheduler instance.
// It panics if InitGlobalScheduler has not been called.
func GetGlobalScheduler() *TasksScheduler {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler == nil {
		panic("GlobalScheduler not initialized. Call InitGlobalScheduler() first.")
	}
	return globalScheduler
}

// GlobalThreadPool returns the pool backing the global scheduler, or nil.
func GlobalThreadPool() *GoroutineThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalThreadPool
}

// ShutdownGlobalScheduler shuts the global scheduler down, waits up to timeout for
// outstanding tasks and stops the pool.
func ShutdownGlobalScheduler(timeout time.Duration) error {
	globalMu.Lock()
	scheduler, pool := globalScheduler, globalThreadPool
	globalScheduler, globalThreadPool = nil, nil
	globalMu.Unlock()

	if scheduler == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := scheduler.ShutdownGraceful(ctx)
	pool.Stop()
	return err
}
