package taskscheduler_test

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	taskscheduler "github.com/Swind/go-task-scheduler"
	"github.com/Swind/go-task-scheduler/core"
)

// TestThreadPoolScheduler_GC_BasicCleanup tests ThreadPool and TasksScheduler GC
// Given: a ThreadPool with a TasksScheduler that has executed tasks
// When: both are shut down and references are dropped
// Then: both ThreadPool and TasksScheduler are garbage collected
func TestThreadPoolScheduler_GC_BasicCleanup(t *testing.T) {
	// Arrange - Create ThreadPool and TasksScheduler with finalizers
	var poolFinalized atomic.Bool
	var schedulerFinalized atomic.Bool

	pool := taskscheduler.NewGoroutineThreadPoolWithLogger("test-pool", 2, core.NewNoOpLogger())
	pool.Start(context.Background())

	cfg := core.DefaultTasksSchedulerConfig(core.UniformAllocations(2))
	cfg.Executor = pool
	cfg.Logger = core.NewNoOpLogger()
	scheduler := core.NewTasksSchedulerWithConfig(cfg)

	runtime.SetFinalizer(pool, func(p *taskscheduler.GoroutineThreadPool) {
		poolFinalized.Store(true)
	})
	runtime.SetFinalizer(scheduler, func(s *core.TasksScheduler) {
		schedulerFinalized.Store(true)
	})

	// Act - Execute tasks and shutdown
	var executedCount int32
	for i := 0; i < 10; i++ {
		scheduler.Schedule(core.NewTask(func(ctx context.Context) (struct{}, error) {
			time.Sleep(1 * time.Millisecond)
			atomic.AddInt32(&executedCount, 1)
			return struct{}{}, nil
		}, core.DefaultTaskTraits()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := scheduler.GetAllTasksCompletion(nil).Wait(ctx); err != nil {
		t.Fatalf("tasks did not complete: %v", err)
	}
	if err := scheduler.ShutdownGraceful(ctx); err != nil {
		t.Fatalf("ShutdownGraceful() = %v", err)
	}
	pool.Stop()

	scheduler = nil
	pool = nil

	// Force GC
	for i := 0; i < 5; i++ {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}

	// Assert - Verify both objects were collected
	if got := atomic.LoadInt32(&executedCount); got != 10 {
		t.Errorf("executed = %d, want 10", got)
	}
	if !poolFinalized.Load() {
		t.Error("ThreadPool GC'd: got = false, want = true")
	}
	if !schedulerFinalized.Load() {
		t.Error("TasksScheduler GC'd: got = false, want = true")
	}
}
