package taskscheduler

import (
	"context"
	"testing"
	"time"
)

// TestGlobalSchedulerRunsTasks verifies the global helpers wire a scheduler onto a pool
// Given: An initialized global scheduler with two slots
// When: A task is scheduled through the package-level wrappers
// Then: It runs on the global pool and its result resolves
func TestGlobalSchedulerRunsTasks(t *testing.T) {
	// Arrange
	InitGlobalScheduler(NewThreadAllocationsMap(map[TaskPriority]int{TaskPriorityMax: 2}))
	defer func() {
		if err := ShutdownGlobalScheduler(time.Second); err != nil {
			t.Errorf("ShutdownGlobalScheduler() = %v", err)
		}
	}()

	// Act
	gp := GlobalThreadPool()
	s := GetGlobalScheduler()
	task := NewTask(func(ctx context.Context) (string, error) {
		return "done", nil
	}, DefaultTaskTraits())
	s.Schedule(task)

	// Assert
	if gp == nil || gp.WorkerCount() != 2 {
		t.Fatalf("GlobalThreadPool() = %v, want pool with 2 workers", gp)
	}
	if s.ThreadsCount() != 2 {
		t.Fatalf("ThreadsCount() = %d, want 2", s.ThreadsCount())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := task.Result().Get(ctx)
	if err != nil || v != "done" {
		t.Fatalf("Result() = (%q, %v), want (\"done\", nil)", v, err)
	}
}

// TestGlobalSchedulerInitTwiceKeepsFirst verifies InitGlobalScheduler is idempotent
// Given: An initialized global scheduler
// When: InitGlobalScheduler is called again with different allocations
// Then: The original scheduler is kept
func TestGlobalSchedulerInitTwiceKeepsFirst(t *testing.T) {
	// Arrange
	InitGlobalScheduler(NewThreadAllocationsMap(map[TaskPriority]int{TaskPriorityMax: 1}))
	defer ShutdownGlobalScheduler(time.Second)
	first := GetGlobalScheduler()

	// Act
	InitGlobalScheduler(NewThreadAllocationsMap(map[TaskPriority]int{TaskPriorityMax: 4}))

	// Assert
	if GetGlobalScheduler() != first {
		t.Fatal("second InitGlobalScheduler replaced the scheduler")
	}
	if first.ThreadsCount() != 1 {
		t.Fatalf("ThreadsCount() = %d, want 1", first.ThreadsCount())
	}
}

// TestGetGlobalSchedulerPanicsWhenUninitialized verifies the accessor guards misuse
// Given: No global scheduler
// When: GetGlobalScheduler is called
// Then: It panics
func TestGetGlobalSchedulerPanicsWhenUninitialized(t *testing.T) {
	// Arrange
	if err := ShutdownGlobalScheduler(time.Second); err != nil {
		t.Fatalf("ShutdownGlobalScheduler() = %v", err)
	}
	defer func() {
		// Assert
		if recover() == nil {
			t.Fatal("GetGlobalScheduler() did not panic")
		}
	}()

	// Act
	GetGlobalScheduler()
}
