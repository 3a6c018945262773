package core

import (
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task body panics during execution. The panic is
// already captured into the task result; the handler is for reporting.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - schedulerName: The name of the scheduler that ran the task
	// - task: The task whose body panicked
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(schedulerName string, task Task, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler reports panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic with its stack trace at error level.
func (h *DefaultPanicHandler) HandlePanic(schedulerName string, task Task, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("scheduler", schedulerName),
		F("task", task.Name()),
		F("task_id", task.ID()),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Cancellation states reported to Metrics.RecordTaskCanceled.
const (
	CanceledWhileQueued  = "queued"
	CanceledWhilePending = "pending"
	CanceledWhileRunning = "running"
)

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called outside the scheduler lock but on hot paths; keep them fast.
type Metrics interface {
	// RecordTaskDuration records how long a task body took to execute.
	RecordTaskDuration(schedulerName string, priority TaskPriority, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(schedulerName string, panicInfo any)

	// RecordTaskCanceled records a cancelable task hit by Cancel, by the state it was in.
	RecordTaskCanceled(schedulerName string, state string)

	// RecordQueueDepth records the number of tasks waiting in the queue and pending list.
	RecordQueueDepth(schedulerName string, depth int)

	// RecordTaskRejected records that a task was rejected (scheduled after shutdown).
	RecordTaskRejected(schedulerName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(schedulerName string, priority TaskPriority, duration time.Duration) {
}
func (m *NilMetrics) RecordTaskPanic(schedulerName string, panicInfo any)    {}
func (m *NilMetrics) RecordTaskCanceled(schedulerName string, state string)  {}
func (m *NilMetrics) RecordQueueDepth(schedulerName string, depth int)       {}
func (m *NilMetrics) RecordTaskRejected(schedulerName string, reason string) {}

// =============================================================================
// TasksSchedulerConfig: Configuration for TasksScheduler
// =============================================================================

// TasksSchedulerConfig holds configuration options for TasksScheduler.
// Everything except Allocations is optional; defaults are filled in by the constructor.
type TasksSchedulerConfig struct {
	// Name labels logs, metrics and stats. Defaults to "tasks-scheduler".
	Name string

	// Allocations is the initial thread allocations map.
	Allocations ThreadAllocationsMap

	// Executor runs task bodies. Defaults to one goroutine per task.
	Executor Executor

	// Logger defaults to a zerolog console logger on stderr.
	Logger Logger

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// HistorySize bounds the recent-execution ring buffer.
	HistorySize int
}

// DefaultTasksSchedulerConfig returns a config with default handlers and the given allocations.
func DefaultTasksSchedulerConfig(allocations ThreadAllocationsMap) *TasksSchedulerConfig {
	logger := NewDefaultLogger()
	return &TasksSchedulerConfig{
		Name:         defaultSchedulerName,
		Allocations:  allocations,
		Executor:     NewGoroutineExecutor(),
		Logger:       logger,
		PanicHandler: &DefaultPanicHandler{Logger: logger},
		Metrics:      &NilMetrics{},
		HistorySize:  defaultTaskHistoryCapacity,
	}
}
