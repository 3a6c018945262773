package core

import "time"

// Task outcomes recorded in TaskExecutionRecord.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
	OutcomePanicked  = "panicked"
)

// TaskExecutionRecord captures a task that left the running set.
type TaskExecutionRecord struct {
	TaskID        TaskID
	Name          string
	SchedulerName string
	Priority      TaskPriority
	StartedAt     time.Time
	FinishedAt    time.Time
	Duration      time.Duration
	Outcome       string
	Error         string
}

// SchedulerStats represents runtime observability state for a tasks scheduler.
type SchedulerStats struct {
	Name         string
	ThreadsCount int
	Allocations  ThreadAllocationsMap
	Queued       int
	Pending      int
	Running      int
	Blockers     int
	Closed       bool
	LastTaskName string
	LastTaskAt   time.Time
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID      string
	Workers int
	Queued  int
	Active  int
	Running bool
}
