package taskscheduler

import "github.com/Swind/go-task-scheduler/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskscheduler package for most use cases.

// Task is the unit of work the scheduler owns between Schedule and completion
type Task = core.Task

// AsyncTask is the standard Task implementation carrying a typed result
type AsyncTask[T any] = core.AsyncTask[T]

// TaskBody computes a task result
type TaskBody[T any] = core.TaskBody[T]

// TaskTraits defines task attributes (priority, cancelability, name)
type TaskTraits = core.TaskTraits

// TaskPriority defines the priority levels for tasks
type TaskPriority = core.TaskPriority

// TaskID identifies a task
type TaskID = core.TaskID

// TaskDependencies describes what a task's result depends on
type TaskDependencies = core.TaskDependencies

// SelectionInfo identifies the selection state a task was computed against
type SelectionInfo = core.SelectionInfo

// TaskPredicate selects tasks for cancel, block and completion queries
type TaskPredicate = core.TaskPredicate

// TasksScheduler is the priority-aware scheduler
type TasksScheduler = core.TasksScheduler

// TasksSchedulerConfig holds optional scheduler handlers
type TasksSchedulerConfig = core.TasksSchedulerConfig

// ThreadAllocationsMap maps priority thresholds to slot counts
type ThreadAllocationsMap = core.ThreadAllocationsMap

// CancelationResult holds the tasks matched by a cancel request
type CancelationResult = core.CancelationResult

// CompletionFuture resolves when work is done
type CompletionFuture = core.CompletionFuture

// TaskBlocker holds back matching tasks until released
type TaskBlocker = core.TaskBlocker

// Executor runs task bodies
type Executor = core.Executor

// Priority constants
const (
	TaskPriorityBestEffort   TaskPriority = core.TaskPriorityBestEffort
	TaskPriorityUserVisible  TaskPriority = core.TaskPriorityUserVisible
	TaskPriorityUserBlocking TaskPriority = core.TaskPriorityUserBlocking
	TaskPriorityMax          TaskPriority = core.TaskPriorityMax
)

// Convenience functions for creating TaskTraits
var (
	DefaultTaskTraits   = core.DefaultTaskTraits
	TraitsUserBlocking  = core.TraitsUserBlocking
	TraitsBestEffort    = core.TraitsBestEffort
	TraitsNonCancelable = core.TraitsNonCancelable
)

// Predicates
var (
	AllTasks     = core.AllTasks
	ByConnection = core.ByConnection
	ByRuleset    = core.ByRuleset
	ByID         = core.ByID
)

// Errors
var (
	ErrTaskCanceled    = core.ErrTaskCanceled
	ErrSchedulerClosed = core.ErrSchedulerClosed
)

// NewTasksScheduler creates a scheduler dispatching onto executor.
func NewTasksScheduler(allocations ThreadAllocationsMap, executor Executor) *TasksScheduler {
	return core.NewTasksScheduler(allocations, executor)
}

// NewThreadAllocationsMap builds a sorted allocation map from threshold → slots.
func NewThreadAllocationsMap(tiers map[TaskPriority]int) ThreadAllocationsMap {
	return core.NewThreadAllocationsMap(tiers)
}

// NewTask creates a detached task; it runs once scheduled.
func NewTask[T any](body TaskBody[T], traits TaskTraits, options ...core.TaskOption) *AsyncTask[T] {
	return core.NewTask(body, traits, options...)
}

// WithDependencies attaches the dependency descriptor to a task.
var WithDependencies = core.WithDependencies

// WithBlockedTasksPredicate sets which tasks must not run concurrently with a task.
var WithBlockedTasksPredicate = core.WithBlockedTasksPredicate
