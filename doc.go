// Package taskscheduler provides a priority-aware in-process task scheduler.
//
// Tasks are scheduled onto a TasksScheduler, which bounds how many run at once per
// priority tier (the thread allocations map), keeps tasks that conflict with running
// work pending, and supports bulk cancellation by predicate.
//
// # Quick Start
//
// Initialize the global scheduler at application startup:
//
//	taskscheduler.InitGlobalScheduler(taskscheduler.NewThreadAllocationsMap(
//		map[taskscheduler.TaskPriority]int{
//			taskscheduler.TaskPriorityUserVisible:  2,
//			taskscheduler.TaskPriorityUserBlocking: 1,
//		}))
//	defer taskscheduler.ShutdownGlobalScheduler(5 * time.Second)
//
// Create and schedule a task:
//
//	task := taskscheduler.NewTask(func(ctx context.Context) (int, error) {
//		return 42, nil
//	}, taskscheduler.DefaultTaskTraits())
//	taskscheduler.GetGlobalScheduler().Schedule(task)
//	v, err := task.Result().Get(ctx)
//
// # Key Concepts
//
// ThreadAllocationsMap: tiers of (threshold, slots). A task takes a slot from the
// highest tier at or below its priority that still has one, so low-priority work can
// never occupy slots reserved for more urgent work.
//
// TaskDependencies and TaskPredicate: tasks carry a dependency descriptor
// (connection, ruleset, display type, selection) and predicates built on it drive
// Cancel, Block and GetAllTasksCompletion.
//
// Cancellation is cooperative: queued tasks are dropped, running tasks only observe
// their token. Non-cancelable tasks are never dropped.
//
// GoroutineThreadPool: a fixed worker pool implementing Executor, so task bodies run
// on bounded goroutines instead of one goroutine per task.
//
// For more details, see https://github.com/Swind/go-task-scheduler
package taskscheduler
