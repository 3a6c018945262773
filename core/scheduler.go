package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultSchedulerName = "tasks-scheduler"

	// saturationLogEvery throttles the "no free slots" debug line.
	saturationLogEvery = 5 * time.Second
)

// TasksScheduler admits tasks, bounds how many run per priority tier, holds back tasks
// that conflict with running work and dispatches the rest to an Executor.
//
// All bookkeeping (queue, pending list, running set, blockers, allocations) is guarded
// by one mutex. Task bodies, executor submissions, logging and metrics happen outside it.
type TasksScheduler struct {
	mu sync.Mutex

	name         atomic.Pointer[string]
	executor     Executor
	allocations  ThreadAllocationsMap
	threadsCount int

	queue    *TasksQueue
	pending  []Task
	running  map[TaskID]Task
	blockers []*TaskBlocker
	closed   bool

	// Handlers and Metrics
	logger       Logger
	panicHandler PanicHandler
	metrics      Metrics

	history       *executionHistory
	saturationLog *rate.Limiter
}

// NewTasksScheduler creates a scheduler with default handlers. A nil executor runs
// each task on its own goroutine.
func NewTasksScheduler(allocations ThreadAllocationsMap, executor Executor) *TasksScheduler {
	config := DefaultTasksSchedulerConfig(allocations)
	if executor != nil {
		config.Executor = executor
	}
	return NewTasksSchedulerWithConfig(config)
}

func NewTasksSchedulerWithConfig(config *TasksSchedulerConfig) *TasksScheduler {
	if config == nil {
		config = DefaultTasksSchedulerConfig(nil)
	}

	s := &TasksScheduler{
		executor:      config.Executor,
		queue:         NewTasksQueue(),
		running:       make(map[TaskID]Task),
		logger:        config.Logger,
		panicHandler:  config.PanicHandler,
		metrics:       config.Metrics,
		history:       newExecutionHistory(config.HistorySize),
		saturationLog: rate.NewLimiter(rate.Every(saturationLogEvery), 1),
	}
	s.allocations = config.Allocations.Normalize()
	s.threadsCount = ComputeThreadsCount(s.allocations)

	// Use defaults if not provided
	name := config.Name
	if name == "" {
		name = defaultSchedulerName
	}
	s.name.Store(&name)
	if s.executor == nil {
		s.executor = NewGoroutineExecutor()
	}
	if s.logger == nil {
		s.logger = NewDefaultLogger()
	}
	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{Logger: s.logger}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}

	return s
}

// =============================================================================
// Scheduling
// =============================================================================

// Schedule queues the task and starts whatever can run. After Shutdown the task is
// completed immediately with ErrSchedulerClosed instead.
func (s *TasksScheduler) Schedule(t Task) {
	if t == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.reject(t)
		return
	}
	s.queue.Add(t)
	res := s.checkTasksLocked()
	s.mu.Unlock()

	s.logger.Debug("task scheduled",
		F("scheduler", s.Name()),
		F("task", t.Name()),
		F("task_id", t.ID()),
		F("priority", t.Priority()),
	)
	s.afterCheck(res)
}

// CheckTasks starts queued or pending tasks while capacity allows. It is a no-op when
// every slot is taken.
func (s *TasksScheduler) CheckTasks() {
	s.mu.Lock()
	res := s.checkTasksLocked()
	s.mu.Unlock()
	s.afterCheck(res)
}

type checkResult struct {
	start     []Task
	saturated bool
	depth     int
}

// checkTasksLocked moves runnable tasks into the running set and returns them for
// dispatch. The loop is bounded by the number of free slots.
func (s *TasksScheduler) checkTasksLocked() (res checkResult) {
	defer func() { res.depth = s.queue.Len() + len(s.pending) }()

	if len(s.running) >= s.threadsCount {
		res.saturated = s.queue.HasTasks() || len(s.pending) > 0
		return res
	}
	slotsToFill := s.threadsCount - len(s.running)

	available := SubtractAllocations(s.allocations, s.inUsePrioritiesLocked())
	filter := func(t Task) bool {
		if _, ok := FindAllocationSlot(available, t.Priority()); !ok {
			return false
		}
		return !s.isBlockedLocked(t)
	}

	for range slotsToFill {
		t := s.popTaskLocked(filter, available)
		if t == nil {
			break
		}
		if !s.canExecuteLocked(t) {
			s.pending = append(s.pending, t)
			continue
		}
		s.running[t.ID()] = t
		res.start = append(res.start, t)
	}
	return res
}

func (s *TasksScheduler) afterCheck(res checkResult) {
	if res.saturated && s.saturationLog.Allow() {
		s.logger.Debug("no free slots, tasks wait",
			F("scheduler", s.Name()),
			F("threads", s.ThreadsCount()),
			F("waiting", res.depth),
		)
	}
	s.metrics.RecordQueueDepth(s.Name(), res.depth)
	s.dispatch(res.start)
}

// popTaskLocked prefers pending tasks that no longer conflict with running work. Their
// slots were accounted for when they entered the pending list.
func (s *TasksScheduler) popTaskLocked(filter TaskPredicate, available ThreadAllocationsMap) Task {
	for i, t := range s.pending {
		if s.canExecuteLocked(t) && !s.isBlockedByBlockersLocked(t) {
			s.pending = slices.Delete(s.pending, i, i+1)
			return t
		}
	}

	t := s.queue.Pop(filter)
	if t == nil {
		return nil
	}
	if i, ok := FindAllocationSlot(available, t.Priority()); ok {
		available[i].Slots--
	}
	return t
}

func (s *TasksScheduler) inUsePrioritiesLocked() []TaskPriority {
	priorities := make([]TaskPriority, 0, len(s.running)+len(s.pending))
	for _, t := range s.running {
		priorities = append(priorities, t.Priority())
	}
	for _, t := range s.pending {
		priorities = append(priorities, t.Priority())
	}
	return priorities
}

// canExecuteLocked is false when t would block a task that is already running.
func (s *TasksScheduler) canExecuteLocked(t Task) bool {
	pred := t.BlockedTasksPredicate()
	if pred == nil {
		return true
	}
	for _, r := range s.running {
		if pred(r) {
			return false
		}
	}
	return true
}

// isBlockedLocked reports whether a pending or running task, or an external blocker,
// holds t back.
func (s *TasksScheduler) isBlockedLocked(t Task) bool {
	for _, p := range s.pending {
		if pred := p.BlockedTasksPredicate(); pred != nil && pred(t) {
			return true
		}
	}
	for _, r := range s.running {
		if pred := r.BlockedTasksPredicate(); pred != nil && pred(t) {
			return true
		}
	}
	return s.isBlockedByBlockersLocked(t)
}

func (s *TasksScheduler) isBlockedByBlockersLocked(t Task) bool {
	for _, b := range s.blockers {
		if b.IsBlocked(t) {
			return true
		}
	}
	return false
}

// =============================================================================
// Execution
// =============================================================================

func (s *TasksScheduler) dispatch(tasks []Task) {
	for _, t := range tasks {
		s.logger.Debug("task started",
			F("scheduler", s.Name()),
			F("task", t.Name()),
			F("task_id", t.ID()),
		)
		s.executor.Submit(func() { s.runTask(t) })
	}
}

func (s *TasksScheduler) runTask(t Task) {
	startedAt := time.Now()
	var err error
	if t.IsCanceled() {
		err = ErrTaskCanceled
	} else {
		err = executeGuarded(t)
	}
	finishedAt := time.Now()

	s.mu.Lock()
	delete(s.running, t.ID())
	res := s.checkTasksLocked()
	s.mu.Unlock()

	s.recordExecution(t, startedAt, finishedAt, err)
	t.Complete()
	s.afterCheck(res)
}

// executeGuarded keeps a misbehaving Task implementation from taking down the worker
// and leaving the task in the running set.
func executeGuarded(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskPanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t.Execute()
}

func (s *TasksScheduler) recordExecution(t Task, startedAt, finishedAt time.Time, err error) {
	record := TaskExecutionRecord{
		TaskID:        t.ID(),
		Name:          t.Name(),
		SchedulerName: s.Name(),
		Priority:      t.Priority(),
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		Duration:      finishedAt.Sub(startedAt),
		Outcome:       outcomeOf(err),
	}
	if err != nil {
		record.Error = err.Error()
	}
	s.history.Add(record)

	var pe *TaskPanicError
	switch {
	case errors.As(err, &pe):
		s.metrics.RecordTaskPanic(s.Name(), pe.Value)
		s.panicHandler.HandlePanic(s.Name(), t, pe.Value, pe.Stack)
	case record.Outcome == OutcomeCanceled:
		s.logger.Debug("task finished canceled", F("scheduler", s.Name()), F("task", t.Name()))
	case err != nil:
		s.logger.Debug("task failed", F("scheduler", s.Name()), F("task", t.Name()), F("error", err))
	default:
		s.logger.Debug("task finished", F("scheduler", s.Name()), F("task", t.Name()), F("duration", record.Duration))
	}
	if t.IsExecuted() {
		s.metrics.RecordTaskDuration(s.Name(), t.Priority(), record.Duration)
	}
}

// =============================================================================
// Cancellation and blocking
// =============================================================================

// Cancel cancels every task matching pred. Queued and pending cancelable tasks are
// completed without running; running cancelable tasks only get their token set and
// finish on their own. Non-cancelable matches are untouched but still part of the
// result, so its Completion waits for them.
func (s *TasksScheduler) Cancel(pred TaskPredicate) *CancelationResult {
	s.mu.Lock()
	queued := s.queue.Cancel(pred)
	var pending []Task
	s.pending, pending = cancelTasks(s.pending, pred)
	var running []Task
	for _, t := range s.running {
		if !matches(pred, t) {
			continue
		}
		running = append(running, t)
		t.Cancel()
	}
	res := s.checkTasksLocked()
	s.mu.Unlock()

	q, p, r := countCancelable(queued.tasks), countCancelable(pending), countCancelable(running)
	s.recordCanceled(CanceledWhileQueued, q)
	s.recordCanceled(CanceledWhilePending, p)
	s.recordCanceled(CanceledWhileRunning, r)
	if total := queued.Len() + len(pending) + len(running); total > 0 {
		s.logger.Info("tasks canceled",
			F("scheduler", s.Name()),
			F("matched", total),
			F("queued", q),
			F("pending", p),
			F("running", r),
		)
	}
	s.afterCheck(res)

	return queued.Merge(newCancelationResult(pending), newCancelationResult(running))
}

func countCancelable(tasks []Task) int {
	n := 0
	for _, t := range tasks {
		if t.IsCancelable() {
			n++
		}
	}
	return n
}

func (s *TasksScheduler) recordCanceled(state string, n int) {
	for range n {
		s.metrics.RecordTaskCanceled(s.Name(), state)
	}
}

// Block holds back every task matched by pred until the returned blocker is released.
// A nil pred blocks all tasks.
func (s *TasksScheduler) Block(pred TaskPredicate) *TaskBlocker {
	b := &TaskBlocker{pred: pred, scheduler: s}
	s.mu.Lock()
	s.blockers = append(s.blockers, b)
	n := len(s.blockers)
	s.mu.Unlock()

	s.logger.Debug("tasks blocked", F("scheduler", s.Name()), F("blockers", n))
	return b
}

// Unblock removes the blocker and starts tasks it was holding back. Unknown or already
// removed blockers are ignored.
func (s *TasksScheduler) Unblock(b *TaskBlocker) {
	if b == nil {
		return
	}
	s.mu.Lock()
	i := slices.Index(s.blockers, b)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.blockers = slices.Delete(s.blockers, i, i+1)
	b.released.Store(true)
	res := s.checkTasksLocked()
	s.mu.Unlock()

	s.logger.Debug("tasks unblocked", F("scheduler", s.Name()))
	s.afterCheck(res)
}

// =============================================================================
// Queries and configuration
// =============================================================================

// GetAllTasksCompletion resolves once every task matching pred that is currently
// queued, pending or running has completed. Tasks scheduled later are not included.
func (s *TasksScheduler) GetAllTasksCompletion(pred TaskPredicate) *CompletionFuture {
	s.mu.Lock()
	var futures []*CompletionFuture
	for _, t := range s.running {
		if matches(pred, t) {
			futures = append(futures, t.Completion())
		}
	}
	for _, t := range s.pending {
		if matches(pred, t) {
			futures = append(futures, t.Completion())
		}
	}
	for _, t := range s.queue.Get(pred) {
		futures = append(futures, t.Completion())
	}
	s.mu.Unlock()

	return WhenAll(futures...)
}

// SetThreadAllocationsMap replaces the allocation tiers and re-evaluates what can run.
// Lowering capacity never stops running tasks; it only delays new ones.
func (s *TasksScheduler) SetThreadAllocationsMap(m ThreadAllocationsMap) {
	s.mu.Lock()
	s.allocations = m.Normalize()
	s.threadsCount = ComputeThreadsCount(s.allocations)
	allocations, threads := s.allocations.String(), s.threadsCount
	res := s.checkTasksLocked()
	s.mu.Unlock()

	s.logger.Info("thread allocations changed",
		F("scheduler", s.Name()),
		F("allocations", allocations),
		F("threads", threads),
	)
	s.afterCheck(res)
}

func (s *TasksScheduler) ThreadAllocations() ThreadAllocationsMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocations.Clone()
}

func (s *TasksScheduler) ThreadsCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadsCount
}

// =============================================================================
// Shutdown
// =============================================================================

// Shutdown stops accepting tasks and cancels every cancelable one. The returned future
// resolves once all tasks known to the scheduler have completed; non-cancelable ones
// still run to the end.
func (s *TasksScheduler) Shutdown() *CompletionFuture {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.GetAllTasksCompletion(nil)
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("tasks scheduler shutting down", F("scheduler", s.Name()))
	return s.Cancel(nil).Completion()
}

// ShutdownGraceful shuts down and waits for outstanding tasks until ctx is done.
func (s *TasksScheduler) ShutdownGraceful(ctx context.Context) error {
	if err := s.Shutdown().Wait(ctx); err != nil {
		return fmt.Errorf("shutdown graceful: %w", err)
	}
	return nil
}

func (s *TasksScheduler) reject(t Task) {
	if r, ok := t.(interface{ fail(error) }); ok {
		r.fail(ErrSchedulerClosed)
	}
	t.Cancel()
	t.Complete()
	s.metrics.RecordTaskRejected(s.Name(), "shutdown")
	s.logger.Warn("task rejected: scheduler closed", F("scheduler", s.Name()), F("task", t.Name()))
}

func (s *TasksScheduler) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// =============================================================================
// Observability
// =============================================================================

func (s *TasksScheduler) Name() string {
	return *s.name.Load()
}

// SetName relabels logs, metrics and stats emitted from now on.
func (s *TasksScheduler) SetName(name string) {
	s.name.Store(&name)
}

func (s *TasksScheduler) QueuedTaskCount() int { return s.queue.Len() }

func (s *TasksScheduler) PendingTaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *TasksScheduler) RunningTaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Stats returns current observability data for this scheduler.
func (s *TasksScheduler) Stats() SchedulerStats {
	s.mu.Lock()
	stats := SchedulerStats{
		Name:         s.Name(),
		ThreadsCount: s.threadsCount,
		Allocations:  s.allocations.Clone(),
		Queued:       s.queue.Len(),
		Pending:      len(s.pending),
		Running:      len(s.running),
		Blockers:     len(s.blockers),
		Closed:       s.closed,
	}
	s.mu.Unlock()

	if last, ok := s.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

// RecentTasks returns completed task execution records in newest-first order.
func (s *TasksScheduler) RecentTasks(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}
