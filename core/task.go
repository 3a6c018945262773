package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// =============================================================================
// TaskID
// =============================================================================

// TaskID uniquely identifies a task for its whole lifetime.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

func (id TaskID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

// =============================================================================
// TaskTraits: Define task attributes (priority, cancelability, name)
// =============================================================================

// TaskPriority orders tasks: a higher value is more urgent.
type TaskPriority int

const (
	// TaskPriorityBestEffort: Lowest priority
	TaskPriorityBestEffort TaskPriority = 0

	// TaskPriorityUserVisible: Default priority
	TaskPriorityUserVisible TaskPriority = 1000

	// TaskPriorityUserBlocking: the user is waiting on the result right now.
	TaskPriorityUserBlocking TaskPriority = 2000

	// TaskPriorityMax is the highest representable priority; allocation tiers that should
	// accept every task use it as their threshold.
	TaskPriorityMax TaskPriority = math.MaxInt32
)

type TaskTraits struct {
	Priority   TaskPriority
	Cancelable bool
	Name       string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible, Cancelable: true}
}

func TraitsUserBlocking() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserBlocking, Cancelable: true}
}

func TraitsBestEffort() TaskTraits {
	return TaskTraits{Priority: TaskPriorityBestEffort, Cancelable: true}
}

func TraitsNonCancelable() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

// =============================================================================
// CancelationToken
// =============================================================================

// CancelationToken is an advisory cancel flag. Canceling never interrupts a running body;
// the body observes it through IsCanceled or the context returned by Context.
type CancelationToken struct {
	canceled atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
}

func newCancelationToken() *CancelationToken {
	ctx, cancel := context.WithCancel(context.Background())
	return &CancelationToken{ctx: ctx, cancel: cancel}
}

func (t *CancelationToken) IsCanceled() bool {
	return t != nil && t.canceled.Load()
}

// Done is closed once the token is canceled.
func (t *CancelationToken) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Context is canceled together with the token.
func (t *CancelationToken) Context() context.Context {
	return t.ctx
}

func (t *CancelationToken) setCanceled() {
	if t.canceled.CompareAndSwap(false, true) {
		t.cancel()
	}
}

// =============================================================================
// Task: the contract the scheduler works with
// =============================================================================

// Task is a unit of work owned by a TasksScheduler between Schedule and completion.
type Task interface {
	ID() TaskID
	Name() string
	Priority() TaskPriority
	Dependencies() TaskDependencies

	// BlockedTasksPredicate reports which other tasks must not run while this one does.
	// Nil means the task blocks nothing.
	BlockedTasksPredicate() TaskPredicate

	// CancelationToken is nil for non-cancelable tasks.
	CancelationToken() *CancelationToken
	IsCancelable() bool
	IsCanceled() bool

	// Cancel sets the advisory flag; it is a no-op for non-cancelable tasks.
	Cancel()

	// Execute runs the body once and resolves the task result. The returned error is
	// the same error the result was resolved with.
	Execute() error

	// Complete resolves the completion future. It must be called exactly once.
	Complete()
	Completion() *CompletionFuture

	// IsExecuted reports whether the body was started.
	IsExecuted() bool
}

// TaskBody computes a task result. ctx is canceled when the task's token is.
type TaskBody[T any] func(ctx context.Context) (T, error)

// TaskOption configures optional task attributes.
type TaskOption func(*taskOptions)

type taskOptions struct {
	dependencies TaskDependencies
	blocks       TaskPredicate
}

// WithDependencies attaches the dependency descriptor used by cancel/query predicates.
func WithDependencies(deps TaskDependencies) TaskOption {
	return func(o *taskOptions) { o.dependencies = deps }
}

// WithBlockedTasksPredicate sets which tasks must not run concurrently with this one.
func WithBlockedTasksPredicate(pred TaskPredicate) TaskOption {
	return func(o *taskOptions) { o.blocks = pred }
}

// AsyncTask is the standard Task implementation carrying a typed result.
type AsyncTask[T any] struct {
	id     TaskID
	traits TaskTraits
	opts   taskOptions
	body   TaskBody[T]
	token  *CancelationToken

	result     *Future[T]
	completion *CompletionFuture

	executed     atomic.Bool
	executeOnce  sync.Once
	completeOnce atomic.Bool
}

var _ Task = (*AsyncTask[int])(nil)

// NewTask creates a detached task. Nothing runs until the task is scheduled.
func NewTask[T any](body TaskBody[T], traits TaskTraits, options ...TaskOption) *AsyncTask[T] {
	if body == nil {
		panic("core: NewTask body must not be nil")
	}
	t := &AsyncTask[T]{
		id:         GenerateTaskID(),
		traits:     traits,
		body:       body,
		result:     newFuture[T](),
		completion: newFuture[struct{}](),
	}
	for _, opt := range options {
		if opt != nil {
			opt(&t.opts)
		}
	}
	if traits.Cancelable {
		t.token = newCancelationToken()
	}
	return t
}

func (t *AsyncTask[T]) ID() TaskID                           { return t.id }
func (t *AsyncTask[T]) Priority() TaskPriority               { return t.traits.Priority }
func (t *AsyncTask[T]) Dependencies() TaskDependencies       { return t.opts.dependencies }
func (t *AsyncTask[T]) BlockedTasksPredicate() TaskPredicate { return t.opts.blocks }
func (t *AsyncTask[T]) CancelationToken() *CancelationToken  { return t.token }
func (t *AsyncTask[T]) IsCancelable() bool                   { return t.token != nil }
func (t *AsyncTask[T]) IsCanceled() bool                     { return t.token.IsCanceled() }
func (t *AsyncTask[T]) IsExecuted() bool                     { return t.executed.Load() }

// Result resolves with the body's value or error, or ErrTaskCanceled.
func (t *AsyncTask[T]) Result() *Future[T] { return t.result }

// Completion resolves after the task is fully done, whatever the outcome.
func (t *AsyncTask[T]) Completion() *CompletionFuture { return t.completion }

func (t *AsyncTask[T]) Name() string {
	if t.traits.Name != "" {
		return t.traits.Name
	}
	return "task-" + t.id.String()[:8]
}

func (t *AsyncTask[T]) Cancel() {
	if t.token == nil {
		return
	}
	t.token.setCanceled()
}

func (t *AsyncTask[T]) Execute() error {
	var err error
	ran := false
	t.executeOnce.Do(func() {
		ran = true
		if t.IsCanceled() {
			err = ErrTaskCanceled
			t.result.tryResolve(*new(T), err)
			return
		}
		t.executed.Store(true)
		var v T
		v, err = t.run()
		if err != nil && t.IsCanceled() && errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %w", ErrTaskCanceled, err)
		}
		t.result.tryResolve(v, err)
	})
	if !ran {
		panic(fmt.Sprintf("core: task %s executed twice", t.id))
	}
	return err
}

func (t *AsyncTask[T]) run() (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskPanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t.body(withCurrentTask(t.bodyContext(), t))
}

func (t *AsyncTask[T]) bodyContext() context.Context {
	if t.token != nil {
		return t.token.Context()
	}
	return context.Background()
}

// fail resolves the result with err unless it is already resolved.
func (t *AsyncTask[T]) fail(err error) {
	t.result.tryResolve(*new(T), err)
}

func (t *AsyncTask[T]) Complete() {
	if !t.completeOnce.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("core: task %s completed twice", t.id))
	}
	// A task completed without running (canceled in the queue, rejected on shutdown)
	// still owes its result.
	t.result.tryResolve(*new(T), ErrTaskCanceled)
	if t.token != nil {
		t.token.cancel()
	}
	t.completion.resolve(struct{}{}, nil)
}

// =============================================================================
// Context Helper
// =============================================================================
type currentTaskKeyType struct{}

var currentTaskKey currentTaskKeyType

func withCurrentTask(ctx context.Context, t Task) context.Context {
	return context.WithValue(ctx, currentTaskKey, t)
}

// CurrentTask returns the task whose body is running with ctx, or nil.
func CurrentTask(ctx context.Context) Task {
	if v := ctx.Value(currentTaskKey); v != nil {
		return v.(Task)
	}
	return nil
}
