package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestGenerateTaskID_Unique verifies task IDs are distinct and non-zero
func TestGenerateTaskID_Unique(t *testing.T) {
	a, b := GenerateTaskID(), GenerateTaskID()

	if a == b {
		t.Fatal("GenerateTaskID() returned duplicate IDs")
	}
	if a.IsZero() || b.IsZero() {
		t.Fatal("GenerateTaskID() returned zero ID")
	}
	if (TaskID{}).IsZero() != true {
		t.Fatal("zero TaskID IsZero() = false, want true")
	}
}

func TestTaskTraitsPresets(t *testing.T) {
	tests := []struct {
		name       string
		traits     TaskTraits
		priority   TaskPriority
		cancelable bool
	}{
		{"default", DefaultTaskTraits(), TaskPriorityUserVisible, true},
		{"user blocking", TraitsUserBlocking(), TaskPriorityUserBlocking, true},
		{"best effort", TraitsBestEffort(), TaskPriorityBestEffort, true},
		{"non cancelable", TraitsNonCancelable(), TaskPriorityUserVisible, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.traits.Priority != tt.priority || tt.traits.Cancelable != tt.cancelable {
				t.Fatalf("traits = %+v, want priority %d cancelable %v", tt.traits, tt.priority, tt.cancelable)
			}
		})
	}
}

// TestAsyncTask_ExecuteAndComplete verifies the normal task lifecycle
// Given: A detached task returning a value
// When: Execute and then Complete are called
// Then: The result carries the value and the completion resolves only after Complete
func TestAsyncTask_ExecuteAndComplete(t *testing.T) {
	// Arrange
	task := NewTask(func(ctx context.Context) (int, error) { return 42, nil }, DefaultTaskTraits())

	// Act
	err := task.Execute()

	// Assert
	if err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	if !task.IsExecuted() {
		t.Fatal("IsExecuted() = false after Execute")
	}
	if task.Completion().IsReady() {
		t.Fatal("completion resolved before Complete")
	}
	task.Complete()
	v, err := task.Result().Get(testContext(t))
	if v != 42 || err != nil {
		t.Fatalf("Result() = (%d, %v), want (42, nil)", v, err)
	}
	if !task.Completion().IsReady() {
		t.Fatal("completion not resolved after Complete")
	}
}

// TestAsyncTask_CanceledBeforeExecuteSkipsBody verifies canceled tasks never run
// Given: A cancelable task that has been canceled
// When: Execute is called
// Then: The body does not run and the result is ErrTaskCanceled
func TestAsyncTask_CanceledBeforeExecuteSkipsBody(t *testing.T) {
	// Arrange
	ran := false
	task := NewTask(func(ctx context.Context) (int, error) {
		ran = true
		return 1, nil
	}, DefaultTaskTraits())
	task.Cancel()

	// Act
	err := task.Execute()

	// Assert
	if ran {
		t.Fatal("body ran after cancel")
	}
	if !errors.Is(err, ErrTaskCanceled) {
		t.Fatalf("Execute() = %v, want ErrTaskCanceled", err)
	}
	if task.IsExecuted() {
		t.Fatal("IsExecuted() = true for skipped body")
	}
}

// TestAsyncTask_NonCancelableIgnoresCancel verifies Cancel is a no-op without a token
func TestAsyncTask_NonCancelableIgnoresCancel(t *testing.T) {
	task := NewTask(func(ctx context.Context) (int, error) { return 7, nil }, TraitsNonCancelable())

	task.Cancel()

	if task.IsCancelable() || task.IsCanceled() || task.CancelationToken() != nil {
		t.Fatal("non-cancelable task reports cancellation state")
	}
	if err := task.Execute(); err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
}

// TestAsyncTask_BodyObservesCancelThroughContext verifies cooperative cancellation
// Given: A running task whose body waits on its context
// When: The task is canceled mid-flight
// Then: The body returns and the error is classified as canceled
func TestAsyncTask_BodyObservesCancelThroughContext(t *testing.T) {
	// Arrange
	started := make(chan struct{})
	task := NewTask(func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	}, DefaultTaskTraits())
	errCh := make(chan error, 1)

	// Act
	go func() { errCh <- task.Execute() }()
	<-started
	task.Cancel()

	// Assert
	select {
	case err := <-errCh:
		if !IsCanceled(err) || !errors.Is(err, context.Canceled) {
			t.Fatalf("Execute() = %v, want canceled wrapping context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("body did not observe cancellation")
	}
}

// TestAsyncTask_PanicCapturedInResult verifies panics become TaskPanicError
func TestAsyncTask_PanicCapturedInResult(t *testing.T) {
	task := NewTask(func(ctx context.Context) (int, error) { panic("boom") }, DefaultTaskTraits())

	err := task.Execute()

	var pe *TaskPanicError
	if !errors.As(err, &pe) || pe.Value != "boom" || len(pe.Stack) == 0 {
		t.Fatalf("Execute() = %v, want TaskPanicError(boom) with stack", err)
	}
	if !IsPanic(err) || IsCanceled(err) {
		t.Fatal("panic error misclassified")
	}
}

func TestAsyncTask_ExecuteTwicePanics(t *testing.T) {
	task := NewTask(func(ctx context.Context) (int, error) { return 0, nil }, DefaultTaskTraits())
	_ = task.Execute()

	defer func() {
		if recover() == nil {
			t.Fatal("second Execute did not panic")
		}
	}()
	_ = task.Execute()
}

func TestAsyncTask_CompleteTwicePanics(t *testing.T) {
	task := NewTask(func(ctx context.Context) (int, error) { return 0, nil }, DefaultTaskTraits())
	task.Complete()

	defer func() {
		if recover() == nil {
			t.Fatal("second Complete did not panic")
		}
	}()
	task.Complete()
}

// TestAsyncTask_CompleteWithoutExecuteResolvesCanceled verifies queued-cancel completion
func TestAsyncTask_CompleteWithoutExecuteResolvesCanceled(t *testing.T) {
	task := NewTask(func(ctx context.Context) (int, error) { return 1, nil }, DefaultTaskTraits())

	task.Cancel()
	task.Complete()

	_, err := task.Result().Get(testContext(t))
	if !errors.Is(err, ErrTaskCanceled) {
		t.Fatalf("Result() error = %v, want ErrTaskCanceled", err)
	}
}

func TestAsyncTask_NameDefaultsToIDPrefix(t *testing.T) {
	task := NewTask(func(ctx context.Context) (int, error) { return 0, nil }, DefaultTaskTraits())
	named := NewTask(func(ctx context.Context) (int, error) { return 0, nil }, TaskTraits{Name: "load-rows"})

	if !strings.HasPrefix(task.Name(), "task-") || len(task.Name()) != len("task-")+8 {
		t.Fatalf("Name() = %q, want task-<8 chars>", task.Name())
	}
	if named.Name() != "load-rows" {
		t.Fatalf("Name() = %q, want load-rows", named.Name())
	}
}

// TestCurrentTask_AvailableInBody verifies the body context carries its task
func TestCurrentTask_AvailableInBody(t *testing.T) {
	var seen Task
	task := NewTask(func(ctx context.Context) (int, error) {
		seen = CurrentTask(ctx)
		return 0, nil
	}, DefaultTaskTraits())

	_ = task.Execute()

	if seen == nil || seen.ID() != task.ID() {
		t.Fatal("CurrentTask() did not return the executing task")
	}
	if CurrentTask(context.Background()) != nil {
		t.Fatal("CurrentTask(background) != nil")
	}
}

func TestNewTask_NilBodyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewTask(nil) did not panic")
		}
	}()
	NewTask[int](nil, DefaultTaskTraits())
}
