package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskCanceled resolves the result of a task that was canceled before or while running.
	ErrTaskCanceled = errors.New("task canceled")

	// ErrSchedulerClosed resolves the result of a task scheduled after Shutdown.
	ErrSchedulerClosed = errors.New("tasks scheduler closed")
)

// TaskPanicError is the result error of a task whose body panicked.
type TaskPanicError struct {
	Value any
	Stack []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// IsCanceled reports whether err is a cancellation, as opposed to a failure.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrTaskCanceled) || errors.Is(err, ErrSchedulerClosed)
}

// IsPanic reports whether err carries a recovered task panic.
func IsPanic(err error) bool {
	var pe *TaskPanicError
	return errors.As(err, &pe)
}
