package core

// Executor runs units of work on its own goroutines. The scheduler never starts
// goroutines for task bodies itself; it hands them to an Executor.
type Executor interface {
	// Submit schedules work and returns a future resolved once work has returned.
	Submit(work func()) *CompletionFuture
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(work func()) *CompletionFuture

func (f ExecutorFunc) Submit(work func()) *CompletionFuture { return f(work) }

// NewGoroutineExecutor runs every unit of work on a fresh goroutine.
func NewGoroutineExecutor() Executor {
	return ExecutorFunc(func(work func()) *CompletionFuture {
		done, resolve := NewCompletionFuture()
		go func() {
			defer resolve()
			work()
		}()
		return done
	})
}

// InlineExecutor runs work synchronously on the submitting goroutine.
func InlineExecutor() Executor {
	return ExecutorFunc(func(work func()) *CompletionFuture {
		work()
		return ResolvedCompletion()
	})
}
