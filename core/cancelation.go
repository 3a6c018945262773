package core

import "context"

// CancelationResult holds the tasks matched by a cancel request, canceled or not.
// Non-cancelable matches keep running; Completion waits for them too.
type CancelationResult struct {
	tasks []Task
}

func newCancelationResult(tasks []Task) *CancelationResult {
	return &CancelationResult{tasks: tasks}
}

// Tasks returns the matched tasks in match order.
func (r *CancelationResult) Tasks() []Task {
	if r == nil {
		return nil
	}
	out := make([]Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

func (r *CancelationResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tasks)
}

// Merge returns a result holding the tasks of r followed by those of others.
func (r *CancelationResult) Merge(others ...*CancelationResult) *CancelationResult {
	merged := r.Tasks()
	for _, o := range others {
		if o != nil {
			merged = append(merged, o.tasks...)
		}
	}
	return newCancelationResult(merged)
}

// Completion resolves once every matched task has completed.
func (r *CancelationResult) Completion() *CompletionFuture {
	if r == nil {
		return ResolvedCompletion()
	}
	futures := make([]*CompletionFuture, 0, len(r.tasks))
	for _, t := range r.tasks {
		futures = append(futures, t.Completion())
	}
	return WhenAll(futures...)
}

// Wait blocks until Completion resolves or ctx is done.
func (r *CancelationResult) Wait(ctx context.Context) error {
	return r.Completion().Wait(ctx)
}

// cancelTasks applies cancel semantics to tasks held outside the executor: cancelable
// matches are canceled and completed and dropped from the returned remainder;
// non-cancelable matches stay.
func cancelTasks(tasks []Task, pred TaskPredicate) (remaining []Task, matched []Task) {
	remaining = tasks[:0]
	for _, t := range tasks {
		if !matches(pred, t) {
			remaining = append(remaining, t)
			continue
		}
		matched = append(matched, t)
		if !t.IsCancelable() {
			remaining = append(remaining, t)
			continue
		}
		t.Cancel()
		t.Complete()
	}
	for i := len(remaining); i < len(tasks); i++ {
		tasks[i] = nil
	}
	return remaining, matched
}
