package core

import "sync/atomic"

// TaskBlocker is a scheduler-wide hold: while registered, tasks it matches are not
// started. Tasks already running are unaffected.
type TaskBlocker struct {
	pred      TaskPredicate
	scheduler *TasksScheduler
	released  atomic.Bool
}

// IsBlocked reports whether the blocker holds t back. A nil predicate holds every task.
func (b *TaskBlocker) IsBlocked(t Task) bool {
	return matches(b.pred, t)
}

// Release unregisters the blocker; repeated calls are no-ops.
func (b *TaskBlocker) Release() {
	if b.released.CompareAndSwap(false, true) {
		b.scheduler.Unblock(b)
	}
}
