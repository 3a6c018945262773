package core

import (
	"errors"
	"sync"

	"github.com/emirpasic/gods/queues/circularbuffer"
)

const defaultTaskHistoryCapacity = 100

// executionHistory keeps the most recent execution records; the oldest is dropped
// when the buffer is full.
type executionHistory struct {
	mu      sync.Mutex
	records *circularbuffer.Queue // of TaskExecutionRecord, oldest first
}

func newExecutionHistory(capacity int) *executionHistory {
	if capacity < 1 {
		capacity = defaultTaskHistoryCapacity
	}
	return &executionHistory{records: circularbuffer.New(capacity)}
}

func (h *executionHistory) Add(record TaskExecutionRecord) {
	h.mu.Lock()
	h.records.Enqueue(record)
	h.mu.Unlock()
}

// Recent returns up to limit records, newest first. limit <= 0 returns all of them.
func (h *executionHistory) Recent(limit int) []TaskExecutionRecord {
	h.mu.Lock()
	values := h.records.Values()
	h.mu.Unlock()

	if len(values) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(values) {
		limit = len(values)
	}
	out := make([]TaskExecutionRecord, 0, limit)
	for i := len(values) - 1; i >= len(values)-limit; i-- {
		out = append(out, values[i].(TaskExecutionRecord))
	}
	return out
}

func (h *executionHistory) Last() (TaskExecutionRecord, bool) {
	recent := h.Recent(1)
	if len(recent) == 0 {
		return TaskExecutionRecord{}, false
	}
	return recent[0], true
}

// outcomeOf classifies the error a task body resolved with.
func outcomeOf(err error) string {
	var pe *TaskPanicError
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.As(err, &pe):
		return OutcomePanicked
	case IsCanceled(err):
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}
