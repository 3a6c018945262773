package core

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
)

// TasksQueue holds tasks that have not been dispatched yet, bucketed by priority.
// Buckets are visited from the highest priority down; each bucket is FIFO.
type TasksQueue struct {
	mu      sync.Mutex
	buckets *treemap.Map // TaskPriority -> []Task
	size    int
}

// byPriorityDesc orders bucket keys so iteration starts at the most urgent priority.
func byPriorityDesc(a, b interface{}) int {
	pa, pb := a.(TaskPriority), b.(TaskPriority)
	switch {
	case pa > pb:
		return -1
	case pa < pb:
		return 1
	default:
		return 0
	}
}

func NewTasksQueue() *TasksQueue {
	return &TasksQueue{buckets: treemap.NewWith(byPriorityDesc)}
}

// Add appends the task to the tail of its priority bucket.
func (q *TasksQueue) Add(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var bucket []Task
	if v, ok := q.buckets.Get(t.Priority()); ok {
		bucket = v.([]Task)
	}
	q.buckets.Put(t.Priority(), append(bucket, t))
	q.size++
}

// Pop removes and returns the first task accepted by filter, or nil.
// A nil filter accepts every task.
func (q *TasksQueue) Pop(filter TaskPredicate) Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	it := q.buckets.Iterator()
	for it.Next() {
		bucket := it.Value().([]Task)
		for i, t := range bucket {
			if !matches(filter, t) {
				continue
			}
			q.removeLocked(it.Key(), bucket, i)
			return t
		}
	}
	return nil
}

func (q *TasksQueue) removeLocked(key interface{}, bucket []Task, i int) {
	copy(bucket[i:], bucket[i+1:])
	bucket[len(bucket)-1] = nil
	bucket = bucket[:len(bucket)-1]
	if len(bucket) == 0 {
		q.buckets.Remove(key)
	} else {
		q.buckets.Put(key, bucket)
	}
	q.size--
}

// Get returns every task accepted by filter in pop order without removing them.
func (q *TasksQueue) Get(filter TaskPredicate) []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Task
	it := q.buckets.Iterator()
	for it.Next() {
		for _, t := range it.Value().([]Task) {
			if matches(filter, t) {
				out = append(out, t)
			}
		}
	}
	return out
}

// Cancel cancels, completes and removes every cancelable task matching pred.
// Non-cancelable matches stay queued but are part of the result.
func (q *TasksQueue) Cancel(pred TaskPredicate) *CancelationResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		all   []Task
		empty []interface{}
	)
	it := q.buckets.Iterator()
	for it.Next() {
		bucket := it.Value().([]Task)
		before := len(bucket)
		remaining, matched := cancelTasks(bucket, pred)
		all = append(all, matched...)
		q.size -= before - len(remaining)
		if len(remaining) == 0 {
			empty = append(empty, it.Key())
		} else if len(remaining) != before {
			q.buckets.Put(it.Key(), remaining)
		}
	}
	for _, key := range empty {
		q.buckets.Remove(key)
	}
	return newCancelationResult(all)
}

func (q *TasksQueue) HasTasks() bool {
	return q.Len() > 0
}

func (q *TasksQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Clear drops every queued task and returns them in pop order.
func (q *TasksQueue) Clear() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Task
	it := q.buckets.Iterator()
	for it.Next() {
		out = append(out, it.Value().([]Task)...)
	}
	q.buckets.Clear()
	q.size = 0
	return out
}
