package core

import (
	"sync"
	"sync/atomic"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// WorkItem is a unit of executor work plus the hook resolving its submission future.
type WorkItem struct {
	Work func()
	Done func()
}

// WorkQueue is the FIFO feeding a fixed set of worker goroutines. Ordering and
// admission are decided by TasksScheduler; this queue only hands work to whichever
// worker is free.
type WorkQueue struct {
	mu     sync.Mutex
	items  []WorkItem
	signal chan struct{}
	closed atomic.Bool

	metricQueued int32 // Waiting in the queue
	metricActive int32 // Executing in a worker
}

func NewWorkQueue(workerCount int) *WorkQueue {
	return &WorkQueue{
		items:  make([]WorkItem, 0, defaultQueueCap),
		signal: make(chan struct{}, max(workerCount, 1)*2),
	}
}

// Push appends an item. It returns false once the queue is closed; a push that
// returns true always lands before any Clear that follows Close.
func (q *WorkQueue) Push(item WorkItem) bool {
	q.mu.Lock()
	if q.closed.Load() {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	atomic.AddInt32(&q.metricQueued, 1)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
		// Signal channel full, but the item is already queued
	}
	return true
}

func (q *WorkQueue) pop() (WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return WorkItem{}, false
	}

	item := q.items[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.items[0] = WorkItem{}
	q.items = q.items[1:]
	q.maybeCompactLocked()

	return item, true
}

// GetWork blocks until an item is available or stopCh is closed (called by workers).
func (q *WorkQueue) GetWork(stopCh <-chan struct{}) (WorkItem, bool) {
	for {
		if item, ok := q.pop(); ok {
			atomic.AddInt32(&q.metricQueued, -1)
			return item, true
		}

		select {
		case <-q.signal:
			continue
		case <-stopCh:
			return WorkItem{}, false
		}
	}
}

func (q *WorkQueue) maybeCompactLocked() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]WorkItem, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]WorkItem, n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}

// Close rejects further pushes. Items already queued stay until drained or cleared.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	q.closed.Store(true)
	q.mu.Unlock()
}

func (q *WorkQueue) IsClosed() bool {
	return q.closed.Load()
}

// Clear drops every queued item and returns them so callers can resolve their futures.
func (q *WorkQueue) Clear() []WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.items
	q.items = make([]WorkItem, 0, defaultQueueCap)
	atomic.AddInt32(&q.metricQueued, -int32(len(dropped)))
	return dropped
}

func (q *WorkQueue) OnWorkStart() { atomic.AddInt32(&q.metricActive, 1) }
func (q *WorkQueue) OnWorkEnd()   { atomic.AddInt32(&q.metricActive, -1) }

func (q *WorkQueue) QueuedCount() int { return int(atomic.LoadInt32(&q.metricQueued)) }
func (q *WorkQueue) ActiveCount() int { return int(atomic.LoadInt32(&q.metricActive)) }
