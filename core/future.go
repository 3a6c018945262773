package core

import (
	"context"
	"sync"
)

// Future is a oneshot value that is resolved exactly once, with a value or an error.
// Readers wait on Done() or call Get.
type Future[T any] struct {
	done     chan struct{}
	mu       sync.Mutex
	resolved bool
	value    T
	err      error
}

// CompletionFuture is a join signal that carries no value.
type CompletionFuture = Future[struct{}]

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// NewCompletionFuture returns an unresolved completion future and the function resolving it.
// The resolve function panics if called twice.
func NewCompletionFuture() (*CompletionFuture, func()) {
	f := newFuture[struct{}]()
	return f, func() { f.resolve(struct{}{}, nil) }
}

// ResolvedCompletion returns an already resolved completion future.
func ResolvedCompletion() *CompletionFuture {
	f := newFuture[struct{}]()
	f.resolve(struct{}{}, nil)
	return f
}

// resolve panics on a second call; callers own exactly-once delivery.
func (f *Future[T]) resolve(v T, err error) {
	if !f.tryResolve(v, err) {
		panic("core: future resolved twice")
	}
}

func (f *Future[T]) tryResolve(v T, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return false
	}
	f.value = v
	f.err = err
	f.resolved = true
	close(f.done)
	return true
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsReady reports whether the future has been resolved.
func (f *Future[T]) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future is resolved or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the resolved value without blocking; ok is false while unresolved.
func (f *Future[T]) Peek() (value T, ok bool, err error) {
	if !f.IsReady() {
		var zero T
		return zero, false, nil
	}
	return f.value, true, f.err
}

// Wait blocks until the future is resolved and returns ctx.Err() if ctx ends first.
// The resolved error, if any, is not returned; use Get for that.
func (f *Future[T]) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WhenAll resolves once every input future is resolved. It is resolved immediately
// when called with no futures.
func WhenAll(futures ...*CompletionFuture) *CompletionFuture {
	pending := make([]*CompletionFuture, 0, len(futures))
	for _, f := range futures {
		if f != nil && !f.IsReady() {
			pending = append(pending, f)
		}
	}
	if len(pending) == 0 {
		return ResolvedCompletion()
	}

	all, resolve := NewCompletionFuture()
	go func() {
		for _, f := range pending {
			<-f.Done()
		}
		resolve()
	}()
	return all
}
