package domain

import (
	"context"
	"sync"

	"example.com/healthconnect/internal/aggregate"
	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
)

// Executor runs completion callbacks on a caller-chosen context.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

// Execute calls f(fn).
func (f ExecutorFunc) Execute(fn func()) { f(fn) }

// Inline runs callbacks on the completing goroutine.
var Inline Executor = ExecutorFunc(func(fn func()) { fn() })

// Future is the result of an asynchronous call. It completes exactly once.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Go runs fn on its own goroutine and returns its future.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	go func() {
		v, err := fn(ctx)
		f.complete(v, err)
	}()
	return f
}

// complete reports whether this call set the result.
func (f *Future[T]) complete(v T, err error) bool {
	won := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		won = true
	})
	return won
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx ends. A context error
// leaves the future running.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then invokes cb once with the result on exec.
func (f *Future[T]) Then(exec Executor, cb func(T, error)) {
	if exec == nil {
		exec = Inline
	}
	go func() {
		<-f.done
		exec.Execute(func() { cb(f.val, f.err) })
	}()
}

// InsertAsync is Insert returning a future.
func (s *Service) InsertAsync(ctx context.Context, c Caller, recs []record.Record) *Future[[]string] {
	return Go(ctx, func(ctx context.Context) ([]string, error) { return s.Insert(ctx, c, recs) })
}

// ReadByFilterAsync is ReadByFilter returning a future.
func (s *Service) ReadByFilterAsync(ctx context.Context, c Caller, req storage.ReadRequest) *Future[storage.Page] {
	return Go(ctx, func(ctx context.Context) (storage.Page, error) { return s.ReadByFilter(ctx, c, req) })
}

// AggregateAsync is Aggregate returning a future.
func (s *Service) AggregateAsync(ctx context.Context, c Caller, req AggregateRequest) *Future[aggregate.Result] {
	return Go(ctx, func(ctx context.Context) (aggregate.Result, error) { return s.Aggregate(ctx, c, req) })
}
