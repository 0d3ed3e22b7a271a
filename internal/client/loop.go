package client

import (
	"context"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Loop serializes work onto the single goroutine that owns a Manager.
// Callbacks passed to Post and AfterFunc run on that goroutine.
type Loop interface {
	Post(fn func())
	AfterFunc(d time.Duration, fn func()) Timer
	Now() time.Time
}

// eventLoop is the production Loop: a FIFO of closures drained by run.
type eventLoop struct {
	tasks chan func()
	done  chan struct{}
}

func newEventLoop() *eventLoop {
	return &eventLoop{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
}

// Post enqueues fn. Work posted after the loop stopped is dropped.
func (l *eventLoop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

func (l *eventLoop) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

func (l *eventLoop) Now() time.Time {
	return time.Now()
}

// run drains tasks until ctx is cancelled.
func (l *eventLoop) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

func (l *eventLoop) stop() {
	close(l.done)
}

// call runs fn on the loop and waits for its result.
func call[T any](ctx context.Context, l *eventLoop, fn func() T) (T, error) {
	result := make(chan T, 1)
	var zero T
	select {
	case l.tasks <- func() { result <- fn() }:
	case <-l.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-result:
		return v, nil
	case <-l.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
