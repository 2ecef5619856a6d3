package toolgram

import (
	"context"
	"errors"
	"time"
)

// Guard serializes access to a resource that must never run two operations at once, such as a
// single-threaded generation engine. The zero value is not usable; create one with NewGuard.
type Guard struct {
	sem chan struct{}
}

// NewGuard returns a Guard with one free slot.
func NewGuard() *Guard {
	return &Guard{sem: make(chan struct{}, 1)}
}

// Do runs work while holding the guard. Callers wait for the slot in arrival order and give up
// when ctx is done.
//
// With a positive timeout, work receives a context with that deadline and Do returns
// *TimeoutError as soon as the deadline passes. The slot stays held until the abandoned work
// actually returns, so work never overlaps even when it ignores its context.
//
// A panic in work releases the guard and is re-raised in the caller, whatever the timeout.
func (g *Guard) Do(ctx context.Context, timeout time.Duration, work func(context.Context) error) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	if timeout <= 0 {
		defer g.release()
		return work(ctx)
	}

	workCtx, cancel := context.WithTimeout(ctx, timeout)
	done := make(chan outcome, 1)
	go func() {
		defer g.release()
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{panicked: true, panicVal: p}
			}
		}()
		done <- outcome{err: work(workCtx)}
	}()

	select {
	case o := <-done:
		return o.result(workCtx, timeout)
	case <-workCtx.Done():
		// cancel runs after work has reported, so a finished result is already buffered.
		select {
		case o := <-done:
			return o.result(workCtx, timeout)
		default:
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TimeoutError{Timeout: timeout}
	}
}

// outcome is what timed work reports back to Do. A panic is re-raised in the caller; a panic in
// work that was already abandoned is dropped.
type outcome struct {
	err      error
	panicked bool
	panicVal any
}

func (o outcome) result(workCtx context.Context, timeout time.Duration) error {
	if o.panicked {
		panic(o.panicVal)
	}
	return timeoutOr(workCtx, o.err, timeout)
}

// timeoutOr maps a deadline error from work to *TimeoutError.
func timeoutOr(workCtx context.Context, err error, timeout time.Duration) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) && errors.Is(workCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Timeout: timeout}
	}
	return err
}

// Busy reports whether an operation currently holds the guard.
func (g *Guard) Busy() bool {
	return len(g.sem) > 0
}

func (g *Guard) acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Guard) release() {
	<-g.sem
}
