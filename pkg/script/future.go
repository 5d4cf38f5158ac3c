package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPanic wraps a panic recovered while producing a Future's value.
var ErrPanic = errors.New("script panicked")

// Future is a value that settles exactly once, either with a Response or an
// error. Continuations registered with Then and Catch run on their own
// goroutine once the Future settles.
type Future struct {
	done chan struct{}
	once sync.Once
	res  *Response
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Go runs fn on a new goroutine and returns a Future for its outcome.
// A panic in fn rejects the Future with ErrPanic.
func Go(fn func() (*Response, error)) *Future {
	f := newFuture()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.settle(nil, fmt.Errorf("%w: %v", ErrPanic, r))
			}
		}()
		res, err := fn()
		f.settle(res, err)
	}()
	return f
}

// Resolve returns a Future already settled with r.
func Resolve(r *Response) *Future {
	f := newFuture()
	f.settle(r, nil)
	return f
}

// Reject returns a Future already settled with err.
func Reject(err error) *Future {
	f := newFuture()
	f.settle(nil, err)
	return f
}

func (f *Future) settle(res *Response, err error) {
	f.once.Do(func() {
		f.res, f.err = res, err
		close(f.done)
	})
}

// Done is closed once the Future has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the Future settles or ctx is done.
func (f *Future) Await(ctx context.Context) (*Response, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then registers fn to run with the Response on success. The returned Future
// settles after fn has run, or with the original error without calling fn.
func (f *Future) Then(fn func(*Response)) *Future {
	next := newFuture()
	go func() {
		<-f.done
		if f.err != nil {
			next.settle(nil, f.err)
			return
		}
		defer func() {
			if r := recover(); r != nil {
				next.settle(nil, fmt.Errorf("%w: %v", ErrPanic, r))
			}
		}()
		fn(f.res)
		next.settle(f.res, nil)
	}()
	return next
}

// Catch registers fn to run with the error on failure. The returned Future
// settles with the original outcome once fn (if any) has run.
func (f *Future) Catch(fn func(error)) *Future {
	next := newFuture()
	go func() {
		<-f.done
		defer func() {
			if r := recover(); r != nil {
				next.settle(nil, fmt.Errorf("%w: %v", ErrPanic, r))
			}
		}()
		if f.err != nil {
			fn(f.err)
		}
		next.settle(f.res, f.err)
	}()
	return next
}
