package acquisition

import (
	"context"
	"errors"
	"time"

	"github.com/roman-kulish/pn-raman/internal/driver"
)

// call runs fn detached from ctx's cancellation, so cooperative cancellation never interrupts
// a hardware call. With a positive timeout, fn is abandoned after timeout and
// driver.ErrTimeout is returned; the abandoned call keeps running until the device returns.
func call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx = context.WithoutCancel(ctx)
	if timeout <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return r.v, driver.ErrTimeout
		}
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, driver.ErrTimeout
	}
}

// do is call for functions without a result
func do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := call(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
