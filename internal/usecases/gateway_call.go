package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainerrors "payroute.backend/internal/domain/errors"
)

// callWithTimeout bounds one adapter call. The call runs on its own
// goroutine so an adapter that ignores its context still cannot hold the
// caller past timeout. Panics inside the adapter come back as call errors.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, code string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultGatewayCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &domainerrors.GatewayCallError{Gateway: code, Err: fmt.Errorf("adapter panic: %v", r)}}
			}
		}()
		v, err := fn(callCtx)
		done <- outcome{val: v, err: err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			var gce *domainerrors.GatewayCallError
			if !errors.As(out.err, &gce) || !gce.Timeout {
				return zero, &domainerrors.GatewayCallError{Gateway: code, Timeout: true, Err: out.err}
			}
		}
		return out.val, out.err
	case <-callCtx.Done():
		return zero, &domainerrors.GatewayCallError{Gateway: code, Timeout: callCtx.Err() == context.DeadlineExceeded, Err: callCtx.Err()}
	}
}

// callOutcome is the metrics label for a finished gateway call.
func callOutcome(status string, err error) string {
	if err != nil {
		var gce *domainerrors.GatewayCallError
		if errors.As(err, &gce) && gce.Timeout {
			return "timeout"
		}
		return "error"
	}
	return status
}
