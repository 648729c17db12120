package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/wardenhq/warden/pkg/observability"
)

// SafeGo executes a function in a goroutine with context cancellation,
// panic recovery, timeout enforcement, and error logging.
//
// Use this instead of bare `go func()` for fire-and-forget work:
//
//	async.SafeGo(r.Context(), 5*time.Second, "audit emission", func(ctx context.Context) error {
//	    return sink.Write(ctx, event)
//	})
//
// The spawned context detaches from the parent's cancellation so the work
// survives the request finishing, but inherits its values.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	logger := observability.GetLogger(parentCtx).WithField("task", taskName)

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"panic": fmt.Sprintf("%v", r),
					"stack": string(debug.Stack()),
				}).Error("Recovered from panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).Error("Background task failed")
		}
	}()
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
