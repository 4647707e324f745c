package async

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/gitrelay/pkg/utils/errutil"
)

// Dispatch executes a handler function asynchronously with proper context and panic recovery.
// It is used for fire-and-forget work such as invoking a job's polling trigger.
//
// Behavior:
//   - Creates a new background context with preserved logger, so the handler outlives the
//     request that started it
//   - Executes handler in a new goroutine
//   - Recovers from panics and logs them
//   - Reports errors returned by handler through errutil.Handle
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	newCtx := newBackgroundContext(ctx)

	inflight.Add(1)
	go func() {
		defer inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				logger := ctxlog.From(newCtx)
				logger.Error("panic in async handler",
					"recover", r,
					"stack", string(stack))
			}
		}()

		if err := handler(newCtx); err != nil {
			errutil.Handle(newCtx, "error in async handler", goerr.Wrap(err, "async handler failed"))
		}
	}()
}

var inflight sync.WaitGroup

// Wait blocks until every dispatched handler has returned or ctx is done.
// Short-lived commands call it before exiting so triggers are not dropped.
func Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "async handlers did not finish")
	}
}

// newBackgroundContext creates a new background context preserving the ctxlog logger
func newBackgroundContext(ctx context.Context) context.Context {
	newCtx := context.Background()
	newCtx = ctxlog.With(newCtx, ctxlog.From(ctx))
	return newCtx
}
