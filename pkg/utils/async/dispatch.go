package async

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/WaffleHacks/autodeploy/pkg/utils/errutil"
)

// Dispatch runs handler in a new goroutine. The handler context keeps the values of ctx,
// including the logger, but is not canceled with it. Returned errors and panics are logged
// and reported; they never reach the caller.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	newCtx := context.WithoutCancel(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				ctxlog.From(newCtx).Error("panic in async handler",
					"recover", r,
					"stack", string(stack))
				errutil.Handle(newCtx, goerr.New("panic in async handler",
					goerr.V("recover", fmt.Sprint(r)),
				), "async handler panicked")
			}
		}()

		if err := handler(newCtx); err != nil {
			errutil.Handle(newCtx, err, "error in async handler")
		}
	}()
}
