package middleware

import (
	"context"
	"errors"

	"carrental/internal/app/commands"
	"carrental/internal/app/outbox"
)

// OutboxFlush publishes the events a command recorded. A failed command's
// events are dropped with its transaction, except for sequential commands:
// their partial work is kept, so the events describing it are flushed too.
func OutboxFlush(box outbox.Outbox) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	return func(next commands.Bus) commands.Bus {
		return DispatchFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := next.Dispatch(ctx, cmd)
			if err != nil && !SequentialTxOptions(cmd).Sequential {
				return nil, err
			}
			if flushErr := box.Flush(ctx); flushErr != nil {
				return nil, errors.Join(err, flushErr)
			}
			return res, err
		})
	}
}
