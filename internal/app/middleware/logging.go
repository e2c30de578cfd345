package middleware

import (
	"context"
	"log/slog"
	"time"

	"carrental/internal/app/commands"
	"carrental/internal/app/queries"
	"carrental/internal/domain/shared/errkind"
)

// Logging records each command's key, duration and outcome. Domain errors are
// logged at info, everything else at error.
func Logging(logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		return DispatchFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			started := time.Now()
			res, err := next.Dispatch(ctx, cmd)
			logOutcome(ctx, logger, "command", cmd.Key(), started, err)
			return res, err
		})
	}
}

func QueryLogging(logger *slog.Logger) QueryMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next queries.Bus) queries.Bus {
		return AskFunc(func(ctx context.Context, q queries.Query) (any, error) {
			started := time.Now()
			res, err := next.Ask(ctx, q)
			if err != nil {
				logOutcome(ctx, logger, "query", q.Key(), started, err)
			}
			return res, err
		})
	}
}

func logOutcome(ctx context.Context, logger *slog.Logger, kind, key string, started time.Time, err error) {
	attrs := []any{kind, key, "duration_ms", time.Since(started).Milliseconds()}
	switch {
	case err == nil:
		logger.DebugContext(ctx, kind+" handled", attrs...)
	case errkind.Known(err):
		logger.InfoContext(ctx, kind+" rejected", append(attrs, "kind", errkind.Of(err), "error", err)...)
	default:
		logger.ErrorContext(ctx, kind+" failed", append(attrs, "error", err)...)
	}
}
