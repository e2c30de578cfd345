package middleware

import (
	"context"

	"carrental/internal/app/commands"
	"carrental/internal/app/uow"
)

type TxOptionsProvider func(cmd commands.Command) uow.TxOptions

// Transaction runs each command inside a unit of work and commits on success.
func Transaction(factory uow.UoWFactory, optsProvider TxOptionsProvider) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	return func(next commands.Bus) commands.Bus {
		return DispatchFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if _, ok := uow.FromContext(ctx); ok {
				return next.Dispatch(ctx, cmd)
			}
			opts := uow.TxOptions{}
			if optsProvider != nil {
				opts = optsProvider(cmd)
			}
			unit, execCtx, err := uow.Begin(ctx, factory, opts)
			if err != nil {
				return nil, err
			}
			committed := false
			defer func() {
				if !committed {
					_ = unit.Rollback(execCtx)
				}
			}()

			res, err := next.Dispatch(execCtx, cmd)
			if err != nil && !opts.Sequential {
				return nil, err
			}
			if commitErr := unit.Commit(execCtx); commitErr != nil {
				return nil, commitErr
			}
			committed = true
			return res, err
		})
	}
}

// SequentialCommand marks commands whose handlers persist intermediate state and
// compensate on failure instead of rolling back.
type SequentialCommand interface {
	commands.Command
	Sequential() bool
}

// SequentialTxOptions is the default TxOptionsProvider.
func SequentialTxOptions(cmd commands.Command) uow.TxOptions {
	if s, ok := cmd.(SequentialCommand); ok && s.Sequential() {
		return uow.TxOptions{Sequential: true}
	}
	return uow.TxOptions{}
}
