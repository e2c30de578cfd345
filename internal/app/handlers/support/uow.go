// Package support holds helpers shared by the command and query handlers.
package support

import (
	"context"

	"carrental/internal/app/uow"
)

// BeginReadOnlyUnit reuses the unit bound to ctx or starts a read-only one.
// cleanup is nil for a borrowed unit.
func BeginReadOnlyUnit(ctx context.Context, factory uow.UoWFactory) (uow.UnitOfWork, context.Context, func(), error) {
	return beginUnit(ctx, factory, uow.TxOptions{ReadOnly: true})
}

// BeginSequentialUnit is BeginReadOnlyUnit for flows that write without a transaction.
func BeginSequentialUnit(ctx context.Context, factory uow.UoWFactory) (uow.UnitOfWork, context.Context, func(), error) {
	return beginUnit(ctx, factory, uow.TxOptions{Sequential: true})
}

func beginUnit(ctx context.Context, factory uow.UoWFactory, opts uow.TxOptions) (uow.UnitOfWork, context.Context, func(), error) {
	if unit, ok := uow.FromContext(ctx); ok {
		return unit, ctx, nil, nil
	}
	unit, execCtx, err := uow.Begin(ctx, factory, opts)
	if err != nil {
		return nil, ctx, nil, err
	}
	cleanup := func() {
		if opts.ReadOnly {
			_ = unit.Rollback(execCtx)
			return
		}
		_ = unit.Commit(execCtx)
	}
	return unit, execCtx, cleanup, nil
}
