package uow

import (
	"context"

	domainbooking "carrental/internal/domain/booking"
	domaingroup "carrental/internal/domain/group"
	domainuser "carrental/internal/domain/user"
	domainvehicle "carrental/internal/domain/vehicle"
)

// UnitOfWork hands out repositories bound to one transaction boundary.
type UnitOfWork interface {
	Bookings() domainbooking.Repository
	Vehicles() domainvehicle.Repository
	Groups() domaingroup.Repository
	Users() domainuser.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

type TxOptions struct {
	ReadOnly bool
	// Sequential skips the database transaction. Booking flows that call the
	// payment processor or the scheduler between writes use it and rely on
	// compensating transitions instead of rollback.
	Sequential bool
}
