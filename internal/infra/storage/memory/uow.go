package memory

import (
	"context"
	"errors"

	"carrental/internal/app/uow"
	domainbooking "carrental/internal/domain/booking"
	domaingroup "carrental/internal/domain/group"
	domainuser "carrental/internal/domain/user"
	domainvehicle "carrental/internal/domain/vehicle"
)

// Factory wires in-memory repositories into a unit-of-work boundary.
type Factory struct {
	BookingRepo domainbooking.Repository
	VehicleRepo domainvehicle.Repository
	GroupRepo   domaingroup.Repository
	UserRepo    domainuser.Repository
}

// ErrFactoryMisconfigured indicates missing repositories.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// NewFactory returns a factory over fresh, empty repositories.
func NewFactory() Factory {
	return Factory{
		BookingRepo: NewBookingRepository(),
		VehicleRepo: NewVehicleRepository(),
		GroupRepo:   NewGroupRepository(),
		UserRepo:    NewUserRepository(),
	}
}

// Begin starts a lightweight transaction boundary. No isolation is provided but
// the abstraction matches the application ports.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.BookingRepo == nil || f.VehicleRepo == nil || f.GroupRepo == nil || f.UserRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		bookings: f.BookingRepo,
		vehicles: f.VehicleRepo,
		groups:   f.GroupRepo,
		users:    f.UserRepo,
	}, nil
}

// Unit is a lightweight uow.UnitOfWork backed by in-memory stores.
type Unit struct {
	bookings domainbooking.Repository
	vehicles domainvehicle.Repository
	groups   domaingroup.Repository
	users    domainuser.Repository
}

func (u *Unit) Bookings() domainbooking.Repository { return u.bookings }

func (u *Unit) Vehicles() domainvehicle.Repository { return u.vehicles }

func (u *Unit) Groups() domaingroup.Repository { return u.groups }

func (u *Unit) Users() domainuser.Repository { return u.users }

func (u *Unit) Commit(ctx context.Context) error {
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	return nil
}

var _ uow.UoWFactory = Factory{}
