package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"carrental/internal/app/uow"
	domainbooking "carrental/internal/domain/booking"
	domaingroup "carrental/internal/domain/group"
	domainuser "carrental/internal/domain/user"
	domainvehicle "carrental/internal/domain/vehicle"
)

// Factory wires Mongo sessions into the generic UnitOfWork interface.
// Read-only and sequential units run without a transaction.
type Factory struct {
	DB *mongo.Database

	BookingRepo domainbooking.Repository
	VehicleRepo domainvehicle.Repository
	GroupRepo   domaingroup.Repository
	UserRepo    domainuser.Repository
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// NewFactory builds a factory over the standard collections of db.
func NewFactory(db *mongo.Database) Factory {
	return Factory{
		DB:          db,
		BookingRepo: NewBookingRepository(db),
		VehicleRepo: NewVehicleRepository(db),
		GroupRepo:   NewGroupRepository(db),
		UserRepo:    NewUserRepository(db),
	}
}

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	unit := &Unit{
		bookings: f.BookingRepo,
		vehicles: f.VehicleRepo,
		groups:   f.GroupRepo,
		users:    f.UserRepo,
	}
	if opts.ReadOnly || opts.Sequential {
		return unit, nil
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().SetReadConcern(f.DB.ReadConcern()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	unit.session = session
	return unit, nil
}

type Unit struct {
	session mongo.Session

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
	if u.session == nil {
		return nil
	}
	defer u.session.EndSession(ctx)
	return u.session.CommitTransaction(ctx)
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.session == nil {
		return nil
	}
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext puts the session on ctx so repository calls join the transaction.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	if u.session == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, u.session)
}

var _ uow.UoWFactory = Factory{}
