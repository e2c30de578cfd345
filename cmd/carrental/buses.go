package main

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"carrental/internal/app/commands"
	bookingapp "carrental/internal/app/handlers/booking"
	groupapp "carrental/internal/app/handlers/groups"
	meapp "carrental/internal/app/handlers/me"
	vehicleapp "carrental/internal/app/handlers/vehicles"
	"carrental/internal/app/middleware"
	"carrental/internal/app/queries"
)

// registerCommands binds every command handler and wraps the bus in the
// pipeline: logging, validation, authorization, idempotency, transaction and
// outbox flush, outermost first.
func registerCommands(deps bookingapp.Deps, inbox bookingapp.Inbox, store *storage, logger *slog.Logger) commands.Bus {
	bus := commands.NewInMemoryBus()

	commands.RegisterHandler(bus, bookingapp.CreatePrivateBookingCommand{}.Key(), &bookingapp.CreatePrivateBookingHandler{Deps: deps})
	commands.RegisterHandler(bus, bookingapp.CreateGroupBookingCommand{}.Key(), &bookingapp.CreateGroupBookingHandler{Deps: deps})
	commands.RegisterHandler(bus, bookingapp.CancelBookingCommand{}.Key(), &bookingapp.CancelBookingHandler{Deps: deps})
	commands.RegisterHandler(bus, bookingapp.ExtendBookingCommand{}.Key(), &bookingapp.ExtendBookingHandler{Deps: deps})
	commands.RegisterHandler(bus, bookingapp.ApproveBookingCommand{}.Key(), &bookingapp.ApproveBookingHandler{Deps: deps})
	commands.RegisterHandler(bus, bookingapp.SettlePaymentCommand{}.Key(), &bookingapp.SettlePaymentHandler{Deps: deps, Inbox: inbox})
	commands.RegisterHandler(bus, bookingapp.ExpireUnpaidCommand{}.Key(), &bookingapp.ExpireUnpaidHandler{Deps: deps})

	groups := groupapp.Deps{Logger: logger, Clock: deps.Clock, NewID: deps.NewID}
	commands.RegisterHandler(bus, groupapp.CreateGroupCommand{}.Key(), &groupapp.CreateGroupHandler{Deps: groups})
	commands.RegisterHandler(bus, groupapp.AddMemberCommand{}.Key(), &groupapp.AddMemberHandler{Deps: groups})
	commands.RegisterHandler(bus, groupapp.AddGroupVehicleCommand{}.Key(), &groupapp.AddGroupVehicleHandler{Deps: groups})
	commands.RegisterHandler(bus, groupapp.SetPrivateBookingCommand{}.Key(), &groupapp.SetPrivateBookingHandler{Deps: groups})
	commands.RegisterHandler(bus, groupapp.RemoveGroupVehicleCommand{}.Key(), &groupapp.RemoveGroupVehicleHandler{Deps: groups})
	commands.RegisterHandler(bus, groupapp.UpdatePreferencesCommand{}.Key(), &groupapp.UpdatePreferencesHandler{Deps: groups})
	commands.RegisterHandler(bus, groupapp.UpdateRulesCommand{}.Key(), &groupapp.UpdateRulesHandler{Deps: groups})
	commands.RegisterHandler(bus, groupapp.DeactivateGroupCommand{}.Key(), &groupapp.DeactivateGroupHandler{Deps: groups})

	vehicles := vehicleapp.Deps{Logger: logger, Clock: deps.Clock, NewID: deps.NewID}
	commands.RegisterHandler(bus, vehicleapp.RegisterVehicleCommand{}.Key(), &vehicleapp.RegisterVehicleHandler{Deps: vehicles})
	commands.RegisterHandler(bus, vehicleapp.UpdateVehicleCommand{}.Key(), &vehicleapp.UpdateVehicleHandler{Deps: vehicles})
	commands.RegisterHandler(bus, vehicleapp.SetBookableCommand{}.Key(), &vehicleapp.SetBookableHandler{Deps: vehicles})
	commands.RegisterHandler(bus, vehicleapp.DeleteVehicleCommand{}.Key(), &vehicleapp.DeleteVehicleHandler{Deps: vehicles})

	commands.RegisterHandler(bus, meapp.UpdateProfileCommand{}.Key(), &meapp.UpdateProfileHandler{Logger: logger, Clock: deps.Clock})

	return middleware.ChainCommands(bus,
		middleware.Logging(logger),
		middleware.Validation(middleware.NewStructValidator()),
		middleware.Authorization(middleware.ActorAuthorizer{}),
		middleware.Idempotency(store.idempotency, nil),
		middleware.Transaction(store.factory, middleware.SequentialTxOptions),
		middleware.OutboxFlush(store.outbox),
	)
}

func registerQueries(deps bookingapp.QueryDeps, logger *slog.Logger) queries.Bus {
	bus := queries.NewInMemoryBus()

	queries.RegisterHandler(bus, bookingapp.GetBookingQuery{}.Key(), &bookingapp.GetBookingHandler{QueryDeps: deps})
	queries.RegisterHandler(bus, bookingapp.ListMyBookingsQuery{}.Key(), &bookingapp.ListMyBookingsHandler{QueryDeps: deps})
	queries.RegisterHandler(bus, bookingapp.ListVehicleBookingsQuery{}.Key(), &bookingapp.ListVehicleBookingsHandler{QueryDeps: deps})
	queries.RegisterHandler(bus, bookingapp.CheckAvailabilityQuery{}.Key(), &bookingapp.CheckAvailabilityHandler{QueryDeps: deps})
	queries.RegisterHandler(bus, groupapp.GetGroupQuery{}.Key(), &groupapp.GetGroupHandler{UoWFactory: deps.UoWFactory})
	queries.RegisterHandler(bus, groupapp.ListMyGroupsQuery{}.Key(), &groupapp.ListMyGroupsHandler{UoWFactory: deps.UoWFactory})
	queries.RegisterHandler(bus, vehicleapp.GetVehicleQuery{}.Key(), &vehicleapp.GetVehicleHandler{UoWFactory: deps.UoWFactory})
	queries.RegisterHandler(bus, vehicleapp.ListMyVehiclesQuery{}.Key(), &vehicleapp.ListMyVehiclesHandler{UoWFactory: deps.UoWFactory})
	queries.RegisterHandler(bus, meapp.GetProfileQuery{}.Key(), &meapp.GetProfileHandler{UoWFactory: deps.UoWFactory})

	validator := middleware.NewStructValidator()
	return middleware.ChainQueries(bus,
		middleware.QueryLogging(logger),
		middleware.QueryValidation(validator),
		middleware.QueryAuthorization(middleware.ActorAuthorizer{}),
	)
}

func newID() string { return uuid.NewString() }

func utcNow() time.Time { return time.Now().UTC() }
