package booking

import (
	"context"
	"fmt"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	"carrental/internal/app/middleware"
	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/pricing"
	"carrental/internal/domain/shared/errkind"
	domainvehicle "carrental/internal/domain/vehicle"
)

const createPrivateBookingKey = "booking.create_private"

var (
	errPaymentsUnavailable = fmt.Errorf("%w: payment processor unavailable", errkind.ErrPayment)
	// ErrBusinessNotOwner rejects business bookings on vehicles the renter does not own.
	ErrBusinessNotOwner = fmt.Errorf("%w: business bookings outside a group are limited to the vehicle owner", errkind.ErrForbidden)
)

type CreatePrivateBookingCommand struct {
	RenterID        string `json:"renter_id" validate:"required"`
	VehicleID       string `json:"vehicle_id" validate:"required"`
	Start           string `json:"start_time" validate:"required"`
	End             string `json:"end_time" validate:"required"`
	Timezone        string `json:"timezone"`
	Kind            string `json:"booking_type" validate:"omitempty,oneof=business private"`
	IdempotencyKeyV string `json:"-"`
}

func (c CreatePrivateBookingCommand) Key() string { return createPrivateBookingKey }

func (c CreatePrivateBookingCommand) ActorID() string { return c.RenterID }

func (c CreatePrivateBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreatePrivateBookingCommand) ResultPrototype() any { return &dto.CreateBookingResult{} }

func (c CreatePrivateBookingCommand) Sequential() bool { return true }

type CreatePrivateBookingHandler struct {
	Deps
}

func (h *CreatePrivateBookingHandler) Handle(ctx context.Context, cmd CreatePrivateBookingCommand) (*dto.CreateBookingResult, error) {
	kind := domainbooking.Kind(cmd.Kind)
	if kind == "" {
		kind = domainbooking.KindPrivate
	}
	if !kind.Valid() {
		return nil, domainbooking.ErrInvalidKind
	}
	period, zone, err := h.resolvePeriod(cmd.Start, cmd.End, cmd.Timezone)
	if err != nil {
		return nil, err
	}

	unit, execCtx, cleanup, err := handlersupport.BeginSequentialUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	vehicle, err := unit.Vehicles().ByID(execCtx, domainvehicle.ID(cmd.VehicleID))
	if err != nil {
		return nil, err
	}
	if err := vehicle.CheckBookable(); err != nil {
		return nil, err
	}
	if kind == domainbooking.KindBusiness && !vehicle.IsOwnedBy(cmd.RenterID) {
		return nil, ErrBusinessNotOwner
	}
	if err := vehicle.Policy.CheckWindow(period, h.now()); err != nil {
		return nil, err
	}

	result, err := h.place(execCtx, unit, placement{
		renterID:   cmd.RenterID,
		vehicle:    vehicle,
		period:     period,
		zone:       zone,
		kind:       kind,
		rate:       vehicle.HourlyRate,
		commission: pricing.Commission{PlatformPercent: vehicle.PlatformPct},
	})
	if err != nil {
		return nil, err
	}
	h.logger().Info("booking created", "booking_id", result.Booking.ID, "vehicle_id", vehicle.ID, "kind", kind, "status", result.Booking.Status)
	return result, nil
}

var _ commands.Handler[CreatePrivateBookingCommand, *dto.CreateBookingResult] = (*CreatePrivateBookingHandler)(nil)
var _ middleware.IdempotentCommand = CreatePrivateBookingCommand{}
