package booking

import (
	"context"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	"carrental/internal/app/middleware"
	domainbooking "carrental/internal/domain/booking"
	domaingroup "carrental/internal/domain/group"
	domainuser "carrental/internal/domain/user"
	domainvehicle "carrental/internal/domain/vehicle"
)

const createGroupBookingKey = "booking.create_group"

type CreateGroupBookingCommand struct {
	RenterID        string `json:"renter_id" validate:"required"`
	GroupID         string `json:"group_id" validate:"required"`
	VehicleID       string `json:"vehicle_id" validate:"required"`
	Start           string `json:"start_time" validate:"required"`
	End             string `json:"end_time" validate:"required"`
	Timezone        string `json:"timezone"`
	Kind            string `json:"booking_type" validate:"required,oneof=business private"`
	IdempotencyKeyV string `json:"-"`
}

func (c CreateGroupBookingCommand) Key() string { return createGroupBookingKey }

func (c CreateGroupBookingCommand) ActorID() string { return c.RenterID }

func (c CreateGroupBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateGroupBookingCommand) ResultPrototype() any { return &dto.CreateBookingResult{} }

func (c CreateGroupBookingCommand) Sequential() bool { return true }

type CreateGroupBookingHandler struct {
	Deps
}

// Handle books a group vehicle. Group membership, the per-vehicle private
// override, renter eligibility and the group's own window all apply before
// anything is stored; pricing uses the group's rate and commission.
func (h *CreateGroupBookingHandler) Handle(ctx context.Context, cmd CreateGroupBookingCommand) (*dto.CreateBookingResult, error) {
	kind := domainbooking.Kind(cmd.Kind)
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

	group, err := unit.Groups().ByID(execCtx, domaingroup.ID(cmd.GroupID))
	if err != nil {
		return nil, err
	}
	if !group.IsActive {
		return nil, domaingroup.ErrInactive
	}
	if !group.IsActiveMember(cmd.RenterID) {
		return nil, domaingroup.ErrNotMember
	}
	entry, ok := group.VehicleEntry(cmd.VehicleID)
	if !ok {
		return nil, domaingroup.ErrVehicleNotInGroup
	}
	if kind == domainbooking.KindPrivate && !entry.AllowPrivateBooking {
		return nil, domaingroup.ErrPrivateNotAllowed
	}

	vehicle, err := unit.Vehicles().ByID(execCtx, domainvehicle.ID(cmd.VehicleID))
	if err != nil {
		return nil, err
	}
	if err := vehicle.CheckBookable(); err != nil {
		return nil, err
	}

	renter, err := unit.Users().ByID(execCtx, domainuser.ID(cmd.RenterID))
	if err != nil {
		return nil, err
	}
	now := h.now()
	if err := domaingroup.CheckEligibility(renter, group.Rules, now).Err(); err != nil {
		return nil, err
	}
	if err := group.CheckWindow(period.Start, period.End, now); err != nil {
		return nil, err
	}

	result, err := h.place(execCtx, unit, placement{
		renterID:      cmd.RenterID,
		vehicle:       vehicle,
		group:         group,
		period:        period,
		zone:          zone,
		kind:          kind,
		rate:          group.HourlyRate,
		commission:    group.Commission,
		awaitApproval: kind == domainbooking.KindBusiness && !group.Preferences.AutoApproveBookings,
	})
	if err != nil {
		return nil, err
	}
	h.logger().Info("group booking created", "booking_id", result.Booking.ID, "group_id", group.ID, "vehicle_id", vehicle.ID, "kind", kind, "status", result.Booking.Status)
	return result, nil
}

var _ commands.Handler[CreateGroupBookingCommand, *dto.CreateBookingResult] = (*CreateGroupBookingHandler)(nil)
var _ middleware.IdempotentCommand = CreateGroupBookingCommand{}
