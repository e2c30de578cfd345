package booking

import (
	"context"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	"carrental/internal/domain/availability"
	domainbooking "carrental/internal/domain/booking"
	domaingroup "carrental/internal/domain/group"
)

const approveBookingKey = "booking.approve"

// ApproveBookingCommand confirms a group business booking held for admin approval.
type ApproveBookingCommand struct {
	BookingID string `json:"booking_id" validate:"required"`
	AdminID   string `json:"admin_id" validate:"required"`
}

func (c ApproveBookingCommand) Key() string { return approveBookingKey }

func (c ApproveBookingCommand) ActorID() string { return c.AdminID }

type ApproveBookingHandler struct {
	Deps
}

func (h *ApproveBookingHandler) Handle(ctx context.Context, cmd ApproveBookingCommand) (*dto.BookingView, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginSequentialUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	b, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	if b.GroupID == "" {
		return nil, domainbooking.ErrInvalidState
	}
	g, err := unit.Groups().ByID(execCtx, domaingroup.ID(b.GroupID))
	if err != nil {
		return nil, err
	}
	if !g.IsActiveAdmin(cmd.AdminID) {
		return nil, domaingroup.ErrNotAdmin
	}

	unlock, err := h.locker().Lock(execCtx, b.VehicleID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	// pending bookings never held the slot, so it has to be free now.
	if err := availability.NewIndex(unit.Bookings()).EnsureFree(execCtx, b.VehicleID, b.Period, b.ID); err != nil {
		return nil, err
	}
	if err := b.Approve(cmd.AdminID, h.now()); err != nil {
		return nil, err
	}
	if err := h.save(execCtx, unit, b); err != nil {
		return nil, err
	}
	view := dto.MapBooking(b, h.timezones())
	return &view, nil
}

var _ commands.Handler[ApproveBookingCommand, *dto.BookingView] = (*ApproveBookingHandler)(nil)
