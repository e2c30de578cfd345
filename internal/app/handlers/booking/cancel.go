package booking

import (
	"context"
	"strings"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	"carrental/internal/app/middleware"
	"carrental/internal/app/uow"
	"carrental/internal/domain/availability"
	domainbooking "carrental/internal/domain/booking"
	domainvehicle "carrental/internal/domain/vehicle"
)

const (
	cancelBookingKey      = "booking.cancel"
	defaultCancelReason   = "Cancelled by renter"
	vehicleBusyReleaseMsg = "vehicle is in another ongoing booking"
)

type CancelBookingCommand struct {
	BookingID       string `json:"booking_id" validate:"required"`
	RenterID        string `json:"renter_id" validate:"required"`
	Reason          string `json:"reason"`
	IdempotencyKeyV string `json:"-"`
}

func (c CancelBookingCommand) Key() string { return cancelBookingKey }

func (c CancelBookingCommand) ActorID() string { return c.RenterID }

func (c CancelBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CancelBookingCommand) ResultPrototype() any { return &dto.CancelOutcome{} }

func (c CancelBookingCommand) Sequential() bool { return true }

type CancelBookingHandler struct {
	Deps
}

// Handle cancels the booking first and then runs every follow-up best effort:
// refund, intent cancellation, job cancellation, vehicle release and calendar
// removal. Their results are reported in the outcome, never as an error.
func (h *CancelBookingHandler) Handle(ctx context.Context, cmd CancelBookingCommand) (*dto.CancelOutcome, error) {
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
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = defaultCancelReason
	}
	if err := b.Cancel(cmd.RenterID, reason, h.now()); err != nil {
		return nil, err
	}
	if err := h.save(execCtx, unit, b); err != nil {
		return nil, err
	}
	out := &dto.CancelOutcome{Cancelled: true}
	h.logger().Info("booking cancelled", "booking_id", b.ID, "renter_id", b.RenterID)

	if h.Payments != nil {
		refund := h.Payments.Refund(execCtx, b)
		out.Refund = mapRefund(refund)
		if refund.Processed {
			if err := h.save(execCtx, unit, b); err != nil {
				h.logger().Error("refund processed but not stored", "booking_id", b.ID, "refund_id", refund.RefundID, "error", err)
			}
		}
		cancelled, err := h.Payments.CancelIntent(execCtx, b)
		out.IntentCancelled = cancelled
		if err != nil {
			out.IntentError = err.Error()
			h.logger().Warn("payment intent not cancelled", "booking_id", b.ID, "error", err)
		}
	}

	n, err := h.cancelJobs(execCtx, b.ID)
	out.JobsCancelled = n
	if err != nil {
		out.JobsError = err.Error()
	}

	released, err := h.releaseVehicle(execCtx, unit, b)
	out.VehicleReleased = released
	if err != nil {
		out.VehicleError = err.Error()
	}

	if h.Calendar != nil && b.CalendarEventID != "" {
		if err := h.Calendar.DeleteEvent(execCtx, b.CalendarEventID); err != nil {
			out.CalendarError = err.Error()
			h.logger().Warn("calendar event not removed", "booking_id", b.ID, "error", err)
		} else {
			out.CalendarRemoved = true
		}
	}

	out.Booking = dto.MapBooking(b, h.timezones())
	return out, nil
}

// releaseVehicle marks the vehicle available unless another booking is ongoing on it.
func (h *CancelBookingHandler) releaseVehicle(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) (bool, error) {
	if b.VehicleID == "" {
		return false, nil
	}
	busy, err := availability.NewIndex(unit.Bookings()).OngoingElsewhere(ctx, b.VehicleID, b.ID)
	if err != nil {
		h.logger().Warn("vehicle release check failed", "booking_id", b.ID, "vehicle_id", b.VehicleID, "error", err)
		return false, err
	}
	if busy {
		h.logger().Info("vehicle left unavailable", "vehicle_id", b.VehicleID, "reason", vehicleBusyReleaseMsg)
		return false, nil
	}
	if err := unit.Vehicles().SetAvailability(ctx, domainvehicle.ID(b.VehicleID), true); err != nil {
		h.logger().Warn("vehicle not released", "booking_id", b.ID, "vehicle_id", b.VehicleID, "error", err)
		return false, err
	}
	return true, nil
}

var _ commands.Handler[CancelBookingCommand, *dto.CancelOutcome] = (*CancelBookingHandler)(nil)
var _ middleware.IdempotentCommand = CancelBookingCommand{}
