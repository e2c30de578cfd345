package booking

import (
	"context"
	"time"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	"carrental/internal/app/middleware"
	"carrental/internal/app/schedule"
	"carrental/internal/app/uow"
	"carrental/internal/domain/availability"
	domainbooking "carrental/internal/domain/booking"
	domaingroup "carrental/internal/domain/group"
	"carrental/internal/domain/pricing"
	"carrental/internal/domain/shared/daterange"
	"carrental/internal/domain/shared/money"
	domainvehicle "carrental/internal/domain/vehicle"
)

const extendBookingKey = "booking.extend"

type ExtendBookingCommand struct {
	BookingID string `json:"booking_id" validate:"required"`
	RenterID  string `json:"renter_id" validate:"required"`
	// NewEnd is a local time in the booking's timezone, or RFC3339.
	NewEnd          string `json:"new_end_time" validate:"required"`
	IdempotencyKeyV string `json:"-"`
}

func (c ExtendBookingCommand) Key() string { return extendBookingKey }

func (c ExtendBookingCommand) ActorID() string { return c.RenterID }

func (c ExtendBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c ExtendBookingCommand) ResultPrototype() any { return &dto.ExtendResult{} }

func (c ExtendBookingCommand) Sequential() bool { return true }

type ExtendBookingHandler struct {
	Deps
}

func (h *ExtendBookingHandler) Handle(ctx context.Context, cmd ExtendBookingCommand) (*dto.ExtendResult, error) {
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
	newEnd, err := h.timezones().ToUTC(cmd.NewEnd, b.Timezone)
	if err != nil {
		return nil, err
	}
	if err := b.CheckExtendable(cmd.RenterID, newEnd); err != nil {
		return nil, err
	}

	vehicle, err := unit.Vehicles().ByID(execCtx, domainvehicle.ID(b.VehicleID))
	if err != nil {
		return nil, err
	}
	if vehicle.IsDeleted {
		return nil, domainvehicle.ErrNotFound
	}
	if !vehicle.IsBookable {
		return nil, domainvehicle.ErrNotBookable
	}
	if !vehicle.IsAvailable && b.Status != domainbooking.StatusOngoing {
		return nil, domainvehicle.ErrNotAvailable
	}

	rate, maxDuration, err := h.extensionTerms(execCtx, unit, b, vehicle)
	if err != nil {
		return nil, err
	}

	previousEnd := b.Period.End
	extra := daterange.Range{Start: previousEnd, End: newEnd}
	charge := pricing.Additional(b.Kind, extra.Hours(), rate)

	if err := h.extendLocked(execCtx, unit, b, extra, newEnd, maxDuration, charge); err != nil {
		return nil, err
	}
	h.logger().Info("booking extended", "booking_id", b.ID, "previous_end", previousEnd, "new_end", newEnd, "additional_cost", charge.String())

	result := &dto.ExtendResult{
		PreviousEnd:     previousEnd,
		NewEnd:          newEnd,
		AdditionalHours: extra.Hours(),
		AdditionalCost:  dto.MapMoney(charge),
	}
	if _, err := h.cancelJobs(execCtx, b.ID, schedule.JobEndBooking, schedule.JobReminderEnd); err != nil {
		result.Warnings = append(result.Warnings, "stale end jobs were not cancelled")
	}
	handles, warnings := h.scheduleJobs(execCtx, b, schedule.EndPlan(newEnd, h.now(), h.ReminderLead))
	result.RescheduledJobs = dto.MapJobs(handles)
	result.Warnings = append(result.Warnings, warnings...)

	if h.Calendar != nil && b.CalendarEventID != "" {
		if err := h.Calendar.UpdateEvent(execCtx, b.CalendarEventID, h.calendarEvent(b, "Car rental: "+vehicle.Title(), vehicle.Location)); err != nil {
			h.logger().Warn("calendar event not updated", "booking_id", b.ID, "error", err)
		}
	}

	result.Booking = dto.MapBooking(b, h.timezones())
	return result, nil
}

// extensionTerms returns the hourly rate and maximum total duration that apply to b.
func (h *ExtendBookingHandler) extensionTerms(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, v *domainvehicle.Vehicle) (money.Money, time.Duration, error) {
	if b.GroupID == "" {
		return v.HourlyRate, v.Policy.MaxDuration(), nil
	}
	g, err := unit.Groups().ByID(ctx, domaingroup.ID(b.GroupID))
	if err != nil {
		return money.Money{}, 0, err
	}
	return g.HourlyRate, g.MaxDuration(), nil
}

func (h *ExtendBookingHandler) extendLocked(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, extra daterange.Range, newEnd time.Time, maxDuration time.Duration, charge money.Money) error {
	unlock, err := h.locker().Lock(ctx, b.VehicleID)
	if err != nil {
		return err
	}
	defer unlock()
	if err := availability.NewIndex(unit.Bookings()).EnsureFree(ctx, b.VehicleID, extra, b.ID); err != nil {
		return err
	}
	if err := b.Extend(b.RenterID, newEnd, maxDuration, charge, h.now()); err != nil {
		return err
	}
	return h.save(ctx, unit, b)
}

var _ commands.Handler[ExtendBookingCommand, *dto.ExtendResult] = (*ExtendBookingHandler)(nil)
var _ middleware.IdempotentCommand = ExtendBookingCommand{}
