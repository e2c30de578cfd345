// Package lifecycle runs the deferred booking jobs: start, end and the two
// reminders. Jobs are delivered at least once and may arrive after the booking
// moved on, so every handler re-reads the booking and no-ops when its
// transition no longer applies.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	"carrental/internal/app/outbox"
	"carrental/internal/app/policies"
	"carrental/internal/app/schedule"
	"carrental/internal/app/uow"
	"carrental/internal/domain/availability"
	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/timezone"
	domainuser "carrental/internal/domain/user"
	domainvehicle "carrental/internal/domain/vehicle"
)

type Handlers struct {
	UoWFactory uow.UoWFactory
	Notifier   policies.Notifier
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Timezones  *timezone.Normalizer
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Router maps the lifecycle job names to their handlers.
func (h *Handlers) Router() schedule.Router {
	return schedule.Router{
		schedule.JobStartBooking:  schedule.JobHandlerFunc(h.StartBooking),
		schedule.JobEndBooking:    schedule.JobHandlerFunc(h.EndBooking),
		schedule.JobReminderStart: schedule.JobHandlerFunc(h.ReminderStart),
		schedule.JobReminderEnd:   schedule.JobHandlerFunc(h.ReminderEnd),
	}
}

// StartBooking moves a confirmed or paid booking to ongoing and takes the vehicle off the market.
func (h *Handlers) StartBooking(ctx context.Context, job schedule.Job) error {
	return h.withBooking(ctx, job, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error {
		if b.Status != domainbooking.StatusConfirmed && b.Status != domainbooking.StatusUpcoming {
			h.skip(job, b, "not confirmed or upcoming")
			return nil
		}
		if err := b.Start(h.now()); err != nil {
			return err
		}
		if err := h.save(ctx, unit, b); err != nil {
			return err
		}
		if err := unit.Vehicles().SetAvailability(ctx, domainvehicle.ID(b.VehicleID), false); err != nil {
			h.logger().Warn("vehicle not marked unavailable", "booking_id", b.ID, "vehicle_id", b.VehicleID, "error", err)
		}
		h.logger().Info("booking started", "booking_id", b.ID, "vehicle_id", b.VehicleID)
		return nil
	})
}

// EndBooking completes an ongoing booking and releases the vehicle.
func (h *Handlers) EndBooking(ctx context.Context, job schedule.Job) error {
	return h.withBooking(ctx, job, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error {
		if b.Status != domainbooking.StatusOngoing {
			h.skip(job, b, "not ongoing")
			return nil
		}
		if err := b.Complete(h.now()); err != nil {
			return err
		}
		if err := h.save(ctx, unit, b); err != nil {
			return err
		}
		busy, err := availability.NewIndex(unit.Bookings()).OngoingElsewhere(ctx, b.VehicleID, b.ID)
		if err != nil {
			h.logger().Warn("vehicle release check failed", "booking_id", b.ID, "error", err)
			return nil
		}
		if !busy {
			if err := unit.Vehicles().SetAvailability(ctx, domainvehicle.ID(b.VehicleID), true); err != nil {
				h.logger().Warn("vehicle not released", "booking_id", b.ID, "vehicle_id", b.VehicleID, "error", err)
			}
		}
		h.logger().Info("booking completed", "booking_id", b.ID, "vehicle_id", b.VehicleID)
		return nil
	})
}

func (h *Handlers) ReminderStart(ctx context.Context, job schedule.Job) error {
	return h.withBooking(ctx, job, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error {
		if b.Status == domainbooking.StatusCancelled || b.Reminders.Start {
			h.skip(job, b, "cancelled or already reminded")
			return nil
		}
		if err := h.remind(ctx, unit, b, policies.TemplateReminderStart); err != nil {
			return err
		}
		b.MarkStartReminderSent(h.now())
		return h.save(ctx, unit, b)
	})
}

func (h *Handlers) ReminderEnd(ctx context.Context, job schedule.Job) error {
	return h.withBooking(ctx, job, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error {
		if b.Status == domainbooking.StatusCancelled || b.Status == domainbooking.StatusCompleted || b.Reminders.End {
			h.skip(job, b, "finished or already reminded")
			return nil
		}
		if err := h.remind(ctx, unit, b, policies.TemplateReminderEnd); err != nil {
			return err
		}
		b.MarkEndReminderSent(h.now())
		return h.save(ctx, unit, b)
	})
}

// remind sends template to the renter. A send failure is returned so the job is retried.
func (h *Handlers) remind(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, template string) error {
	if h.Notifier == nil {
		return nil
	}
	renter, err := unit.Users().ByID(ctx, domainuser.ID(b.RenterID))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			h.logger().Warn("reminder dropped, renter unknown", "booking_id", b.ID, "renter_id", b.RenterID)
			return nil
		}
		return err
	}
	return h.Notifier.Send(ctx, renter.Email, template, dto.MapNotice(b, renter, h.timezones()))
}

func (h *Handlers) withBooking(ctx context.Context, job schedule.Job, fn func(context.Context, uow.UnitOfWork, *domainbooking.Booking) error) error {
	unit, execCtx, cleanup, err := handlersupport.BeginSequentialUnit(ctx, h.UoWFactory)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	b, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(job.Payload.BookingID))
	if err != nil {
		if errors.Is(err, domainbooking.ErrNotFound) {
			h.logger().Warn("job for unknown booking dropped", "job", job.Name, "booking_id", job.Payload.BookingID)
			return nil
		}
		return err
	}
	return fn(execCtx, unit, b)
}

func (h *Handlers) save(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error {
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return err
	}
	if h.Outbox == nil {
		return nil
	}
	encoder := h.Encoder
	if encoder == nil {
		encoder = outbox.JSONEventEncoder{}
	}
	if err := outbox.Drain(ctx, h.Outbox, encoder, b); err != nil {
		h.logger().Warn("booking events not recorded", "booking_id", b.ID, "error", err)
		return nil
	}
	if err := h.Outbox.Flush(ctx); err != nil {
		h.logger().Warn("booking events not flushed", "booking_id", b.ID, "error", err)
	}
	return nil
}

func (h *Handlers) skip(job schedule.Job, b *domainbooking.Booking, why string) {
	h.logger().Debug("job skipped", "job", job.Name, "booking_id", b.ID, "status", b.Status, "reason", why)
}

func (h *Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handlers) timezones() *timezone.Normalizer {
	if h.Timezones != nil {
		return h.Timezones
	}
	return timezone.NewNormalizer("")
}
