// Package booking holds the booking orchestrator: the command and query
// handlers that create, cancel, extend, approve and settle bookings.
package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"carrental/internal/app/dto"
	"carrental/internal/app/outbox"
	"carrental/internal/app/payments"
	"carrental/internal/app/policies"
	"carrental/internal/app/schedule"
	"carrental/internal/app/uow"
	"carrental/internal/domain/availability"
	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/timezone"
)

// Deps are the collaborators shared by the booking handlers. Scheduler,
// Payments and Calendar may be nil; the matching follow-ups are then skipped.
type Deps struct {
	UoWFactory   uow.UoWFactory
	Locker       availability.Locker
	Scheduler    schedule.Scheduler
	Payments     *payments.Coordinator
	Calendar     policies.Calendar
	Timezones    *timezone.Normalizer
	Outbox       outbox.Outbox
	Encoder      outbox.EventEncoder
	Logger       *slog.Logger
	Clock        func() time.Time
	NewID        func() string
	ReminderLead time.Duration
}

var fallbackLocker = availability.NewKeyedMutex()

func (d *Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock().UTC()
	}
	return time.Now().UTC()
}

func (d *Deps) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Deps) locker() availability.Locker {
	if d.Locker != nil {
		return d.Locker
	}
	return fallbackLocker
}

func (d *Deps) timezones() *timezone.Normalizer {
	if d.Timezones != nil {
		return d.Timezones
	}
	return timezone.NewNormalizer("")
}

func (d *Deps) encoder() outbox.EventEncoder {
	if d.Encoder != nil {
		return d.Encoder
	}
	return outbox.JSONEventEncoder{}
}

// save persists b and moves its pending events into the outbox.
func (d *Deps) save(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error {
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return err
	}
	if err := outbox.Drain(ctx, d.Outbox, d.encoder(), b); err != nil {
		d.logger().Warn("booking events not recorded", "booking_id", b.ID, "error", err)
	}
	return nil
}

// scheduleJobs registers plans for b. Failures are logged and returned as warnings.
func (d *Deps) scheduleJobs(ctx context.Context, b *domainbooking.Booking, plans []schedule.Plan) ([]schedule.JobHandle, []string) {
	if d.Scheduler == nil {
		return nil, nil
	}
	var (
		handles  []schedule.JobHandle
		warnings []string
	)
	for _, p := range plans {
		h, err := d.Scheduler.Schedule(ctx, p.RunAt, p.Name, schedule.Payload{BookingID: string(b.ID)})
		if err != nil {
			d.logger().Warn("job not scheduled", "booking_id", b.ID, "job", p.Name, "error", err)
			warnings = append(warnings, "could not schedule "+p.Name)
			continue
		}
		handles = append(handles, h)
	}
	return handles, warnings
}

func (d *Deps) cancelJobs(ctx context.Context, id domainbooking.BookingID, names ...string) (int, error) {
	if d.Scheduler == nil {
		return 0, nil
	}
	n, err := d.Scheduler.Cancel(ctx, schedule.Matcher{BookingID: string(id), Names: names})
	if err != nil {
		d.logger().Warn("jobs not cancelled", "booking_id", id, "jobs", names, "error", err)
	}
	return n, err
}

func (d *Deps) calendarEvent(b *domainbooking.Booking, summary, location string) policies.CalendarEvent {
	return policies.CalendarEvent{
		BookingID:   string(b.ID),
		Summary:     summary,
		Description: "Booking " + string(b.ID) + " (" + string(b.Kind) + ")",
		Location:    location,
		Start:       b.Period.Start,
		End:         b.Period.End,
		Timezone:    b.Timezone,
	}
}

func mapRefund(r payments.RefundOutcome) dto.RefundOutcome {
	return dto.RefundOutcome{
		Attempted: r.Attempted,
		Processed: r.Processed,
		RefundID:  r.RefundID,
		Amount:    dto.MapMoney(r.Amount),
		Error:     r.Error,
	}
}
