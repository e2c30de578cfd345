package booking

import (
	"context"
	"errors"

	"carrental/internal/app/dto"
	"carrental/internal/app/saga"
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

const paymentSetupFailedReason = "Payment setup failed"

// placement is a validated booking request waiting to be priced and stored.
type placement struct {
	renterID      string
	vehicle       *domainvehicle.Vehicle
	group         *domaingroup.Group
	period        daterange.Range
	zone          string
	kind          domainbooking.Kind
	rate          money.Money
	commission    pricing.Commission
	awaitApproval bool
}

// resolvePeriod converts local start/end strings in zone to a UTC range.
func (d *Deps) resolvePeriod(start, end, zone string) (daterange.Range, string, error) {
	tz := d.timezones()
	zone = tz.ZoneOrDefault(zone)
	if _, err := tz.Location(zone); err != nil {
		return daterange.Range{}, "", err
	}
	s, err := tz.ToUTC(start, zone)
	if err != nil {
		return daterange.Range{}, "", err
	}
	e, err := tz.ToUTC(end, zone)
	if err != nil {
		return daterange.Range{}, "", err
	}
	r, err := daterange.New(s, e)
	if err != nil {
		return daterange.Range{}, "", domainbooking.ErrInvalidPeriod
	}
	return r, zone, nil
}

// place stores the booking and runs its follow-ups: lifecycle jobs, then the
// payment intent. A failed intent cancels the booking and its jobs again.
func (d *Deps) place(ctx context.Context, unit uow.UnitOfWork, p placement) (*dto.CreateBookingResult, error) {
	split, err := pricing.Quote(p.kind, p.period.Hours(), p.rate, p.commission)
	if err != nil {
		return nil, err
	}
	var (
		b      *domainbooking.Booking
		result = &dto.CreateBookingResult{}
	)
	groupID := ""
	if p.group != nil {
		groupID = string(p.group.ID)
	}

	persist := saga.Step{
		Name: "persist",
		Execute: func(ctx context.Context) error {
			unlock, err := d.locker().Lock(ctx, string(p.vehicle.ID))
			if err != nil {
				return err
			}
			defer unlock()
			if err := availability.NewIndex(unit.Bookings()).EnsureFree(ctx, string(p.vehicle.ID), p.period, ""); err != nil {
				return err
			}
			b, err = domainbooking.NewBooking(domainbooking.CreateParams{
				ID:            domainbooking.BookingID(d.newID()),
				RenterID:      p.renterID,
				VehicleID:     string(p.vehicle.ID),
				GroupID:       groupID,
				Period:        p.period,
				Timezone:      p.zone,
				Kind:          p.kind,
				Price:         split,
				AwaitApproval: p.awaitApproval,
				CreatedAt:     d.now(),
			})
			if err != nil {
				return err
			}
			return d.save(ctx, unit, b)
		},
		Compensate: func(ctx context.Context, cause error) error {
			if err := b.FailPaymentSetup(paymentSetupFailedReason, d.now()); err != nil {
				return err
			}
			d.logger().Warn("booking rolled back after payment setup failure", "booking_id", b.ID, "error", cause)
			return d.save(ctx, unit, b)
		},
	}

	jobs := saga.Step{
		Name: "schedule",
		Execute: func(ctx context.Context) error {
			handles, warnings := d.scheduleJobs(ctx, b, schedule.LifecyclePlan(b.Period.Start, b.Period.End, d.now(), d.ReminderLead))
			result.ScheduledJobs = dto.MapJobs(handles)
			result.Warnings = append(result.Warnings, warnings...)
			return nil
		},
		Compensate: func(ctx context.Context, _ error) error {
			_, err := d.cancelJobs(ctx, b.ID)
			result.ScheduledJobs = nil
			return err
		},
	}

	payment := saga.Step{
		Name: "payment",
		Execute: func(ctx context.Context) error {
			if !b.RequiresPayment() {
				return nil
			}
			if d.Payments == nil {
				return errPaymentsUnavailable
			}
			intent, err := d.Payments.CreateIntent(ctx, b, p.vehicle)
			if err != nil {
				return err
			}
			if err := b.AttachPaymentIntent(intent.ID, d.now()); err != nil {
				return err
			}
			if err := d.save(ctx, unit, b); err != nil {
				return err
			}
			result.RequiresPayment = true
			result.NextStep = dto.NextStepCompletePayment
			result.PaymentIntent = dto.MapIntent(intent)
			return nil
		},
	}

	if err := saga.Run(ctx, persist, jobs, payment); err != nil {
		var failure *saga.Failure
		if errors.As(err, &failure) {
			if failure.Compensation != nil {
				d.logger().Error("booking compensation incomplete", "step", failure.Step, "error", failure.Compensation)
			}
			return nil, failure.Err
		}
		return nil, err
	}

	d.syncCalendarCreate(ctx, unit, b, p.vehicle)
	result.Booking = dto.MapBooking(b, d.timezones())
	return result, nil
}

func (d *Deps) syncCalendarCreate(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, v *domainvehicle.Vehicle) {
	if d.Calendar == nil {
		return
	}
	eventID, err := d.Calendar.CreateEvent(ctx, d.calendarEvent(b, "Car rental: "+v.Title(), v.Location))
	if err != nil {
		d.logger().Warn("calendar event not created", "booking_id", b.ID, "error", err)
		return
	}
	b.SetCalendarEvent(eventID, d.now())
	if err := d.save(ctx, unit, b); err != nil {
		d.logger().Warn("calendar event id not stored", "booking_id", b.ID, "error", err)
	}
}
