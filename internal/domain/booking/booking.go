package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carrental/internal/domain/pricing"
	"carrental/internal/domain/shared/daterange"
	"carrental/internal/domain/shared/errkind"
	"carrental/internal/domain/shared/events"
	"carrental/internal/domain/shared/money"
)

var (
	ErrNotFound          = fmt.Errorf("%w: booking not found", errkind.ErrNotFound)
	ErrInvalidState      = fmt.Errorf("%w: booking: invalid state transition", errkind.ErrInvalidState)
	ErrNotOwner          = fmt.Errorf("%w: booking belongs to another renter", errkind.ErrForbidden)
	ErrAlreadyStarted    = fmt.Errorf("%w: booking has already started", errkind.ErrInvalidState)
	ErrInvalidPeriod     = fmt.Errorf("%w: end time must be after start time", errkind.ErrValidation)
	ErrInvalidKind       = fmt.Errorf("%w: booking kind must be business or private", errkind.ErrValidation)
	ErrUnbalancedSplit   = fmt.Errorf("%w: price split does not add up to the total", errkind.ErrValidation)
	ErrExtensionNotLater = fmt.Errorf("%w: new end time must be later than current end time", errkind.ErrValidation)
	ErrExtensionTooLong  = fmt.Errorf("%w: extended booking exceeds maximum duration", errkind.ErrPolicyViolation)
	ErrIntentMismatch    = fmt.Errorf("%w: payment intent does not match booking", errkind.ErrPayment)
	ErrAmountMismatch    = fmt.Errorf("%w: paid amount does not match booking total", errkind.ErrPayment)
	ErrConcurrentUpdate  = errors.New("booking: concurrent update detected")
)

type BookingID string

// PaymentRefs are the processor references attached to a booking.
type PaymentRefs struct {
	IntentID       string
	SessionID      string
	SubscriptionID string
}

type Refund struct {
	ID     string
	Amount money.Money
	At     time.Time
	Reason string
	Status string
}

type RemindersSent struct {
	Start bool
	End   bool
}

type Booking struct {
	ID              BookingID
	RenterID        string
	VehicleID       string
	GroupID         string
	Period          daterange.Range
	Timezone        string
	Kind            Kind
	Status          Status
	PaymentStatus   PaymentStatus
	Price           pricing.Split
	Payment         PaymentRefs
	Refund          Refund
	Reminders       RemindersSent
	IsStarted       bool
	IsExtended      bool
	ExtendedEnd     *time.Time
	ExtensionCharge money.Money
	CalendarEventID string
	CancelReason    string
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int64
	events.EventRecorder
}

// Filter narrows booking listings. Zero fields are ignored.
type Filter struct {
	RenterID  string
	VehicleID string
	Statuses  []Status
	// Window keeps bookings whose period overlaps it.
	Window *daterange.Range
	// CreatedBefore keeps bookings created strictly before the instant.
	CreatedBefore time.Time
}

type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	Save(ctx context.Context, booking *Booking) error
	List(ctx context.Context, filter Filter) ([]*Booking, error)
}

type CreateParams struct {
	ID        BookingID
	RenterID  string
	VehicleID string
	GroupID   string
	Period    daterange.Range
	Timezone  string
	Kind      Kind
	Price     pricing.Split
	// AwaitApproval starts a free booking in the legacy pending status instead of confirmed.
	AwaitApproval bool
	CreatedAt     time.Time
}

func NewBooking(params CreateParams) (*Booking, error) {
	if strings.TrimSpace(params.RenterID) == "" || strings.TrimSpace(params.VehicleID) == "" {
		return nil, fmt.Errorf("%w: renter and vehicle are required", errkind.ErrValidation)
	}
	if err := params.Period.Validate(); err != nil {
		return nil, ErrInvalidPeriod
	}
	if !params.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	if !params.Price.Balanced() {
		return nil, ErrUnbalancedSplit
	}
	now := params.CreatedAt.UTC()
	b := &Booking{
		ID:              params.ID,
		RenterID:        params.RenterID,
		VehicleID:       params.VehicleID,
		GroupID:         params.GroupID,
		Period:          params.Period,
		Timezone:        params.Timezone,
		Kind:            params.Kind,
		Price:           params.Price,
		ExtensionCharge: money.Zero(params.Price.Total.Currency),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	switch {
	case params.Kind == KindBusiness || params.Price.Total.IsZero():
		b.PaymentStatus = PaymentFree
		b.Price.PaymentStatus = PaymentFree
		b.Status = StatusConfirmed
		if params.AwaitApproval {
			b.Status = StatusPending
		}
	default:
		b.PaymentStatus = PaymentPending
		b.Status = StatusPendingPayment
	}
	b.Record(BookingCreated{
		BookingID: b.ID, RenterID: b.RenterID, VehicleID: b.VehicleID, GroupID: b.GroupID,
		Start: b.Period.Start, End: b.Period.End, Timezone: b.Timezone, Kind: string(b.Kind),
		Status: string(b.Status), TotalCents: b.Price.Total.Amount, Currency: b.Price.Total.Currency, At: now,
	})
	return b, nil
}

// RequiresPayment reports whether the renter still owes the total.
func (b *Booking) RequiresPayment() bool {
	return b.Kind == KindPrivate && b.Status.AwaitingPayment() && !b.Price.Total.IsZero() && b.PaymentStatus != PaymentPaid
}

func (b *Booking) IsOwnedBy(renterID string) bool {
	return b.RenterID == renterID
}

// CheckCancellable reports why the renter cannot cancel at now, if at all.
func (b *Booking) CheckCancellable(renterID string, now time.Time) error {
	if !b.IsOwnedBy(renterID) {
		return ErrNotOwner
	}
	if b.Status == StatusOngoing || b.IsStarted {
		return fmt.Errorf("%w: ongoing bookings cannot be cancelled", ErrAlreadyStarted)
	}
	if !b.Status.in(CancellableStatuses) {
		return fmt.Errorf("%w: cannot cancel a %s booking", ErrInvalidState, b.Status)
	}
	if !now.Before(b.Period.Start) {
		return fmt.Errorf("%w: cannot cancel at or after the start time", ErrAlreadyStarted)
	}
	return nil
}

func (b *Booking) Cancel(renterID, reason string, now time.Time) error {
	if err := b.CheckCancellable(renterID, now); err != nil {
		return err
	}
	b.cancel(reason, now)
	return nil
}

// Expire cancels an unpaid booking on behalf of the system.
func (b *Booking) Expire(reason string, now time.Time) error {
	if !b.Status.AwaitingPayment() || b.PaymentStatus == PaymentPaid {
		return ErrInvalidState
	}
	b.cancel(reason, now)
	return nil
}

// FailPaymentSetup is the compensating transition when no payment intent could be created.
func (b *Booking) FailPaymentSetup(reason string, now time.Time) error {
	if b.Status != StatusPendingPayment {
		return ErrInvalidState
	}
	b.PaymentStatus = PaymentFailed
	b.cancel(reason, now)
	return nil
}

func (b *Booking) cancel(reason string, now time.Time) {
	at := now.UTC()
	b.Status = StatusCancelled
	b.CancelReason = reason
	b.CancelledAt = &at
	b.UpdatedAt = at
	b.Record(BookingCancelled{BookingID: b.ID, RenterID: b.RenterID, VehicleID: b.VehicleID, Reason: reason, PaymentStatus: string(b.PaymentStatus), At: at})
}

// RefundEligible reports whether a cancelled-before-start booking should be refunded.
func (b *Booking) RefundEligible() bool {
	return b.PaymentStatus == PaymentPaid && b.Payment.IntentID != "" && b.Refund.ID == ""
}

func (b *Booking) RecordRefund(r Refund, now time.Time) {
	at := now.UTC()
	if r.At.IsZero() {
		r.At = at
	}
	b.Refund = r
	b.PaymentStatus = PaymentRefunded
	b.UpdatedAt = at
	b.Record(BookingRefunded{BookingID: b.ID, RefundID: r.ID, AmountCents: r.Amount.Amount, Currency: r.Amount.Currency, At: at})
}

func (b *Booking) AttachPaymentIntent(intentID string, now time.Time) error {
	if b.Status != StatusPendingPayment || strings.TrimSpace(intentID) == "" {
		return ErrInvalidState
	}
	b.Payment.IntentID = intentID
	b.UpdatedAt = now.UTC()
	return nil
}

// MarkPaid applies a successful payment. It reports false when the payment was already applied.
func (b *Booking) MarkPaid(intentID string, amount money.Money, now time.Time) (bool, error) {
	if b.PaymentStatus == PaymentPaid && b.Payment.IntentID == intentID {
		return false, nil
	}
	if b.Status != StatusPendingPayment {
		return false, fmt.Errorf("%w: cannot apply payment to a %s booking", ErrInvalidState, b.Status)
	}
	if err := b.checkCapture(intentID, amount); err != nil {
		return false, err
	}
	at := now.UTC()
	b.Payment.IntentID = intentID
	b.PaymentStatus = PaymentPaid
	b.Status = StatusUpcoming
	b.UpdatedAt = at
	b.Record(BookingPaid{BookingID: b.ID, RenterID: b.RenterID, IntentID: intentID, AmountCents: amount.Amount, Currency: amount.Currency, At: at})
	return true, nil
}

// RejectPayment cancels an unpaid booking whose slot was taken before its
// payment arrived. The capture is kept on record so it can be refunded.
func (b *Booking) RejectPayment(intentID string, amount money.Money, reason string, now time.Time) error {
	if b.Status != StatusPendingPayment {
		return fmt.Errorf("%w: cannot reject payment of a %s booking", ErrInvalidState, b.Status)
	}
	if err := b.checkCapture(intentID, amount); err != nil {
		return err
	}
	b.Payment.IntentID = intentID
	b.PaymentStatus = PaymentPaid
	b.cancel(reason, now)
	return nil
}

// RecordLateCapture notes a payment captured after the booking was cancelled
// so it becomes refundable. It reports false when the capture is already on record.
func (b *Booking) RecordLateCapture(intentID string, now time.Time) (bool, error) {
	if b.Status != StatusCancelled {
		return false, fmt.Errorf("%w: booking %s is not cancelled", ErrInvalidState, b.ID)
	}
	if b.Payment.IntentID != "" && b.Payment.IntentID != intentID {
		return false, ErrIntentMismatch
	}
	if b.PaymentStatus == PaymentPaid || b.PaymentStatus == PaymentRefunded {
		return false, nil
	}
	b.Payment.IntentID = intentID
	b.PaymentStatus = PaymentPaid
	b.UpdatedAt = now.UTC()
	return true, nil
}

func (b *Booking) checkCapture(intentID string, amount money.Money) error {
	if b.Payment.IntentID != "" && b.Payment.IntentID != intentID {
		return ErrIntentMismatch
	}
	if amount.Amount != b.Price.Total.Amount {
		return fmt.Errorf("%w: paid %d, expected %d", ErrAmountMismatch, amount.Amount, b.Price.Total.Amount)
	}
	return nil
}

// MarkPaymentFailed keeps the booking in pending_payment so the renter can retry.
func (b *Booking) MarkPaymentFailed(intentID, reason string, now time.Time) (bool, error) {
	if b.Status != StatusPendingPayment {
		return false, fmt.Errorf("%w: cannot fail payment of a %s booking", ErrInvalidState, b.Status)
	}
	if b.Payment.IntentID != "" && b.Payment.IntentID != intentID {
		return false, ErrIntentMismatch
	}
	if b.PaymentStatus == PaymentFailed {
		return false, nil
	}
	at := now.UTC()
	b.PaymentStatus = PaymentFailed
	b.UpdatedAt = at
	b.Record(BookingPaymentFailed{BookingID: b.ID, RenterID: b.RenterID, IntentID: intentID, Reason: reason, At: at})
	return true, nil
}

// MarkPaymentCanceled resets a cancelled intent back to pending.
func (b *Booking) MarkPaymentCanceled(intentID string, now time.Time) (bool, error) {
	if b.Status != StatusPendingPayment {
		return false, fmt.Errorf("%w: cannot reset payment of a %s booking", ErrInvalidState, b.Status)
	}
	if b.Payment.IntentID != "" && b.Payment.IntentID != intentID {
		return false, ErrIntentMismatch
	}
	if b.PaymentStatus == PaymentPending {
		return false, nil
	}
	b.PaymentStatus = PaymentPending
	b.UpdatedAt = now.UTC()
	return true, nil
}

// Approve confirms a free booking that was waiting for a group admin.
func (b *Booking) Approve(by string, now time.Time) error {
	if b.Status != StatusPending || b.PaymentStatus != PaymentFree {
		return fmt.Errorf("%w: only pending free bookings can be approved", ErrInvalidState)
	}
	at := now.UTC()
	b.Status = StatusConfirmed
	b.UpdatedAt = at
	b.Record(BookingApproved{BookingID: b.ID, RenterID: b.RenterID, By: by, At: at})
	return nil
}

// Start moves a confirmed or paid booking to ongoing.
func (b *Booking) Start(now time.Time) error {
	if b.Status != StatusConfirmed && b.Status != StatusUpcoming {
		return ErrInvalidState
	}
	at := now.UTC()
	b.Status = StatusOngoing
	b.IsStarted = true
	b.UpdatedAt = at
	b.Record(BookingStarted{BookingID: b.ID, VehicleID: b.VehicleID, At: at})
	return nil
}

func (b *Booking) Complete(now time.Time) error {
	if b.Status != StatusOngoing {
		return ErrInvalidState
	}
	at := now.UTC()
	b.Status = StatusCompleted
	b.UpdatedAt = at
	b.Record(BookingCompleted{BookingID: b.ID, VehicleID: b.VehicleID, At: at})
	return nil
}

// CheckExtendable validates the renter and status before the orchestrator does I/O.
func (b *Booking) CheckExtendable(renterID string, newEnd time.Time) error {
	if !b.IsOwnedBy(renterID) {
		return ErrNotOwner
	}
	if !newEnd.After(b.Period.End) {
		return ErrExtensionNotLater
	}
	switch b.Status {
	case StatusConfirmed, StatusUpcoming, StatusOngoing:
		return nil
	default:
		return fmt.Errorf("%w: cannot extend a %s booking", ErrInvalidState, b.Status)
	}
}

// Extend moves the end time, keeping the status. maxDuration bounds the whole booking.
func (b *Booking) Extend(renterID string, newEnd time.Time, maxDuration time.Duration, charge money.Money, now time.Time) error {
	if err := b.CheckExtendable(renterID, newEnd); err != nil {
		return err
	}
	extended, err := b.Period.WithEnd(newEnd)
	if err != nil {
		return ErrInvalidPeriod
	}
	if maxDuration > 0 && extended.Duration() > maxDuration {
		return fmt.Errorf("%w: limit is %s", ErrExtensionTooLong, maxDuration)
	}
	total := b.ExtensionCharge
	if total.Currency == "" {
		total = money.Zero(charge.Currency)
	}
	if sum, err := total.Add(charge); err == nil {
		total = sum
	}
	at := now.UTC()
	previous := b.Period.End
	end := extended.End
	b.Period = extended
	b.IsExtended = true
	b.ExtendedEnd = &end
	b.ExtensionCharge = total
	b.Reminders.End = false
	b.UpdatedAt = at
	b.Record(BookingExtended{BookingID: b.ID, RenterID: b.RenterID, PreviousEnd: previous, NewEnd: end, ChargeCents: charge.Amount, Currency: charge.Currency, At: at})
	return nil
}

func (b *Booking) MarkStartReminderSent(now time.Time) {
	b.Reminders.Start = true
	b.UpdatedAt = now.UTC()
}

func (b *Booking) MarkEndReminderSent(now time.Time) {
	b.Reminders.End = true
	b.UpdatedAt = now.UTC()
}

func (b *Booking) SetCalendarEvent(eventID string, now time.Time) {
	b.CalendarEventID = eventID
	b.UpdatedAt = now.UTC()
}
