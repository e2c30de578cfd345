package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrental/internal/app/dto"
	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/shared/errkind"
	domainvehicle "carrental/internal/domain/vehicle"
	"carrental/internal/infra/storage/memory"
)

// paidBooking creates a private booking and settles its payment.
func (h *harness) paidBooking(t *testing.T) *dto.CreateBookingResult {
	t.Helper()
	handler, cmd := h.createPrivate("2025-03-01T10:00", "2025-03-01T13:00")
	res, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	settle := &SettlePaymentHandler{Deps: h.deps, Inbox: memory.NewInbox()}
	_, err = settle.Handle(context.Background(), SettlePaymentCommand{
		EventID:     "evt_paid_" + res.Booking.ID,
		BookingID:   res.Booking.ID,
		IntentID:    res.PaymentIntent.ID,
		Kind:        "succeeded",
		AmountCents: res.Booking.Price.Total.Amount,
		Currency:    "usd",
	})
	require.NoError(t, err)
	return res
}

func TestCancelPaidBookingRefundsAndReleasesVehicle(t *testing.T) {
	h := newHarness(t)
	created := h.paidBooking(t)
	require.NoError(t, h.vehicles.SetAvailability(context.Background(), domainvehicle.ID("car-1"), false))

	handler := &CancelBookingHandler{Deps: h.deps}
	out, err := handler.Handle(context.Background(), CancelBookingCommand{BookingID: created.Booking.ID, RenterID: "renter"})
	require.NoError(t, err)

	assert.True(t, out.Cancelled)
	assert.True(t, out.Refund.Attempted)
	assert.True(t, out.Refund.Processed)
	assert.Equal(t, int64(3000), out.Refund.Amount.Amount)
	assert.False(t, out.IntentCancelled)
	assert.Equal(t, 4, out.JobsCancelled)
	assert.True(t, out.VehicleReleased)
	assert.True(t, out.CalendarRemoved)

	assert.Equal(t, string(domainbooking.StatusCancelled), out.Booking.Status)
	assert.Equal(t, string(domainbooking.PaymentRefunded), out.Booking.PaymentStatus)
	require.NotNil(t, out.Booking.Refund)
	assert.Equal(t, "Booking cancelled before start time", out.Booking.Refund.Reason)
	assert.Equal(t, defaultCancelReason, out.Booking.CancelReason)

	stored, err := h.bookings.ByID(context.Background(), domainbooking.BookingID(created.Booking.ID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.PaymentRefunded, stored.PaymentStatus)
	assert.True(t, h.vehicle(t, "car-1").IsAvailable)
	assert.Empty(t, h.jobs.Jobs())
	assert.Len(t, h.gateway.Refunds(), 1)
}

func TestCancelProceedsWhenRefundFails(t *testing.T) {
	h := newHarness(t)
	created := h.paidBooking(t)
	h.gateway.FailRefund = errors.New("processor timeout")

	handler := &CancelBookingHandler{Deps: h.deps}
	out, err := handler.Handle(context.Background(), CancelBookingCommand{BookingID: created.Booking.ID, RenterID: "renter", Reason: "plans changed"})
	require.NoError(t, err)

	assert.True(t, out.Cancelled)
	assert.True(t, out.Refund.Attempted)
	assert.False(t, out.Refund.Processed)
	assert.Contains(t, out.Refund.Error, "processor timeout")
	assert.True(t, out.VehicleReleased)

	stored, err := h.bookings.ByID(context.Background(), domainbooking.BookingID(created.Booking.ID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusCancelled, stored.Status)
	assert.Equal(t, domainbooking.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, "plans changed", stored.CancelReason)
}

func TestCancelUnpaidBookingVoidsIntent(t *testing.T) {
	h := newHarness(t)
	handler, cmd := h.createPrivate("2025-03-01T10:00", "2025-03-01T13:00")
	created, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)

	cancel := &CancelBookingHandler{Deps: h.deps}
	out, err := cancel.Handle(context.Background(), CancelBookingCommand{BookingID: created.Booking.ID, RenterID: "renter"})
	require.NoError(t, err)
	assert.False(t, out.Refund.Attempted)
	assert.True(t, out.IntentCancelled)
	assert.Equal(t, []string{created.PaymentIntent.ID}, h.gateway.Cancelled())
}

func TestCancelLeavesVehicleWithOngoingBooking(t *testing.T) {
	h := newHarness(t)
	owner, ownerCmd := h.createPrivate("2025-03-01T08:30", "2025-03-01T09:30")
	ownerCmd.RenterID = "owner"
	ownerCmd.Kind = "business"
	ongoing, err := owner.Handle(context.Background(), ownerCmd)
	require.NoError(t, err)
	b, err := h.bookings.ByID(context.Background(), domainbooking.BookingID(ongoing.Booking.ID))
	require.NoError(t, err)
	require.NoError(t, b.Start(clock))
	require.NoError(t, h.bookings.Save(context.Background(), b))

	handler, cmd := h.createPrivate("2025-03-01T10:00", "2025-03-01T13:00")
	created, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	require.NoError(t, h.vehicles.SetAvailability(context.Background(), domainvehicle.ID("car-1"), false))

	cancel := &CancelBookingHandler{Deps: h.deps}
	out, err := cancel.Handle(context.Background(), CancelBookingCommand{BookingID: created.Booking.ID, RenterID: "renter"})
	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.False(t, out.VehicleReleased)
	assert.False(t, h.vehicle(t, "car-1").IsAvailable)
}

func TestCancelRejections(t *testing.T) {
	h := newHarness(t)
	handler, cmd := h.createPrivate("2025-03-01T10:00", "2025-03-01T13:00")
	created, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	cancel := &CancelBookingHandler{Deps: h.deps}

	_, err = cancel.Handle(context.Background(), CancelBookingCommand{BookingID: "missing", RenterID: "renter"})
	assert.ErrorIs(t, err, errkind.ErrNotFound)

	_, err = cancel.Handle(context.Background(), CancelBookingCommand{BookingID: created.Booking.ID, RenterID: "stranger"})
	assert.ErrorIs(t, err, errkind.ErrForbidden)

	h.deps.Clock = func() time.Time { return clock.Add(2 * time.Hour) }
	late := &CancelBookingHandler{Deps: h.deps}
	_, err = late.Handle(context.Background(), CancelBookingCommand{BookingID: created.Booking.ID, RenterID: "renter"})
	assert.ErrorIs(t, err, errkind.ErrInvalidState)

	_, err = cancel.Handle(context.Background(), CancelBookingCommand{BookingID: created.Booking.ID, RenterID: "renter"})
	require.NoError(t, err)
	_, err = cancel.Handle(context.Background(), CancelBookingCommand{BookingID: created.Booking.ID, RenterID: "renter"})
	assert.ErrorIs(t, err, errkind.ErrInvalidState)
}
