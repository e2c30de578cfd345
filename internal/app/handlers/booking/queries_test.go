package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/shared/errkind"
	domainvehicle "carrental/internal/domain/vehicle"
)

func TestBookingQueries(t *testing.T) {
	h := newHarness(t)
	h.addGroup(t, true, true)
	create, cmd := h.createPrivate("2025-03-01T10:00", "2025-03-01T13:00")
	private, err := create.Handle(context.Background(), cmd)
	require.NoError(t, err)
	group, groupCmd := h.createGroup("business", "2025-03-02T10:00", "2025-03-02T12:00")
	shared, err := group.Handle(context.Background(), groupCmd)
	require.NoError(t, err)

	qd := QueryDeps{UoWFactory: h.deps.UoWFactory, Timezones: h.deps.Timezones}

	t.Run("get", func(t *testing.T) {
		get := &GetBookingHandler{QueryDeps: qd}
		for _, viewer := range []string{"renter", "owner"} {
			view, err := get.Handle(context.Background(), GetBookingQuery{BookingID: private.Booking.ID, ViewerID: viewer})
			require.NoError(t, err, viewer)
			assert.Equal(t, private.Booking.ID, view.ID)
		}
		_, err := get.Handle(context.Background(), GetBookingQuery{BookingID: private.Booking.ID, ViewerID: "stranger"})
		assert.ErrorIs(t, err, errkind.ErrForbidden)

		_, err = get.Handle(context.Background(), GetBookingQuery{BookingID: private.Booking.ID, ViewerID: "stranger", IsAdmin: true})
		require.NoError(t, err)

		_, err = get.Handle(context.Background(), GetBookingQuery{BookingID: shared.Booking.ID, ViewerID: "admin"})
		require.NoError(t, err)
		_, err = get.Handle(context.Background(), GetBookingQuery{BookingID: private.Booking.ID, ViewerID: "admin"})
		assert.ErrorIs(t, err, ErrBookingHidden)
	})

	t.Run("list mine", func(t *testing.T) {
		list := &ListMyBookingsHandler{QueryDeps: qd}
		all, err := list.Handle(context.Background(), ListMyBookingsQuery{RenterID: "renter"})
		require.NoError(t, err)
		require.Len(t, all.Items, 2)

		confirmed, err := list.Handle(context.Background(), ListMyBookingsQuery{RenterID: "renter", Status: "confirmed"})
		require.NoError(t, err)
		require.Len(t, confirmed.Items, 1)
		assert.Equal(t, shared.Booking.ID, confirmed.Items[0].ID)
		assert.Equal(t, "2025-03-02 10:00:00", confirmed.Items[0].LocalStart)

		_, err = list.Handle(context.Background(), ListMyBookingsQuery{RenterID: "renter", Status: "parked"})
		assert.ErrorIs(t, err, errkind.ErrValidation)
	})

	t.Run("list vehicle", func(t *testing.T) {
		list := &ListVehicleBookingsHandler{QueryDeps: qd}
		res, err := list.Handle(context.Background(), ListVehicleBookingsQuery{VehicleID: "car-1", OwnerID: "owner"})
		require.NoError(t, err)
		require.Len(t, res.Items, 2)
		assert.True(t, res.Items[0].StartTime.Before(res.Items[1].StartTime))

		_, err = list.Handle(context.Background(), ListVehicleBookingsQuery{VehicleID: "car-1", OwnerID: "renter"})
		assert.ErrorIs(t, err, domainvehicle.ErrNotOwner)
	})

	t.Run("availability", func(t *testing.T) {
		check := &CheckAvailabilityHandler{QueryDeps: qd}
		busy, err := check.Handle(context.Background(), CheckAvailabilityQuery{VehicleID: "car-1", Start: "2025-03-02T11:00", End: "2025-03-02T13:00", Timezone: "UTC"})
		require.NoError(t, err)
		assert.False(t, busy.Available)
		assert.Equal(t, 1, busy.Conflicts)

		free, err := check.Handle(context.Background(), CheckAvailabilityQuery{VehicleID: "car-1", Start: "2025-03-02T12:00", End: "2025-03-02T13:00", Timezone: "UTC"})
		require.NoError(t, err)
		assert.True(t, free.Available)
	})
}

func TestExpireUnpaid(t *testing.T) {
	h := newHarness(t)
	create, cmd := h.createPrivate("2025-03-03T10:00", "2025-03-03T12:00")
	stale, err := create.Handle(context.Background(), cmd)
	require.NoError(t, err)
	paid := h.paidBooking(t)

	handler := &ExpireUnpaidHandler{Deps: h.deps}
	h.now = clock.Add(23 * time.Hour)
	res, err := handler.Handle(context.Background(), ExpireUnpaidCommand{Grace: 24 * time.Hour})
	require.NoError(t, err)
	assert.Empty(t, res.Expired)

	h.now = clock.Add(25 * time.Hour)
	res, err = handler.Handle(context.Background(), ExpireUnpaidCommand{Grace: 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, []string{stale.Booking.ID}, res.Expired)

	b, err := h.bookings.ByID(context.Background(), domainbooking.BookingID(stale.Booking.ID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusCancelled, b.Status)
	assert.Equal(t, expiredUnpaidReason, b.CancelReason)
	assert.Contains(t, h.gateway.Cancelled(), stale.PaymentIntent.ID)

	kept, err := h.bookings.ByID(context.Background(), domainbooking.BookingID(paid.Booking.ID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusUpcoming, kept.Status)
	for _, j := range h.jobs.Jobs() {
		assert.NotEqual(t, stale.Booking.ID, j.Payload.BookingID)
	}
}

func TestExpireUnpaidAtStartTime(t *testing.T) {
	h := newHarness(t)
	create, cmd := h.createPrivate("2025-03-01T10:00", "2025-03-01T12:00")
	created, err := create.Handle(context.Background(), cmd)
	require.NoError(t, err)

	h.now = clock.Add(2 * time.Hour)
	handler := &ExpireUnpaidHandler{Deps: h.deps}
	res, err := handler.Handle(context.Background(), ExpireUnpaidCommand{})
	require.NoError(t, err)
	assert.Equal(t, []string{created.Booking.ID}, res.Expired)
}
