package booking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrental/internal/app/dto"
	"carrental/internal/app/policies"
	"carrental/internal/app/schedule"
	"carrental/internal/domain/availability"
	domainbooking "carrental/internal/domain/booking"
	domaingroup "carrental/internal/domain/group"
	"carrental/internal/domain/shared/errkind"
	domainvehicle "carrental/internal/domain/vehicle"
)

func jobNames(jobs []dto.JobView) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Name)
	}
	return out
}

func TestCreatePrivateBookingRequiresPayment(t *testing.T) {
	h := newHarness(t)
	handler, cmd := h.createPrivate("2025-03-01T10:00", "2025-03-01T13:00")

	res, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, string(domainbooking.StatusPendingPayment), res.Booking.Status)
	assert.Equal(t, string(domainbooking.PaymentPending), res.Booking.PaymentStatus)
	assert.Equal(t, int64(3000), res.Booking.Price.Total.Amount)
	assert.Equal(t, int64(300), res.Booking.Price.PlatformCut.Amount)
	assert.Equal(t, int64(0), res.Booking.Price.GroupOwnerCut.Amount)
	assert.Equal(t, int64(2700), res.Booking.Price.OwnerAmount.Amount)
	assert.Equal(t, "2025-03-01 10:00:00", res.Booking.LocalStart)

	assert.True(t, res.RequiresPayment)
	assert.Equal(t, dto.NextStepCompletePayment, res.NextStep)
	require.NotNil(t, res.PaymentIntent)
	assert.Equal(t, "pi_1", res.PaymentIntent.ID)
	assert.Equal(t, int64(3000), res.PaymentIntent.Amount.Amount)

	assert.ElementsMatch(t, []string{
		schedule.JobStartBooking, schedule.JobEndBooking, schedule.JobReminderStart, schedule.JobReminderEnd,
	}, jobNames(res.ScheduledJobs))
	assert.Len(t, h.jobs.Jobs(), 4)

	stored, err := h.bookings.ByID(context.Background(), domainbooking.BookingID(res.Booking.ID))
	require.NoError(t, err)
	assert.Equal(t, "pi_1", stored.Payment.IntentID)
	assert.NotEmpty(t, stored.CalendarEventID)

	entries, err := h.ledger.ListByBooking(context.Background(), res.Booking.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, policies.LedgerIntentCreated, entries[0].Kind)
	assert.Contains(t, h.outbox.Names(), "booking.created")
}

func TestCreatePrivateBookingSkipsElapsedReminder(t *testing.T) {
	h := newHarness(t)
	handler, cmd := h.createPrivate("2025-03-01T08:05", "2025-03-01T09:05")

	res, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{schedule.JobStartBooking, schedule.JobEndBooking, schedule.JobReminderEnd}, jobNames(res.ScheduledJobs))
}

func TestCreatePrivateBookingCompensatesFailedIntent(t *testing.T) {
	h := newHarness(t)
	h.gateway.FailCreate = errors.New("card processor down")
	handler, cmd := h.createPrivate("2025-03-01T10:00", "2025-03-01T13:00")

	_, err := handler.Handle(context.Background(), cmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrPayment)

	all, err := h.bookings.List(context.Background(), domainbooking.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domainbooking.StatusCancelled, all[0].Status)
	assert.Equal(t, domainbooking.PaymentFailed, all[0].PaymentStatus)
	assert.Equal(t, paymentSetupFailedReason, all[0].CancelReason)
	assert.Empty(t, h.jobs.Jobs())
}

func TestCreatePrivateBookingRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(h *harness, cmd *CreatePrivateBookingCommand)
		wantErr error
	}{
		{
			name:    "unknown vehicle",
			mutate:  func(h *harness, cmd *CreatePrivateBookingCommand) { cmd.VehicleID = "car-404" },
			wantErr: errkind.ErrNotFound,
		},
		{
			name: "vehicle unavailable",
			mutate: func(h *harness, cmd *CreatePrivateBookingCommand) {
				_ = h.vehicles.SetAvailability(context.Background(), domainvehicle.ID("car-1"), false)
			},
			wantErr: errkind.ErrUnavailable,
		},
		{
			name:    "shorter than the minimum",
			mutate:  func(h *harness, cmd *CreatePrivateBookingCommand) { cmd.End = "2025-03-01T10:30" },
			wantErr: errkind.ErrPolicyViolation,
		},
		{
			name:    "start in the past",
			mutate:  func(h *harness, cmd *CreatePrivateBookingCommand) { cmd.Start = "2025-03-01T07:00" },
			wantErr: errkind.ErrPolicyViolation,
		},
		{
			name:    "end before start",
			mutate:  func(h *harness, cmd *CreatePrivateBookingCommand) { cmd.End = "2025-03-01T09:00" },
			wantErr: errkind.ErrValidation,
		},
		{
			name:    "unknown timezone",
			mutate:  func(h *harness, cmd *CreatePrivateBookingCommand) { cmd.Timezone = "Mars/Olympus" },
			wantErr: errkind.ErrValidation,
		},
		{
			name:    "business on someone else's vehicle",
			mutate:  func(h *harness, cmd *CreatePrivateBookingCommand) { cmd.Kind = "business" },
			wantErr: ErrBusinessNotOwner,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			handler, cmd := h.createPrivate("2025-03-01T10:00", "2025-03-01T13:00")
			tc.mutate(h, &cmd)

			_, err := handler.Handle(context.Background(), cmd)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)

			all, err := h.bookings.List(context.Background(), domainbooking.Filter{})
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestOwnerBusinessBookingIsFree(t *testing.T) {
	h := newHarness(t)
	handler, cmd := h.createPrivate("2025-03-01T10:00", "2025-03-01T13:00")
	cmd.RenterID = "owner"
	cmd.Kind = "business"

	res, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusConfirmed), res.Booking.Status)
	assert.Equal(t, string(domainbooking.PaymentFree), res.Booking.PaymentStatus)
	assert.Zero(t, res.Booking.Price.Total.Amount)
	assert.False(t, res.RequiresPayment)
	assert.Nil(t, res.PaymentIntent)
}

func TestGroupBusinessBookingIsConfirmedAndFree(t *testing.T) {
	h := newHarness(t)
	h.addGroup(t, false, true)
	handler, cmd := h.createGroup("business", "2025-03-01T10:00", "2025-03-01T20:00")

	res, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusConfirmed), res.Booking.Status)
	assert.Equal(t, string(domainbooking.PaymentFree), res.Booking.PaymentStatus)
	assert.Zero(t, res.Booking.Price.Total.Amount)
	assert.Equal(t, "g1", res.Booking.GroupID)
	assert.False(t, res.RequiresPayment)
	assert.Len(t, res.ScheduledJobs, 4)
}

func TestGroupBusinessBookingAwaitsApproval(t *testing.T) {
	h := newHarness(t)
	h.addGroup(t, false, false)
	handler, cmd := h.createGroup("business", "2025-03-01T10:00", "2025-03-01T12:00")

	res, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusPending), res.Booking.Status)

	approve := &ApproveBookingHandler{Deps: h.deps}
	_, err = approve.Handle(context.Background(), ApproveBookingCommand{BookingID: res.Booking.ID, AdminID: "renter"})
	assert.ErrorIs(t, err, domaingroup.ErrNotAdmin)

	view, err := approve.Handle(context.Background(), ApproveBookingCommand{BookingID: res.Booking.ID, AdminID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusConfirmed), view.Status)
}

func TestApproveRejectsTakenSlot(t *testing.T) {
	h := newHarness(t)
	h.addGroup(t, false, false)
	handler, cmd := h.createGroup("business", "2025-03-01T10:00", "2025-03-01T12:00")
	pending, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)

	owner, ownerCmd := h.createPrivate("2025-03-01T11:00", "2025-03-01T13:00")
	ownerCmd.RenterID = "owner"
	ownerCmd.Kind = "business"
	_, err = owner.Handle(context.Background(), ownerCmd)
	require.NoError(t, err)

	approve := &ApproveBookingHandler{Deps: h.deps}
	_, err = approve.Handle(context.Background(), ApproveBookingCommand{BookingID: pending.Booking.ID, AdminID: "admin"})
	assert.ErrorIs(t, err, errkind.ErrConflict)
}

func TestGroupPrivateBookingUsesGroupCommission(t *testing.T) {
	h := newHarness(t)
	h.addGroup(t, true, true)
	handler, cmd := h.createGroup("private", "2025-03-01T10:00", "2025-03-01T12:00")

	res, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), res.Booking.Price.Total.Amount)
	assert.Equal(t, int64(400), res.Booking.Price.PlatformCut.Amount)
	assert.Equal(t, int64(600), res.Booking.Price.GroupOwnerCut.Amount)
	assert.Equal(t, int64(3000), res.Booking.Price.OwnerAmount.Amount)
	assert.True(t, res.RequiresPayment)
}

func TestGroupBookingOverlapAndTouchingBoundary(t *testing.T) {
	h := newHarness(t)
	h.addGroup(t, false, true)
	handler, first := h.createGroup("business", "2025-03-01T10:00", "2025-03-01T12:00")
	_, err := handler.Handle(context.Background(), first)
	require.NoError(t, err)

	_, second := h.createGroup("business", "2025-03-01T11:00", "2025-03-01T13:00")
	_, err = handler.Handle(context.Background(), second)
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrConflict)
	assert.ErrorIs(t, err, availability.ErrOverlap)

	_, third := h.createGroup("business", "2025-03-01T12:00", "2025-03-01T13:00")
	_, err = handler.Handle(context.Background(), third)
	require.NoError(t, err)
}

func TestUnpaidBookingDoesNotBlockSlot(t *testing.T) {
	h := newHarness(t)
	handler, cmd := h.createPrivate("2025-03-01T10:00", "2025-03-01T13:00")
	_, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	_, err = handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
}

func TestGroupPrivateNotAllowedCreatesNothing(t *testing.T) {
	h := newHarness(t)
	h.addGroup(t, false, true)
	handler, cmd := h.createGroup("private", "2025-03-01T10:00", "2025-03-01T12:00")

	_, err := handler.Handle(context.Background(), cmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrPolicyViolation)
	assert.ErrorIs(t, err, domaingroup.ErrPrivateNotAllowed)

	all, err := h.bookings.List(context.Background(), domainbooking.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, h.jobs.Jobs())
}

func TestGroupBookingMembershipAndEligibility(t *testing.T) {
	t.Run("not a member", func(t *testing.T) {
		h := newHarness(t)
		h.addGroup(t, true, true)
		handler, cmd := h.createGroup("business", "2025-03-01T10:00", "2025-03-01T12:00")
		cmd.RenterID = "stranger"
		_, err := handler.Handle(context.Background(), cmd)
		assert.ErrorIs(t, err, domaingroup.ErrNotMember)
	})
	t.Run("vehicle outside group", func(t *testing.T) {
		h := newHarness(t)
		h.addGroup(t, true, true)
		h.addVehicle(t, "car-2", "owner")
		handler, cmd := h.createGroup("business", "2025-03-01T10:00", "2025-03-01T12:00")
		cmd.VehicleID = "car-2"
		_, err := handler.Handle(context.Background(), cmd)
		assert.ErrorIs(t, err, domaingroup.ErrVehicleNotInGroup)
	})
	t.Run("license required", func(t *testing.T) {
		h := newHarness(t)
		g := h.addGroup(t, true, true)
		require.NoError(t, g.UpdateRules("admin", domaingroup.Rules{LicenseRequired: true}, clock))
		require.NoError(t, h.groups.Save(context.Background(), g))
		handler, cmd := h.createGroup("business", "2025-03-01T10:00", "2025-03-01T12:00")
		_, err := handler.Handle(context.Background(), cmd)
		assert.ErrorIs(t, err, errkind.ErrPolicyViolation)
		assert.ErrorContains(t, err, "Valid license required")
	})
	t.Run("beyond group duration", func(t *testing.T) {
		h := newHarness(t)
		h.addGroup(t, true, true)
		handler, cmd := h.createGroup("business", "2025-03-01T10:00", "2025-03-09T10:00")
		_, err := handler.Handle(context.Background(), cmd)
		assert.ErrorIs(t, err, domaingroup.ErrDurationLimit)
	})
}

func TestConcurrentCreatesKeepSlotExclusive(t *testing.T) {
	h := newHarness(t)
	h.addGroup(t, false, true)
	handler, cmd := h.createGroup("business", "2025-03-01T10:00", "2025-03-01T12:00")

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := handler.Handle(context.Background(), cmd)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, errkind.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)
}
