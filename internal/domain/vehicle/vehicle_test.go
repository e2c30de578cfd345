package vehicle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrental/internal/domain/shared/daterange"
	"carrental/internal/domain/shared/errkind"
	"carrental/internal/domain/shared/money"
)

var now = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newVehicle(t *testing.T) *Vehicle {
	t.Helper()
	v, err := New(CreateParams{ID: "car-1", OwnerID: "owner-1", Make: "Toyota", Model: "Corolla", Year: 2021, LicenseNumber: "LEA-123", Now: now})
	require.NoError(t, err)
	return v
}

func TestNewAppliesDefaults(t *testing.T) {
	v := newVehicle(t)
	assert.Equal(t, money.Must(1000, "USD"), v.HourlyRate)
	assert.Equal(t, 10.0, v.PlatformPct)
	assert.Equal(t, DefaultPolicy(), v.Policy)
	assert.True(t, v.IsAvailable)
	assert.True(t, v.IsBookable)
	assert.Equal(t, "2021 Toyota Corolla", v.Title())
}

func TestCheckBookable(t *testing.T) {
	v := newVehicle(t)
	require.NoError(t, v.CheckBookable())

	v.IsAvailable = false
	assert.ErrorIs(t, v.CheckBookable(), ErrNotAvailable)

	v.IsAvailable = true
	v.IsBookable = false
	assert.ErrorIs(t, v.CheckBookable(), errkind.ErrUnavailable)

	v.IsDeleted = true
	assert.ErrorIs(t, v.CheckBookable(), errkind.ErrNotFound)
}

func TestPolicyCheckWindow(t *testing.T) {
	blackout := daterange.Range{Start: now.Add(48 * time.Hour), End: now.Add(72 * time.Hour)}
	p := Policy{MinBookingHours: 2, MaxBookingDays: 1, AdvanceBookingDays: 3, Blackouts: []daterange.Range{blackout}}
	mk := func(startH, endH int) daterange.Range {
		return daterange.Range{Start: now.Add(time.Duration(startH) * time.Hour), End: now.Add(time.Duration(endH) * time.Hour)}
	}

	cases := []struct {
		name string
		r    daterange.Range
		want error
	}{
		{"ok", mk(1, 4), nil},
		{"past", mk(-1, 4), ErrStartInPast},
		{"too short", mk(1, 2), ErrBelowMinimum},
		{"too long", mk(1, 26), ErrAboveMaximum},
		{"too far ahead", mk(80, 84), ErrOutsideAdvance},
		{"blackout", mk(47, 49), ErrBlackout},
		{"touching blackout", mk(45, 48), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.CheckWindow(tc.r, now)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, errkind.ErrPolicyViolation)
		})
	}
}

func TestOwnerOperations(t *testing.T) {
	v := newVehicle(t)

	assert.ErrorIs(t, v.SetBookable("intruder", false, now), ErrNotOwner)
	require.NoError(t, v.SetBookable("owner-1", false, now))
	assert.False(t, v.IsBookable)

	rate := money.Must(2500, "USD")
	require.NoError(t, v.Apply("owner-1", Update{HourlyRate: &rate, Policy: &Policy{MinBookingHours: 3}}, now))
	assert.Equal(t, int64(2500), v.HourlyRate.Amount)
	assert.Equal(t, 3, v.Policy.MinBookingHours)
	assert.Equal(t, DefaultMaxBookingDays, v.Policy.MaxBookingDays)

	bad := money.Must(0, "USD")
	assert.ErrorIs(t, v.Apply("owner-1", Update{HourlyRate: &bad}, now), errkind.ErrValidation)

	assert.ErrorIs(t, v.SoftDelete("owner-1", true, now), ErrActiveBooking)
	require.NoError(t, v.SoftDelete("owner-1", false, now))
	assert.True(t, v.IsDeleted)
	assert.ErrorIs(t, v.CheckBookable(), ErrNotFound)
}

func TestGroupSettings(t *testing.T) {
	v := newVehicle(t)
	v.SetGroupSetting("g1", false, now)
	v.SetGroupSetting("g1", true, now.Add(time.Hour))
	require.Contains(t, v.GroupSettings, "g1")
	assert.True(t, v.GroupSettings["g1"].AllowPrivateBooking)
	assert.Equal(t, now, v.GroupSettings["g1"].AddedAt)

	v.RemoveGroupSetting("g1", now)
	assert.NotContains(t, v.GroupSettings, "g1")
}
