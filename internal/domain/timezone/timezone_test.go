package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrental/internal/domain/shared/errkind"
)

func TestToUTC(t *testing.T) {
	n := NewNormalizer("")

	cases := []struct {
		name  string
		local string
		zone  string
		want  time.Time
	}{
		{"karachi minutes", "2025-03-01T15:00", "Asia/Karachi", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"karachi seconds", "2025-03-01 15:00:30", "Asia/Karachi", time.Date(2025, 3, 1, 10, 0, 30, 0, time.UTC)},
		{"new york dst", "2025-07-04T12:00:00", "America/New_York", time.Date(2025, 7, 4, 16, 0, 0, 0, time.UTC)},
		{"explicit offset wins", "2025-03-01T15:00:00+01:00", "Asia/Karachi", time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)},
		{"default zone", "2025-03-01T05:00", "", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.ToUTC(tc.local, tc.zone)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s got %s", tc.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestToUTCErrors(t *testing.T) {
	n := NewNormalizer("")

	_, err := n.ToUTC("2025-03-01T15:00", "Mars/Olympus")
	assert.ErrorIs(t, err, ErrInvalidTimezone)
	assert.ErrorIs(t, err, errkind.ErrValidation)

	_, err = n.ToUTC("yesterday", "UTC")
	assert.ErrorIs(t, err, ErrInvalidTimeFormat)

	_, err = n.ToUTC("  ", "UTC")
	assert.ErrorIs(t, err, ErrInvalidTimeFormat)
}

func TestRoundTripAndDisplay(t *testing.T) {
	n := NewNormalizer("")
	instant := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	local, err := n.FromUTC(instant, "Asia/Karachi")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T15:00:00+05:00", local)

	back, err := n.ToUTC(local, "Asia/Karachi")
	require.NoError(t, err)
	assert.True(t, instant.Equal(back))

	display, err := n.Display(instant, "Europe/London")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01 10:00:00", display)

	assert.Equal(t, "2025-03-01 10:00:00", n.MustDisplay(instant, "Nowhere/Zone"))
}

func TestIsValidZone(t *testing.T) {
	n := NewNormalizer("")
	for _, z := range CommonZones() {
		assert.True(t, n.IsValidZone(z), z)
	}
	assert.False(t, n.IsValidZone("UTC+5"))
	assert.False(t, n.IsValidZone(""))
	assert.False(t, n.IsValidZone("Local"))
}
