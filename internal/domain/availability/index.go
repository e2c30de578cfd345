// Package availability answers whether a vehicle is free for an interval and
// serialises the check-then-write window per vehicle.
package availability

import (
	"context"
	"fmt"

	"carrental/internal/domain/booking"
	"carrental/internal/domain/shared/daterange"
	"carrental/internal/domain/shared/errkind"
)

var ErrOverlap = fmt.Errorf("%w: car already booked for this time slot", errkind.ErrConflict)

// Finder is the read side of the booking store used for conflict checks.
type Finder interface {
	List(ctx context.Context, filter booking.Filter) ([]*booking.Booking, error)
}

type Index struct {
	Bookings Finder
}

func NewIndex(bookings Finder) *Index {
	return &Index{Bookings: bookings}
}

// Conflicts returns the active bookings on vehicleID overlapping r, ignoring excludeID.
func (i *Index) Conflicts(ctx context.Context, vehicleID string, r daterange.Range, excludeID booking.BookingID) ([]*booking.Booking, error) {
	candidates, err := i.Bookings.List(ctx, booking.Filter{
		VehicleID: vehicleID,
		Statuses:  booking.ActiveStatuses,
		Window:    &r,
	})
	if err != nil {
		return nil, err
	}
	var out []*booking.Booking
	for _, b := range candidates {
		if excludeID != "" && b.ID == excludeID {
			continue
		}
		if !b.Status.BlocksAvailability() {
			continue
		}
		if b.Period.Overlaps(r) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (i *Index) HasOverlap(ctx context.Context, vehicleID string, r daterange.Range, excludeID booking.BookingID) (bool, error) {
	conflicts, err := i.Conflicts(ctx, vehicleID, r, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

// EnsureFree returns ErrOverlap when the slot is taken.
func (i *Index) EnsureFree(ctx context.Context, vehicleID string, r daterange.Range, excludeID booking.BookingID) error {
	overlap, err := i.HasOverlap(ctx, vehicleID, r, excludeID)
	if err != nil {
		return err
	}
	if overlap {
		return ErrOverlap
	}
	return nil
}

// OngoingElsewhere reports whether a booking other than excludeID is ongoing on the vehicle.
func (i *Index) OngoingElsewhere(ctx context.Context, vehicleID string, excludeID booking.BookingID) (bool, error) {
	ongoing, err := i.Bookings.List(ctx, booking.Filter{
		VehicleID: vehicleID,
		Statuses:  []booking.Status{booking.StatusOngoing},
	})
	if err != nil {
		return false, err
	}
	for _, b := range ongoing {
		if b.ID != excludeID && b.Status == booking.StatusOngoing {
			return true, nil
		}
	}
	return false, nil
}
