package policies

import (
	"context"
	"time"
)

// Calendar mirrors a booking into an external calendar, one event per booking.
type Calendar interface {
	CreateEvent(ctx context.Context, ev CalendarEvent) (string, error)
	UpdateEvent(ctx context.Context, eventID string, ev CalendarEvent) error
	DeleteEvent(ctx context.Context, eventID string) error
}

type CalendarEvent struct {
	BookingID   string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Timezone    string
}
