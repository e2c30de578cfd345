// Package google mirrors bookings into a Google Calendar.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"carrental/internal/app/policies"
)

type Calendar struct {
	svc        *calendar.Service
	calendarID string
}

// New authenticates with a service account credentials file.
func New(ctx context.Context, calendarID, credentialsFile string, opts ...option.ClientOption) (*Calendar, error) {
	if calendarID == "" {
		return nil, errors.New("google: calendar id is required")
	}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile), option.WithScopes(calendar.CalendarEventsScope))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: calendar service: %w", err)
	}
	return &Calendar{svc: svc, calendarID: calendarID}, nil
}

func (c *Calendar) CreateEvent(ctx context.Context, ev policies.CalendarEvent) (string, error) {
	created, err := c.svc.Events.Insert(c.calendarID, toEvent(ev)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google: insert event for booking %s: %w", ev.BookingID, err)
	}
	return created.Id, nil
}

func (c *Calendar) UpdateEvent(ctx context.Context, eventID string, ev policies.CalendarEvent) error {
	if _, err := c.svc.Events.Patch(c.calendarID, eventID, toEvent(ev)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("google: patch event %s: %w", eventID, err)
	}
	return nil
}

// DeleteEvent treats an already removed event as deleted.
func (c *Calendar) DeleteEvent(ctx context.Context, eventID string) error {
	err := c.svc.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	if err == nil || isGone(err) {
		return nil
	}
	return fmt.Errorf("google: delete event %s: %w", eventID, err)
}

func isGone(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
}

func toEvent(ev policies.CalendarEvent) *calendar.Event {
	return &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &calendar.EventDateTime{DateTime: ev.Start.UTC().Format(time.RFC3339), TimeZone: ev.Timezone},
		End:         &calendar.EventDateTime{DateTime: ev.End.UTC().Format(time.RFC3339), TimeZone: ev.Timezone},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{"bookingId": ev.BookingID},
		},
	}
}

var _ policies.Calendar = (*Calendar)(nil)
