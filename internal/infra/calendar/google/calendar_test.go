package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"carrental/internal/app/policies"
)

func newTestCalendar(t *testing.T, handler http.HandlerFunc) *Calendar {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), "fleet@example.com", "",
		option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return c
}

func TestCreateEvent(t *testing.T) {
	var got map[string]any
	c := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendars/fleet@example.com/events", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"evt-42"}`))
	})
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := c.CreateEvent(context.Background(), policies.CalendarEvent{
		BookingID: "b-1",
		Summary:   "Toyota Corolla rental",
		Start:     start,
		End:       start.Add(3 * time.Hour),
		Timezone:  "Asia/Karachi",
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-42", id)
	assert.Equal(t, "Toyota Corolla rental", got["summary"])
	startField, ok := got["start"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2025-03-01T10:00:00Z", startField["dateTime"])
	assert.Equal(t, "Asia/Karachi", startField["timeZone"])
}

func TestDeleteEventIgnoresGone(t *testing.T) {
	status := http.StatusGone
	c := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"code":410,"message":"Resource has been deleted"}}`))
	})

	assert.NoError(t, c.DeleteEvent(context.Background(), "evt-42"))

	status = http.StatusForbidden
	assert.Error(t, c.DeleteEvent(context.Background(), "evt-42"))
}

func TestNewRequiresCalendarID(t *testing.T) {
	_, err := New(context.Background(), "", "")
	assert.Error(t, err)
}
