package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"carrental/internal/app/schedule"
	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/pricing"
	"carrental/internal/domain/shared/daterange"
	"carrental/internal/domain/shared/money"
)

func TestBookingFilter(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	window := daterange.Range{Start: start, End: start.Add(4 * time.Hour)}

	q := bookingFilter(domainbooking.Filter{
		VehicleID:     "car-1",
		Statuses:      []domainbooking.Status{domainbooking.StatusPendingPayment, domainbooking.StatusOngoing},
		Window:        &window,
		CreatedBefore: start,
	})

	assert.Equal(t, "car-1", q["vehicle_id"])
	assert.NotContains(t, q, "renter_id")
	assert.Equal(t, bson.M{"$in": []string{"pending_payment", "ongoing"}}, q["status"])
	assert.Equal(t, bson.M{"$lt": window.End}, q["period.start"])
	assert.Equal(t, bson.M{"$gt": window.Start}, q["period.end"])
	assert.Equal(t, bson.M{"$lt": start}, q["created_at"])

	assert.Empty(t, bookingFilter(domainbooking.Filter{}))
}

func TestBookingDocumentRoundTrip(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	extended := start.Add(6 * time.Hour)
	b := &domainbooking.Booking{
		ID:            "b-1",
		RenterID:      "renter",
		VehicleID:     "car-1",
		GroupID:       "g-1",
		Period:        daterange.Range{Start: start, End: start.Add(3 * time.Hour)},
		Timezone:      "Asia/Karachi",
		Kind:          domainbooking.KindPrivate,
		Status:        domainbooking.StatusOngoing,
		PaymentStatus: domainbooking.PaymentPaid,
		Price: pricing.Split{
			Total:         money.Must(3000, "USD"),
			PlatformCut:   money.Must(300, "USD"),
			GroupOwnerCut: money.Must(150, "USD"),
			OwnerAmount:   money.Must(2550, "USD"),
			PaymentStatus: pricing.PaymentPaid,
		},
		Payment:         domainbooking.PaymentRefs{IntentID: "pi_1"},
		IsStarted:       true,
		IsExtended:      true,
		ExtendedEnd:     &extended,
		ExtensionCharge: money.Must(3000, "USD"),
		CreatedAt:       start.Add(-time.Hour),
		UpdatedAt:       start,
		Version:         4,
	}

	doc := newBookingDocument(b)
	assert.Equal(t, "ongoing", doc.Status)
	assert.Equal(t, int64(2550), doc.Price.OwnerAmount.Amount)

	got := doc.toAggregate()
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, b.Period, got.Period)
	assert.Equal(t, b.Price, got.Price)
	assert.Equal(t, b.Payment, got.Payment)
	require.NotNil(t, got.ExtendedEnd)
	assert.True(t, extended.Equal(*got.ExtendedEnd))
	assert.Nil(t, got.CancelledAt)
	assert.Equal(t, int64(4), got.Version)
}

func TestJobFilters(t *testing.T) {
	assert.Equal(t, bson.M{
		"booking_id": "b-1",
		"name":       bson.M{"$in": []string{schedule.JobEndBooking}},
	}, jobMatcherFilter(schedule.Matcher{BookingID: "b-1", Names: []string{schedule.JobEndBooking}}))
	assert.Equal(t, bson.M{"booking_id": "b-1"}, jobMatcherFilter(schedule.Matcher{BookingID: "b-1"}))

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	q := claimFilter(now)
	assert.Equal(t, bson.M{"$lte": now}, q["run_at"])
	assert.Len(t, q["$or"], 2)
}

func TestJobBackoff(t *testing.T) {
	s := &JobStore{Backoff: []time.Duration{time.Second, time.Minute}}
	assert.Equal(t, time.Second, s.backoff(0))
	assert.Equal(t, time.Second, s.backoff(1))
	assert.Equal(t, time.Minute, s.backoff(2))
	assert.Equal(t, time.Minute, s.backoff(9))
	assert.Equal(t, 30*time.Second, (&JobStore{}).backoff(1))
	assert.Equal(t, time.Minute, (&JobStore{}).lockTTL())
}
