package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/pricing"
)

const bookingsCollection = "bookings"

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection(bookingsCollection)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

// Save writes b when the stored version still matches b.Version. A stale
// writer either misses the filter or collides on _id during the upsert.
func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	filter := bson.M{"_id": doc.ID, "version": b.Version}
	doc.Version = b.Version + 1
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainbooking.ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return domainbooking.ErrConcurrentUpdate
	}
	b.Version = doc.Version
	return nil
}

func (r *BookingRepository) List(ctx context.Context, filter domainbooking.Filter) ([]*domainbooking.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "period.start", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, bookingFilter(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*domainbooking.Booking, 0)
	for cur.Next(ctx) {
		var doc bookingDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cur.Err()
}

// bookingFilter mirrors the in-memory matcher: half-open overlap on the window,
// strict creation cut-off.
func bookingFilter(f domainbooking.Filter) bson.M {
	q := bson.M{}
	if f.RenterID != "" {
		q["renter_id"] = f.RenterID
	}
	if f.VehicleID != "" {
		q["vehicle_id"] = f.VehicleID
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		q["status"] = bson.M{"$in": statuses}
	}
	if f.Window != nil {
		q["period.start"] = bson.M{"$lt": f.Window.End.UTC()}
		q["period.end"] = bson.M{"$gt": f.Window.Start.UTC()}
	}
	if !f.CreatedBefore.IsZero() {
		q["created_at"] = bson.M{"$lt": f.CreatedBefore.UTC()}
	}
	return q
}

func bookingIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "vehicle_id", Value: 1}, {Key: "status", Value: 1}, {Key: "period.start", Value: 1}, {Key: "period.end", Value: 1}}},
		{Keys: bson.D{{Key: "renter_id", Value: 1}, {Key: "period.start", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	}
}

type bookingDocument struct {
	ID              string        `bson:"_id"`
	RenterID        string        `bson:"renter_id"`
	VehicleID       string        `bson:"vehicle_id"`
	GroupID         string        `bson:"group_id,omitempty"`
	Period          rangeDocument `bson:"period"`
	Timezone        string        `bson:"timezone"`
	Kind            string        `bson:"kind"`
	Status          string        `bson:"status"`
	PaymentStatus   string        `bson:"payment_status"`
	Price           splitDocument `bson:"price"`
	IntentID        string        `bson:"payment_intent_id,omitempty"`
	SessionID       string        `bson:"payment_session_id,omitempty"`
	SubscriptionID  string        `bson:"subscription_id,omitempty"`
	Refund          refundDoc     `bson:"refund"`
	StartReminder   bool          `bson:"start_reminder_sent"`
	EndReminder     bool          `bson:"end_reminder_sent"`
	IsStarted       bool          `bson:"is_started"`
	IsExtended      bool          `bson:"is_extended"`
	ExtendedEnd     *time.Time    `bson:"extended_end_time,omitempty"`
	ExtensionCharge moneyDocument `bson:"extension_charge"`
	CalendarEventID string        `bson:"calendar_event_id,omitempty"`
	CancelReason    string        `bson:"cancel_reason,omitempty"`
	CancelledAt     *time.Time    `bson:"cancelled_at,omitempty"`
	CreatedAt       time.Time     `bson:"created_at"`
	UpdatedAt       time.Time     `bson:"updated_at"`
	Version         int64         `bson:"version"`
}

type splitDocument struct {
	Total         moneyDocument `bson:"total"`
	PlatformCut   moneyDocument `bson:"platform_cut"`
	GroupOwnerCut moneyDocument `bson:"group_owner_cut"`
	OwnerAmount   moneyDocument `bson:"owner_amount"`
	PaymentStatus string        `bson:"payment_status"`
}

type refundDoc struct {
	ID     string        `bson:"id,omitempty"`
	Amount moneyDocument `bson:"amount"`
	At     time.Time     `bson:"at,omitempty"`
	Reason string        `bson:"reason,omitempty"`
	Status string        `bson:"status,omitempty"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:            string(b.ID),
		RenterID:      b.RenterID,
		VehicleID:     b.VehicleID,
		GroupID:       b.GroupID,
		Period:        newRange(b.Period),
		Timezone:      b.Timezone,
		Kind:          string(b.Kind),
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		Price: splitDocument{
			Total:         newMoney(b.Price.Total),
			PlatformCut:   newMoney(b.Price.PlatformCut),
			GroupOwnerCut: newMoney(b.Price.GroupOwnerCut),
			OwnerAmount:   newMoney(b.Price.OwnerAmount),
			PaymentStatus: string(b.Price.PaymentStatus),
		},
		IntentID:       b.Payment.IntentID,
		SessionID:      b.Payment.SessionID,
		SubscriptionID: b.Payment.SubscriptionID,
		Refund: refundDoc{
			ID:     b.Refund.ID,
			Amount: newMoney(b.Refund.Amount),
			At:     b.Refund.At.UTC(),
			Reason: b.Refund.Reason,
			Status: b.Refund.Status,
		},
		StartReminder:   b.Reminders.Start,
		EndReminder:     b.Reminders.End,
		IsStarted:       b.IsStarted,
		IsExtended:      b.IsExtended,
		ExtendedEnd:     utcPtr(b.ExtendedEnd),
		ExtensionCharge: newMoney(b.ExtensionCharge),
		CalendarEventID: b.CalendarEventID,
		CancelReason:    b.CancelReason,
		CancelledAt:     utcPtr(b.CancelledAt),
		CreatedAt:       b.CreatedAt.UTC(),
		UpdatedAt:       b.UpdatedAt.UTC(),
		Version:         b.Version,
	}
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	b := &domainbooking.Booking{
		ID:            domainbooking.BookingID(d.ID),
		RenterID:      d.RenterID,
		VehicleID:     d.VehicleID,
		GroupID:       d.GroupID,
		Period:        d.Period.toRange(),
		Timezone:      d.Timezone,
		Kind:          domainbooking.Kind(d.Kind),
		Status:        domainbooking.Status(d.Status),
		PaymentStatus: domainbooking.PaymentStatus(d.PaymentStatus),
		Price: pricing.Split{
			Total:         d.Price.Total.toMoney(),
			PlatformCut:   d.Price.PlatformCut.toMoney(),
			GroupOwnerCut: d.Price.GroupOwnerCut.toMoney(),
			OwnerAmount:   d.Price.OwnerAmount.toMoney(),
			PaymentStatus: pricing.PaymentStatus(d.Price.PaymentStatus),
		},
		Payment: domainbooking.PaymentRefs{
			IntentID:       d.IntentID,
			SessionID:      d.SessionID,
			SubscriptionID: d.SubscriptionID,
		},
		Refund: domainbooking.Refund{
			ID:     d.Refund.ID,
			Amount: d.Refund.Amount.toMoney(),
			At:     d.Refund.At.UTC(),
			Reason: d.Refund.Reason,
			Status: d.Refund.Status,
		},
		Reminders:       domainbooking.RemindersSent{Start: d.StartReminder, End: d.EndReminder},
		IsStarted:       d.IsStarted,
		IsExtended:      d.IsExtended,
		ExtendedEnd:     utcPtr(d.ExtendedEnd),
		ExtensionCharge: d.ExtensionCharge.toMoney(),
		CalendarEventID: d.CalendarEventID,
		CancelReason:    d.CancelReason,
		CancelledAt:     utcPtr(d.CancelledAt),
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
		Version:         d.Version,
	}
	return b
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
