package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"carrental/internal/domain/shared/daterange"
	domainvehicle "carrental/internal/domain/vehicle"
)

const vehiclesCollection = "vehicles"

type VehicleRepository struct {
	col *mongo.Collection
}

func NewVehicleRepository(db *mongo.Database) *VehicleRepository {
	return &VehicleRepository{col: db.Collection(vehiclesCollection)}
}

func (r *VehicleRepository) ByID(ctx context.Context, id domainvehicle.ID) (*domainvehicle.Vehicle, error) {
	var doc vehicleDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainvehicle.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *VehicleRepository) Save(ctx context.Context, v *domainvehicle.Vehicle) error {
	doc := newVehicleDocument(v)
	filter := bson.M{"_id": doc.ID, "version": v.Version}
	doc.Version = v.Version + 1
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainvehicle.ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return domainvehicle.ErrConcurrentUpdate
	}
	v.Version = doc.Version
	return nil
}

// SetAvailability updates the single field and leaves the version alone, so it
// never races owner edits.
func (r *VehicleRepository) SetAvailability(ctx context.Context, id domainvehicle.ID, available bool) error {
	res, err := r.col.UpdateByID(ctx, string(id), bson.M{"$set": bson.M{"is_available": available, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainvehicle.ErrNotFound
	}
	return nil
}

func (r *VehicleRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domainvehicle.Vehicle, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"owner_id": ownerID, "is_deleted": false}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*domainvehicle.Vehicle, 0)
	for cur.Next(ctx) {
		var doc vehicleDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cur.Err()
}

func vehicleIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "is_deleted", Value: 1}}},
		{Keys: bson.D{{Key: "license_number", Value: 1}}},
	}
}

type vehicleDocument struct {
	ID            string                          `bson:"_id"`
	OwnerID       string                          `bson:"owner_id"`
	Make          string                          `bson:"make"`
	Model         string                          `bson:"model"`
	Year          int                             `bson:"year"`
	LicenseNumber string                          `bson:"license_number"`
	Location      string                          `bson:"location"`
	HourlyRate    moneyDocument                   `bson:"price_per_hour"`
	PlatformPct   float64                         `bson:"platform_pct"`
	IsAvailable   bool                            `bson:"is_available"`
	IsBookable    bool                            `bson:"is_bookable"`
	IsDeleted     bool                            `bson:"is_deleted"`
	Policy        policyDocument                  `bson:"policy"`
	GroupSettings map[string]groupSettingDocument `bson:"group_settings"`
	CreatedAt     time.Time                       `bson:"created_at"`
	UpdatedAt     time.Time                       `bson:"updated_at"`
	Version       int64                           `bson:"version"`
}

type policyDocument struct {
	MinBookingHours    int             `bson:"min_booking_hours"`
	MaxBookingDays     int             `bson:"max_booking_days"`
	AdvanceBookingDays int             `bson:"advance_booking_days"`
	Blackouts          []rangeDocument `bson:"blackouts"`
}

type groupSettingDocument struct {
	AllowPrivateBooking bool      `bson:"allow_private_booking"`
	AddedAt             time.Time `bson:"added_at"`
}

func newVehicleDocument(v *domainvehicle.Vehicle) vehicleDocument {
	doc := vehicleDocument{
		ID:            string(v.ID),
		OwnerID:       v.OwnerID,
		Make:          v.Make,
		Model:         v.Model,
		Year:          v.Year,
		LicenseNumber: v.LicenseNumber,
		Location:      v.Location,
		HourlyRate:    newMoney(v.HourlyRate),
		PlatformPct:   v.PlatformPct,
		IsAvailable:   v.IsAvailable,
		IsBookable:    v.IsBookable,
		IsDeleted:     v.IsDeleted,
		Policy: policyDocument{
			MinBookingHours:    v.Policy.MinBookingHours,
			MaxBookingDays:     v.Policy.MaxBookingDays,
			AdvanceBookingDays: v.Policy.AdvanceBookingDays,
			Blackouts:          make([]rangeDocument, 0, len(v.Policy.Blackouts)),
		},
		GroupSettings: make(map[string]groupSettingDocument, len(v.GroupSettings)),
		CreatedAt:     v.CreatedAt.UTC(),
		UpdatedAt:     v.UpdatedAt.UTC(),
		Version:       v.Version,
	}
	for _, b := range v.Policy.Blackouts {
		doc.Policy.Blackouts = append(doc.Policy.Blackouts, newRange(b))
	}
	for groupID, s := range v.GroupSettings {
		doc.GroupSettings[groupID] = groupSettingDocument{AllowPrivateBooking: s.AllowPrivateBooking, AddedAt: s.AddedAt.UTC()}
	}
	return doc
}

func (d vehicleDocument) toAggregate() *domainvehicle.Vehicle {
	v := &domainvehicle.Vehicle{
		ID:            domainvehicle.ID(d.ID),
		OwnerID:       d.OwnerID,
		Make:          d.Make,
		Model:         d.Model,
		Year:          d.Year,
		LicenseNumber: d.LicenseNumber,
		Location:      d.Location,
		HourlyRate:    d.HourlyRate.toMoney(),
		PlatformPct:   d.PlatformPct,
		IsAvailable:   d.IsAvailable,
		IsBookable:    d.IsBookable,
		IsDeleted:     d.IsDeleted,
		Policy: domainvehicle.Policy{
			MinBookingHours:    d.Policy.MinBookingHours,
			MaxBookingDays:     d.Policy.MaxBookingDays,
			AdvanceBookingDays: d.Policy.AdvanceBookingDays,
		},
		GroupSettings: make(map[string]domainvehicle.GroupSetting, len(d.GroupSettings)),
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
		Version:       d.Version,
	}
	for _, b := range d.Policy.Blackouts {
		v.Policy.Blackouts = append(v.Policy.Blackouts, daterange.Range{Start: b.Start.UTC(), End: b.End.UTC()})
	}
	for groupID, s := range d.GroupSettings {
		v.GroupSettings[groupID] = domainvehicle.GroupSetting{AllowPrivateBooking: s.AllowPrivateBooking, AddedAt: s.AddedAt.UTC()}
	}
	return v
}

var _ domainvehicle.Repository = (*VehicleRepository)(nil)
