package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domaingroup "carrental/internal/domain/group"
	"carrental/internal/domain/pricing"
)

const groupsCollection = "groups"

type GroupRepository struct {
	col *mongo.Collection
}

func NewGroupRepository(db *mongo.Database) *GroupRepository {
	return &GroupRepository{col: db.Collection(groupsCollection)}
}

func (r *GroupRepository) ByID(ctx context.Context, id domaingroup.ID) (*domaingroup.Group, error) {
	var doc groupDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domaingroup.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *GroupRepository) Save(ctx context.Context, g *domaingroup.Group) error {
	doc := newGroupDocument(g)
	filter := bson.M{"_id": doc.ID, "version": g.Version}
	doc.Version = g.Version + 1
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domaingroup.ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return domaingroup.ErrConcurrentUpdate
	}
	g.Version = doc.Version
	return nil
}

// ListByMember returns the groups where userID is an active member.
func (r *GroupRepository) ListByMember(ctx context.Context, userID string) ([]*domaingroup.Group, error) {
	filter := bson.M{"members": bson.M{"$elemMatch": bson.M{"user_id": userID, "status": string(domaingroup.MemberActive)}}}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*domaingroup.Group, 0)
	for cur.Next(ctx) {
		var doc groupDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cur.Err()
}

func groupIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "members.user_id", Value: 1}}},
		{Keys: bson.D{{Key: "vehicles.vehicle_id", Value: 1}}},
	}
}

type groupDocument struct {
	ID                string              `bson:"_id"`
	Name              string              `bson:"name"`
	Description       string              `bson:"description"`
	CreatorID         string              `bson:"creator_id"`
	Members           []memberDocument    `bson:"members"`
	Vehicles          []groupVehicleDoc   `bson:"vehicles"`
	Rules             rulesDocument       `bson:"rules"`
	Preferences       preferencesDocument `bson:"preferences"`
	HourlyRate        moneyDocument       `bson:"price_per_hour"`
	PlatformPercent   float64             `bson:"platform_pct"`
	GroupOwnerPercent float64             `bson:"group_owner_pct"`
	Privacy           string              `bson:"privacy"`
	IsActive          bool                `bson:"is_active"`
	CreatedAt         time.Time           `bson:"created_at"`
	UpdatedAt         time.Time           `bson:"updated_at"`
	Version           int64               `bson:"version"`
}

type memberDocument struct {
	UserID   string    `bson:"user_id"`
	Role     string    `bson:"role"`
	Status   string    `bson:"status"`
	JoinedAt time.Time `bson:"joined_at"`
}

type groupVehicleDoc struct {
	VehicleID           string    `bson:"vehicle_id"`
	AllowPrivateBooking bool      `bson:"allow_private_booking"`
	AddedBy             string    `bson:"added_by"`
	AddedAt             time.Time `bson:"added_at"`
}

type rulesDocument struct {
	EmailVerified           bool `bson:"email_verified"`
	PhoneVerified           bool `bson:"phone_verified"`
	LicenseRequired         bool `bson:"license_required"`
	MinimumAge              int  `bson:"minimum_age"`
	BackgroundCheckRequired bool `bson:"background_check_required"`
}

type preferencesDocument struct {
	MaxBookingHours     int    `bson:"max_booking_hours"`
	AdvanceLimitDays    int    `bson:"advance_limit_days"`
	AutoApproveBookings bool   `bson:"auto_approve_bookings"`
	AllowMemberInvites  bool   `bson:"allow_member_invites"`
	CancellationPolicy  string `bson:"cancellation_policy"`
}

func newGroupDocument(g *domaingroup.Group) groupDocument {
	doc := groupDocument{
		ID:          string(g.ID),
		Name:        g.Name,
		Description: g.Description,
		CreatorID:   g.CreatorID,
		Members:     make([]memberDocument, 0, len(g.Members)),
		Vehicles:    make([]groupVehicleDoc, 0, len(g.Vehicles)),
		Rules:       rulesDocument(g.Rules),
		Preferences: preferencesDocument(g.Preferences),
		HourlyRate:  newMoney(g.HourlyRate),

		PlatformPercent:   g.Commission.PlatformPercent,
		GroupOwnerPercent: g.Commission.GroupOwnerPercent,

		Privacy:   string(g.Privacy),
		IsActive:  g.IsActive,
		CreatedAt: g.CreatedAt.UTC(),
		UpdatedAt: g.UpdatedAt.UTC(),
		Version:   g.Version,
	}
	for _, m := range g.Members {
		doc.Members = append(doc.Members, memberDocument{UserID: m.UserID, Role: string(m.Role), Status: string(m.Status), JoinedAt: m.JoinedAt.UTC()})
	}
	for _, v := range g.Vehicles {
		doc.Vehicles = append(doc.Vehicles, groupVehicleDoc{VehicleID: v.VehicleID, AllowPrivateBooking: v.AllowPrivateBooking, AddedBy: v.AddedBy, AddedAt: v.AddedAt.UTC()})
	}
	return doc
}

func (d groupDocument) toAggregate() *domaingroup.Group {
	g := &domaingroup.Group{
		ID:          domaingroup.ID(d.ID),
		Name:        d.Name,
		Description: d.Description,
		CreatorID:   d.CreatorID,
		Rules:       domaingroup.Rules(d.Rules),
		Preferences: domaingroup.Preferences(d.Preferences),
		HourlyRate:  d.HourlyRate.toMoney(),
		Commission:  pricing.Commission{PlatformPercent: d.PlatformPercent, GroupOwnerPercent: d.GroupOwnerPercent},
		Privacy:     domaingroup.Privacy(d.Privacy),
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
		Version:     d.Version,
	}
	for _, m := range d.Members {
		g.Members = append(g.Members, domaingroup.Member{
			UserID:   m.UserID,
			Role:     domaingroup.MemberRole(m.Role),
			Status:   domaingroup.MemberStatus(m.Status),
			JoinedAt: m.JoinedAt.UTC(),
		})
	}
	for _, v := range d.Vehicles {
		g.Vehicles = append(g.Vehicles, domaingroup.VehicleEntry{
			VehicleID:           v.VehicleID,
			AllowPrivateBooking: v.AllowPrivateBooking,
			AddedBy:             v.AddedBy,
			AddedAt:             v.AddedAt.UTC(),
		})
	}
	return g
}

var _ domaingroup.Repository = (*GroupRepository)(nil)
