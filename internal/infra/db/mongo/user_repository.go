package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainuser "carrental/internal/domain/user"
)

const usersCollection = "users"

type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(usersCollection)}
}

func (r *UserRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	var doc userDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainuser.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *UserRepository) Save(ctx context.Context, u *domainuser.User) error {
	if u == nil || strings.TrimSpace(string(u.ID)) == "" {
		return domainuser.ErrIDRequired
	}
	doc := newUserDocument(u)
	_, err := r.col.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return domainuser.ErrEmailTaken
	}
	return err
}

func userIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
}

type userDocument struct {
	ID                string     `bson:"_id"`
	Email             string     `bson:"email"`
	Name              string     `bson:"name"`
	Phone             string     `bson:"phone,omitempty"`
	DateOfBirth       *time.Time `bson:"date_of_birth,omitempty"`
	EmailVerified     bool       `bson:"email_verified"`
	PhoneVerified     bool       `bson:"phone_verified"`
	LicenseVerified   bool       `bson:"license_verified"`
	BackgroundChecked bool       `bson:"background_check_passed"`
	Roles             []string   `bson:"roles"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

func newUserDocument(u *domainuser.User) userDocument {
	doc := userDocument{
		ID:                string(u.ID),
		Email:             strings.ToLower(strings.TrimSpace(u.Email)),
		Name:              u.Name,
		Phone:             u.Phone,
		DateOfBirth:       utcPtr(u.DateOfBirth),
		EmailVerified:     u.Verification.EmailVerified,
		PhoneVerified:     u.Verification.PhoneVerified,
		LicenseVerified:   u.Verification.LicenseVerified,
		BackgroundChecked: u.Verification.BackgroundChecked,
		Roles:             make([]string, 0, len(u.Roles)),
		CreatedAt:         u.CreatedAt.UTC(),
		UpdatedAt:         u.UpdatedAt.UTC(),
	}
	for _, r := range u.Roles {
		doc.Roles = append(doc.Roles, string(r))
	}
	return doc
}

func (d userDocument) toAggregate() *domainuser.User {
	u := &domainuser.User{
		ID:          domainuser.ID(d.ID),
		Email:       d.Email,
		Name:        d.Name,
		Phone:       d.Phone,
		DateOfBirth: utcPtr(d.DateOfBirth),
		Verification: domainuser.Verification{
			EmailVerified:     d.EmailVerified,
			PhoneVerified:     d.PhoneVerified,
			LicenseVerified:   d.LicenseVerified,
			BackgroundChecked: d.BackgroundChecked,
		},
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, r := range d.Roles {
		u.Roles = append(u.Roles, domainuser.Role(r))
	}
	return u
}

var _ domainuser.Repository = (*UserRepository)(nil)
