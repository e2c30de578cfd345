package user

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"carrental/internal/domain/shared/errkind"
)

var (
	ErrIDRequired    = fmt.Errorf("%w: user id is required", errkind.ErrValidation)
	ErrEmailRequired = fmt.Errorf("%w: user email is required", errkind.ErrValidation)
	ErrInvalidRole   = fmt.Errorf("%w: invalid role", errkind.ErrValidation)
	ErrFutureBirth   = fmt.Errorf("%w: date of birth cannot be in the future", errkind.ErrValidation)
	ErrNotFound      = fmt.Errorf("%w: user not found", errkind.ErrNotFound)
	ErrEmailTaken    = fmt.Errorf("%w: email already registered", errkind.ErrConflict)
)

type ID string

type Role string

const (
	RoleRenter Role = "renter"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

// Verification tracks the checks group rules can require.
type Verification struct {
	EmailVerified     bool
	PhoneVerified     bool
	LicenseVerified   bool
	BackgroundChecked bool
}

type User struct {
	ID           ID
	Email        string
	Name         string
	Phone        string
	DateOfBirth  *time.Time
	Verification Verification
	Roles        []Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*User, error)
	Save(ctx context.Context, user *User) error
}

type CreateParams struct {
	ID        ID
	Email     string
	Name      string
	Roles     []Role
	CreatedAt time.Time
}

func NewUser(params CreateParams) (*User, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	email := normalizeEmail(params.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	roles, err := normalizeRoles(params.Roles)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		roles = []Role{RoleRenter}
	}
	return &User{
		ID:        ID(id),
		Email:     email,
		Name:      strings.TrimSpace(params.Name),
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ProfileUpdate carries the renter-editable fields; nil leaves a field untouched.
type ProfileUpdate struct {
	Email       *string
	Name        *string
	Phone       *string
	DateOfBirth *time.Time
}

func (u *User) ApplyProfile(p ProfileUpdate, now time.Time) error {
	if p.Email != nil && normalizeEmail(*p.Email) == "" {
		return ErrEmailRequired
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(now) {
		return ErrFutureBirth
	}
	if p.Email != nil {
		email := normalizeEmail(*p.Email)
		if email != u.Email {
			u.Verification.EmailVerified = false
		}
		u.Email = email
	}
	if p.Name != nil {
		u.Name = strings.TrimSpace(*p.Name)
	}
	if p.Phone != nil {
		phone := strings.TrimSpace(*p.Phone)
		if phone != u.Phone {
			u.Verification.PhoneVerified = false
		}
		u.Phone = phone
	}
	if p.DateOfBirth != nil {
		dob := p.DateOfBirth.UTC()
		u.DateOfBirth = &dob
	}
	u.touch(now)
	return nil
}

func (u *User) SetVerification(v Verification, now time.Time) {
	u.Verification = v
	u.touch(now)
}

// AgeAt returns completed years using 365.25-day years, or -1 without a birth date.
func (u *User) AgeAt(now time.Time) int {
	if u.DateOfBirth == nil {
		return -1
	}
	years := now.Sub(*u.DateOfBirth).Hours() / (365.25 * 24)
	return int(math.Floor(years))
}

func (u *User) EnsureRole(role Role, now time.Time) error {
	role = normalizeRole(role)
	if role == "" {
		return ErrInvalidRole
	}
	if u.HasRole(role) {
		return nil
	}
	u.Roles = append(u.Roles, role)
	u.touch(now)
	return nil
}

func (u *User) HasRole(role Role) bool {
	role = normalizeRole(role)
	if role == "" {
		return false
	}
	for _, current := range u.Roles {
		if normalizeRole(current) == role {
			return true
		}
	}
	return false
}

func (u *User) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	u.UpdatedAt = now.UTC()
}

func normalizeRoles(roles []Role) ([]Role, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	seen := make(map[Role]struct{}, len(roles))
	normalized := make([]Role, 0, len(roles))
	for _, role := range roles {
		r := normalizeRole(role)
		if r == "" {
			return nil, ErrInvalidRole
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		normalized = append(normalized, r)
	}
	return normalized, nil
}

func normalizeRole(role Role) Role {
	return Role(strings.ToLower(strings.TrimSpace(string(role))))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
