package dto

import (
	"time"

	domainuser "carrental/internal/domain/user"
)

type UserProfile struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Name              string     `json:"name"`
	Phone             string     `json:"phone,omitempty"`
	DateOfBirth       *time.Time `json:"date_of_birth,omitempty"`
	EmailVerified     bool       `json:"email_verified"`
	PhoneVerified     bool       `json:"phone_verified"`
	LicenseVerified   bool       `json:"license_verified"`
	BackgroundChecked bool       `json:"background_checked"`
	Roles             []string   `json:"roles"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func MapUserProfile(user *domainuser.User) UserProfile {
	if user == nil {
		return UserProfile{}
	}
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, string(role))
	}
	return UserProfile{
		ID:                string(user.ID),
		Email:             user.Email,
		Name:              user.Name,
		Phone:             user.Phone,
		DateOfBirth:       user.DateOfBirth,
		EmailVerified:     user.Verification.EmailVerified,
		PhoneVerified:     user.Verification.PhoneVerified,
		LicenseVerified:   user.Verification.LicenseVerified,
		BackgroundChecked: user.Verification.BackgroundChecked,
		Roles:             roles,
		CreatedAt:         user.CreatedAt,
		UpdatedAt:         user.UpdatedAt,
	}
}
