// Package me serves the caller's own profile.
package me

import (
	"context"
	"log/slog"
	"time"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	"carrental/internal/app/queries"
	"carrental/internal/app/uow"
	domainuser "carrental/internal/domain/user"
)

const (
	getProfileKey    = "me.profile.get"
	updateProfileKey = "me.profile.update"
)

type GetProfileQuery struct {
	UserID string `validate:"required"`
}

func (q GetProfileQuery) Key() string { return getProfileKey }

type GetProfileHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetProfileHandler) Handle(ctx context.Context, q GetProfileQuery) (dto.UserProfile, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.UserProfile{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	u, err := unit.Users().ByID(execCtx, domainuser.ID(q.UserID))
	if err != nil {
		return dto.UserProfile{}, err
	}
	return dto.MapUserProfile(u), nil
}

type VerificationPayload struct {
	EmailVerified     bool `json:"email_verified"`
	PhoneVerified     bool `json:"phone_verified"`
	LicenseVerified   bool `json:"license_verified"`
	BackgroundChecked bool `json:"background_checked"`
}

type UpdateProfileCommand struct {
	UserID       string               `json:"user_id" validate:"required"`
	Email        *string              `json:"email" validate:"omitempty,email"`
	Name         *string              `json:"name" validate:"omitempty,max=120"`
	Phone        *string              `json:"phone" validate:"omitempty,max=32"`
	DateOfBirth  *time.Time           `json:"date_of_birth"`
	Verification *VerificationPayload `json:"verification"`
}

func (c UpdateProfileCommand) Key() string { return updateProfileKey }

func (c UpdateProfileCommand) ActorID() string { return c.UserID }

type UpdateProfileHandler struct {
	Logger *slog.Logger
	Clock  func() time.Time
}

// Handle applies the profile fields first, so a changed email or phone drops
// its verification, then the verification flags when they are sent.
func (h *UpdateProfileHandler) Handle(ctx context.Context, cmd UpdateProfileCommand) (*dto.UserProfile, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	u, err := unit.Users().ByID(ctx, domainuser.ID(cmd.UserID))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if h.Clock != nil {
		now = h.Clock().UTC()
	}
	if err := u.ApplyProfile(domainuser.ProfileUpdate{
		Email:       cmd.Email,
		Name:        cmd.Name,
		Phone:       cmd.Phone,
		DateOfBirth: cmd.DateOfBirth,
	}, now); err != nil {
		return nil, err
	}
	if v := cmd.Verification; v != nil {
		u.SetVerification(domainuser.Verification{
			EmailVerified:     v.EmailVerified,
			PhoneVerified:     v.PhoneVerified,
			LicenseVerified:   v.LicenseVerified,
			BackgroundChecked: v.BackgroundChecked,
		}, now)
	}
	if err := unit.Users().Save(ctx, u); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("profile updated", "user_id", u.ID)
	}
	profile := dto.MapUserProfile(u)
	return &profile, nil
}

var _ queries.Handler[GetProfileQuery, dto.UserProfile] = (*GetProfileHandler)(nil)
var _ commands.Handler[UpdateProfileCommand, *dto.UserProfile] = (*UpdateProfileHandler)(nil)
