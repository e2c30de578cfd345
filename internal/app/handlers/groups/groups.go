// Package groups holds the group administration commands: creating groups,
// admitting members, sharing vehicles and tuning the booking preferences that
// group bookings are checked against.
package groups

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	"carrental/internal/app/uow"
	domaingroup "carrental/internal/domain/group"
	"carrental/internal/domain/pricing"
	"carrental/internal/domain/shared/money"
)

const (
	createGroupKey       = "groups.create"
	updatePreferencesKey = "groups.preferences.update"
	updateRulesKey       = "groups.rules.update"
	deactivateGroupKey   = "groups.deactivate"
)

type Deps struct {
	Logger *slog.Logger
	Clock  func() time.Time
	NewID  func() string
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

func (d Deps) log(msg string, args ...any) {
	if d.Logger != nil {
		d.Logger.Info(msg, args...)
	}
}

type RulesPayload struct {
	EmailVerified           bool `json:"email_verified"`
	PhoneVerified           bool `json:"phone_verified"`
	LicenseRequired         bool `json:"license_required"`
	MinimumAge              int  `json:"minimum_age" validate:"omitempty,gte=16,lte=100"`
	BackgroundCheckRequired bool `json:"background_check_required"`
}

func (p RulesPayload) toDomain() domaingroup.Rules {
	return domaingroup.Rules{
		EmailVerified:           p.EmailVerified,
		PhoneVerified:           p.PhoneVerified,
		LicenseRequired:         p.LicenseRequired,
		MinimumAge:              p.MinimumAge,
		BackgroundCheckRequired: p.BackgroundCheckRequired,
	}
}

type PreferencesPayload struct {
	MaxBookingHours     int    `json:"max_booking_hours" validate:"gte=0"`
	AdvanceLimitDays    int    `json:"advance_limit_days" validate:"gte=0"`
	AutoApproveBookings *bool  `json:"auto_approve_bookings"`
	AllowMemberInvites  *bool  `json:"allow_member_invites"`
	CancellationPolicy  string `json:"cancellation_policy" validate:"omitempty,oneof=flexible moderate strict"`
}

// merge overlays the payload on current. Zero and nil fields keep the current value.
func (p PreferencesPayload) merge(current domaingroup.Preferences) domaingroup.Preferences {
	next := current
	if p.MaxBookingHours > 0 {
		next.MaxBookingHours = p.MaxBookingHours
	}
	if p.AdvanceLimitDays > 0 {
		next.AdvanceLimitDays = p.AdvanceLimitDays
	}
	if p.AutoApproveBookings != nil {
		next.AutoApproveBookings = *p.AutoApproveBookings
	}
	if p.AllowMemberInvites != nil {
		next.AllowMemberInvites = *p.AllowMemberInvites
	}
	if p.CancellationPolicy != "" {
		next.CancellationPolicy = p.CancellationPolicy
	}
	return next
}

type CreateGroupCommand struct {
	CreatorID         string              `json:"creator_id" validate:"required"`
	Name              string              `json:"name" validate:"required,min=2,max=100"`
	Description       string              `json:"description" validate:"max=500"`
	HourlyRateCents   int64               `json:"price_per_hour_cents" validate:"gte=0"`
	Currency          string              `json:"currency"`
	PlatformPercent   *float64            `json:"platform_pct" validate:"omitempty,gte=0,lte=100"`
	GroupOwnerPercent *float64            `json:"group_owner_pct" validate:"omitempty,gte=0,lte=100"`
	Privacy           string              `json:"privacy" validate:"omitempty,oneof=public private invite-only"`
	Rules             RulesPayload        `json:"rules"`
	Preferences       *PreferencesPayload `json:"preferences"`
}

func (c CreateGroupCommand) Key() string { return createGroupKey }

func (c CreateGroupCommand) ActorID() string { return c.CreatorID }

type CreateGroupHandler struct {
	Deps
}

func (h *CreateGroupHandler) Handle(ctx context.Context, cmd CreateGroupCommand) (*dto.GroupView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	var commission *pricing.Commission
	if cmd.PlatformPercent != nil || cmd.GroupOwnerPercent != nil {
		c := pricing.Commission{PlatformPercent: pricing.DefaultPlatformPercent, GroupOwnerPercent: pricing.DefaultGroupOwnerPercent}
		if cmd.PlatformPercent != nil {
			c.PlatformPercent = *cmd.PlatformPercent
		}
		if cmd.GroupOwnerPercent != nil {
			c.GroupOwnerPercent = *cmd.GroupOwnerPercent
		}
		commission = &c
	}
	var prefs *domaingroup.Preferences
	if cmd.Preferences != nil {
		p := cmd.Preferences.merge(domaingroup.DefaultPreferences())
		prefs = &p
	}
	g, err := domaingroup.New(domaingroup.CreateParams{
		ID:          domaingroup.ID(h.newID()),
		Name:        cmd.Name,
		Description: cmd.Description,
		CreatorID:   cmd.CreatorID,
		HourlyRate:  money.Money{Amount: cmd.HourlyRateCents, Currency: strings.ToUpper(strings.TrimSpace(cmd.Currency))},
		Commission:  commission,
		Rules:       cmd.Rules.toDomain(),
		Preferences: prefs,
		Privacy:     domaingroup.Privacy(cmd.Privacy),
		Now:         h.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := unit.Groups().Save(ctx, g); err != nil {
		return nil, err
	}
	h.log("group created", "group_id", g.ID, "creator_id", g.CreatorID)
	view := dto.MapGroup(g)
	return &view, nil
}

// UpdatePreferencesCommand changes booking preferences and, optionally, the
// group's pricing and privacy.
type UpdatePreferencesCommand struct {
	GroupID           string             `json:"group_id" validate:"required"`
	AdminID           string             `json:"admin_id" validate:"required"`
	Preferences       PreferencesPayload `json:"preferences"`
	HourlyRateCents   *int64             `json:"price_per_hour_cents" validate:"omitempty,gt=0"`
	PlatformPercent   *float64           `json:"platform_pct" validate:"omitempty,gte=0,lte=100"`
	GroupOwnerPercent *float64           `json:"group_owner_pct" validate:"omitempty,gte=0,lte=100"`
	Privacy           *string            `json:"privacy" validate:"omitempty,oneof=public private invite-only"`
}

func (c UpdatePreferencesCommand) Key() string { return updatePreferencesKey }

func (c UpdatePreferencesCommand) ActorID() string { return c.AdminID }

type UpdatePreferencesHandler struct {
	Deps
}

func (h *UpdatePreferencesHandler) Handle(ctx context.Context, cmd UpdatePreferencesCommand) (*dto.GroupView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	g, err := unit.Groups().ByID(ctx, domaingroup.ID(cmd.GroupID))
	if err != nil {
		return nil, err
	}
	prefs := cmd.Preferences.merge(g.Preferences)
	update := domaingroup.SettingsUpdate{Preferences: &prefs}
	if cmd.HourlyRateCents != nil {
		rate := money.Money{Amount: *cmd.HourlyRateCents, Currency: g.HourlyRate.Currency}
		update.HourlyRate = &rate
	}
	if cmd.PlatformPercent != nil || cmd.GroupOwnerPercent != nil {
		c := g.Commission
		if cmd.PlatformPercent != nil {
			c.PlatformPercent = *cmd.PlatformPercent
		}
		if cmd.GroupOwnerPercent != nil {
			c.GroupOwnerPercent = *cmd.GroupOwnerPercent
		}
		update.Commission = &c
	}
	if cmd.Privacy != nil {
		privacy := domaingroup.Privacy(*cmd.Privacy)
		update.Privacy = &privacy
	}
	if err := g.UpdateSettings(cmd.AdminID, update, h.now()); err != nil {
		return nil, err
	}
	if err := unit.Groups().Save(ctx, g); err != nil {
		return nil, err
	}
	h.log("group preferences updated", "group_id", g.ID)
	view := dto.MapGroup(g)
	return &view, nil
}

type UpdateRulesCommand struct {
	GroupID string       `json:"group_id" validate:"required"`
	AdminID string       `json:"admin_id" validate:"required"`
	Rules   RulesPayload `json:"rules"`
}

func (c UpdateRulesCommand) Key() string { return updateRulesKey }

func (c UpdateRulesCommand) ActorID() string { return c.AdminID }

type UpdateRulesHandler struct {
	Deps
}

// Handle replaces the membership rules. Existing members are not re-checked.
func (h *UpdateRulesHandler) Handle(ctx context.Context, cmd UpdateRulesCommand) (*dto.GroupView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	g, err := unit.Groups().ByID(ctx, domaingroup.ID(cmd.GroupID))
	if err != nil {
		return nil, err
	}
	if err := g.UpdateRules(cmd.AdminID, cmd.Rules.toDomain(), h.now()); err != nil {
		return nil, err
	}
	if err := unit.Groups().Save(ctx, g); err != nil {
		return nil, err
	}
	view := dto.MapGroup(g)
	return &view, nil
}

type DeactivateGroupCommand struct {
	GroupID string `json:"group_id" validate:"required"`
	AdminID string `json:"admin_id" validate:"required"`
}

func (c DeactivateGroupCommand) Key() string { return deactivateGroupKey }

func (c DeactivateGroupCommand) ActorID() string { return c.AdminID }

type DeactivateGroupHandler struct {
	Deps
}

func (h *DeactivateGroupHandler) Handle(ctx context.Context, cmd DeactivateGroupCommand) (*dto.GroupView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	g, err := unit.Groups().ByID(ctx, domaingroup.ID(cmd.GroupID))
	if err != nil {
		return nil, err
	}
	if err := g.Deactivate(cmd.AdminID, h.now()); err != nil {
		return nil, err
	}
	if err := unit.Groups().Save(ctx, g); err != nil {
		return nil, err
	}
	h.log("group deactivated", "group_id", g.ID, "admin_id", cmd.AdminID)
	view := dto.MapGroup(g)
	return &view, nil
}

var _ commands.Handler[CreateGroupCommand, *dto.GroupView] = (*CreateGroupHandler)(nil)
var _ commands.Handler[UpdatePreferencesCommand, *dto.GroupView] = (*UpdatePreferencesHandler)(nil)
var _ commands.Handler[UpdateRulesCommand, *dto.GroupView] = (*UpdateRulesHandler)(nil)
var _ commands.Handler[DeactivateGroupCommand, *dto.GroupView] = (*DeactivateGroupHandler)(nil)
