package group

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carrental/internal/domain/pricing"
	"carrental/internal/domain/shared/errkind"
	"carrental/internal/domain/shared/money"
)

var (
	ErrNotFound            = fmt.Errorf("%w: group not found", errkind.ErrNotFound)
	ErrNotAdmin            = fmt.Errorf("%w: only active group admins can do this", errkind.ErrForbidden)
	ErrNotMember           = fmt.Errorf("%w: not an active member of this group", errkind.ErrForbidden)
	ErrAlreadyMember       = fmt.Errorf("%w: user is already a member of this group", errkind.ErrConflict)
	ErrVehicleNotInGroup   = fmt.Errorf("%w: vehicle is not available in this group", errkind.ErrPolicyViolation)
	ErrVehicleAlreadyAdded = fmt.Errorf("%w: vehicle is already in this group", errkind.ErrConflict)
	ErrOwnerNotMember      = fmt.Errorf("%w: vehicle owner must be an active member", errkind.ErrPolicyViolation)
	ErrPrivateNotAllowed   = fmt.Errorf("%w: private booking is not allowed for this vehicle in this group", errkind.ErrPolicyViolation)
	ErrDurationLimit       = fmt.Errorf("%w: booking duration exceeds group limit", errkind.ErrPolicyViolation)
	ErrAdvanceLimit        = fmt.Errorf("%w: booking starts beyond the group advance limit", errkind.ErrPolicyViolation)
	ErrStartInPast         = fmt.Errorf("%w: booking cannot start in the past", errkind.ErrPolicyViolation)
	ErrInactive            = fmt.Errorf("%w: group is inactive", errkind.ErrInvalidState)
	ErrInvalidSettings     = fmt.Errorf("%w: invalid group settings", errkind.ErrValidation)
	ErrConcurrentUpdate    = errors.New("group: concurrent update detected")
)

type ID string

type MemberRole string

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberPending   MemberStatus = "pending"
	MemberSuspended MemberStatus = "suspended"
)

type Privacy string

const (
	PrivacyPublic     Privacy = "public"
	PrivacyPrivate    Privacy = "private"
	PrivacyInviteOnly Privacy = "invite-only"
)

const (
	DefaultMaxBookingHours  = 168
	DefaultAdvanceLimitDays = 30
)

type Member struct {
	UserID   string
	Role     MemberRole
	Status   MemberStatus
	JoinedAt time.Time
}

type VehicleEntry struct {
	VehicleID           string
	AllowPrivateBooking bool
	AddedBy             string
	AddedAt             time.Time
}

type Rules struct {
	EmailVerified           bool
	PhoneVerified           bool
	LicenseRequired         bool
	MinimumAge              int
	BackgroundCheckRequired bool
}

type Preferences struct {
	MaxBookingHours     int
	AdvanceLimitDays    int
	AutoApproveBookings bool
	AllowMemberInvites  bool
	CancellationPolicy  string
}

func DefaultPreferences() Preferences {
	return Preferences{
		MaxBookingHours:     DefaultMaxBookingHours,
		AdvanceLimitDays:    DefaultAdvanceLimitDays,
		AutoApproveBookings: true,
		CancellationPolicy:  "moderate",
	}
}

type Group struct {
	ID          ID
	Name        string
	Description string
	CreatorID   string
	Members     []Member
	Vehicles    []VehicleEntry
	Rules       Rules
	Preferences Preferences
	HourlyRate  money.Money
	Commission  pricing.Commission
	Privacy     Privacy
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Group, error)
	Save(ctx context.Context, g *Group) error
	ListByMember(ctx context.Context, userID string) ([]*Group, error)
}

type CreateParams struct {
	ID          ID
	Name        string
	Description string
	CreatorID   string
	HourlyRate  money.Money
	Commission  *pricing.Commission
	Rules       Rules
	Preferences *Preferences
	Privacy     Privacy
	Now         time.Time
}

func New(params CreateParams) (*Group, error) {
	name := strings.TrimSpace(params.Name)
	if len(name) < 2 || len(name) > 100 {
		return nil, fmt.Errorf("%w: name must be 2..100 characters", ErrInvalidSettings)
	}
	if strings.TrimSpace(params.CreatorID) == "" || strings.TrimSpace(string(params.ID)) == "" {
		return nil, fmt.Errorf("%w: id and creator are required", ErrInvalidSettings)
	}
	rate := params.HourlyRate
	if rate.Currency == "" {
		rate.Currency = money.DefaultCurrency
	}
	if rate.Amount <= 0 {
		rate.Amount = pricing.DefaultHourlyRateCents
	}
	commission := pricing.Commission{PlatformPercent: pricing.DefaultPlatformPercent, GroupOwnerPercent: pricing.DefaultGroupOwnerPercent}
	if params.Commission != nil {
		commission = *params.Commission
	}
	if err := commission.Validate(); err != nil {
		return nil, err
	}
	prefs := DefaultPreferences()
	if params.Preferences != nil {
		prefs = normalizePreferences(*params.Preferences)
	}
	if err := validateRules(params.Rules); err != nil {
		return nil, err
	}
	privacy := params.Privacy
	if privacy == "" {
		privacy = PrivacyPrivate
	}
	now := params.Now.UTC()
	return &Group{
		ID:          params.ID,
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		CreatorID:   params.CreatorID,
		Members:     []Member{{UserID: params.CreatorID, Role: RoleAdmin, Status: MemberActive, JoinedAt: now}},
		Rules:       params.Rules,
		Preferences: prefs,
		HourlyRate:  rate,
		Commission:  commission,
		Privacy:     privacy,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (g *Group) member(userID string) (Member, bool) {
	for _, m := range g.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

func (g *Group) IsActiveMember(userID string) bool {
	m, ok := g.member(userID)
	return ok && m.Status == MemberActive
}

func (g *Group) IsActiveAdmin(userID string) bool {
	m, ok := g.member(userID)
	return ok && m.Status == MemberActive && m.Role == RoleAdmin
}

func (g *Group) VehicleEntry(vehicleID string) (VehicleEntry, bool) {
	for _, v := range g.Vehicles {
		if v.VehicleID == vehicleID {
			return v, true
		}
	}
	return VehicleEntry{}, false
}

func (g *Group) requireAdmin(actor string) error {
	if !g.IsActive {
		return ErrInactive
	}
	if !g.IsActiveAdmin(actor) {
		return ErrNotAdmin
	}
	return nil
}

// AddMember admits userID as an active member once eligibility has passed.
func (g *Group) AddMember(actor, userID string, role MemberRole, eligibility Eligibility, now time.Time) error {
	if err := g.requireAdmin(actor); err != nil {
		return err
	}
	if _, exists := g.member(userID); exists {
		return ErrAlreadyMember
	}
	if !eligibility.Eligible {
		return eligibility.Err()
	}
	if role == "" {
		role = RoleMember
	}
	if role != RoleAdmin && role != RoleMember {
		return fmt.Errorf("%w: unknown member role %q", ErrInvalidSettings, role)
	}
	g.Members = append(g.Members, Member{UserID: userID, Role: role, Status: MemberActive, JoinedAt: now.UTC()})
	g.UpdatedAt = now.UTC()
	return nil
}

// AddVehicle shares a vehicle into the group. Each vehicle appears at most once.
// Admins may add any member's vehicle; other active members only their own.
func (g *Group) AddVehicle(actor, vehicleID, vehicleOwner string, allowPrivate bool, now time.Time) error {
	if !g.IsActive {
		return ErrInactive
	}
	if !g.IsActiveAdmin(actor) && (actor != vehicleOwner || !g.IsActiveMember(actor)) {
		return ErrNotAdmin
	}
	if !g.IsActiveMember(vehicleOwner) {
		return ErrOwnerNotMember
	}
	if _, exists := g.VehicleEntry(vehicleID); exists {
		return ErrVehicleAlreadyAdded
	}
	g.Vehicles = append(g.Vehicles, VehicleEntry{VehicleID: vehicleID, AllowPrivateBooking: allowPrivate, AddedBy: actor, AddedAt: now.UTC()})
	g.UpdatedAt = now.UTC()
	return nil
}

func (g *Group) SetPrivateBooking(actor, vehicleID string, allow bool, now time.Time) error {
	if err := g.requireAdmin(actor); err != nil {
		return err
	}
	for i := range g.Vehicles {
		if g.Vehicles[i].VehicleID == vehicleID {
			g.Vehicles[i].AllowPrivateBooking = allow
			g.UpdatedAt = now.UTC()
			return nil
		}
	}
	return ErrVehicleNotInGroup
}

func (g *Group) RemoveVehicle(actor, vehicleID string, now time.Time) error {
	if err := g.requireAdmin(actor); err != nil {
		return err
	}
	for i := range g.Vehicles {
		if g.Vehicles[i].VehicleID == vehicleID {
			g.Vehicles = append(g.Vehicles[:i], g.Vehicles[i+1:]...)
			g.UpdatedAt = now.UTC()
			return nil
		}
	}
	return ErrVehicleNotInGroup
}

type SettingsUpdate struct {
	Preferences *Preferences
	HourlyRate  *money.Money
	Commission  *pricing.Commission
	Privacy     *Privacy
}

func (g *Group) UpdateSettings(actor string, u SettingsUpdate, now time.Time) error {
	if err := g.requireAdmin(actor); err != nil {
		return err
	}
	if u.Commission != nil {
		if err := u.Commission.Validate(); err != nil {
			return err
		}
	}
	if u.HourlyRate != nil && u.HourlyRate.Amount <= 0 {
		return fmt.Errorf("%w: hourly rate must be positive", ErrInvalidSettings)
	}
	if u.Privacy != nil {
		switch *u.Privacy {
		case PrivacyPublic, PrivacyPrivate, PrivacyInviteOnly:
		default:
			return fmt.Errorf("%w: unknown privacy %q", ErrInvalidSettings, *u.Privacy)
		}
	}
	if u.Preferences != nil {
		g.Preferences = normalizePreferences(*u.Preferences)
	}
	if u.HourlyRate != nil {
		g.HourlyRate = *u.HourlyRate
	}
	if u.Commission != nil {
		g.Commission = *u.Commission
	}
	if u.Privacy != nil {
		g.Privacy = *u.Privacy
	}
	g.UpdatedAt = now.UTC()
	return nil
}

func (g *Group) UpdateRules(actor string, rules Rules, now time.Time) error {
	if err := g.requireAdmin(actor); err != nil {
		return err
	}
	if err := validateRules(rules); err != nil {
		return err
	}
	g.Rules = rules
	g.UpdatedAt = now.UTC()
	return nil
}

func (g *Group) Deactivate(actor string, now time.Time) error {
	if err := g.requireAdmin(actor); err != nil {
		return err
	}
	g.IsActive = false
	g.UpdatedAt = now.UTC()
	return nil
}

// MaxDuration is the longest booking allowed by group preferences.
func (g *Group) MaxDuration() time.Duration {
	return time.Duration(normalizePreferences(g.Preferences).MaxBookingHours) * time.Hour
}

// CheckWindow applies the group's duration and advance limits.
func (g *Group) CheckWindow(start, end, now time.Time) error {
	prefs := normalizePreferences(g.Preferences)
	if start.Before(now) {
		return ErrStartInPast
	}
	if end.Sub(start) > time.Duration(prefs.MaxBookingHours)*time.Hour {
		return fmt.Errorf("%w of %d hours", ErrDurationLimit, prefs.MaxBookingHours)
	}
	advanceDays := start.Sub(now).Hours() / 24
	if advanceDays > float64(prefs.AdvanceLimitDays) {
		return fmt.Errorf("%w of %d days", ErrAdvanceLimit, prefs.AdvanceLimitDays)
	}
	return nil
}

func normalizePreferences(p Preferences) Preferences {
	if p.MaxBookingHours <= 0 {
		p.MaxBookingHours = DefaultMaxBookingHours
	}
	if p.AdvanceLimitDays <= 0 {
		p.AdvanceLimitDays = DefaultAdvanceLimitDays
	}
	switch p.CancellationPolicy {
	case "flexible", "moderate", "strict":
	default:
		p.CancellationPolicy = "moderate"
	}
	return p
}

func validateRules(r Rules) error {
	if r.MinimumAge != 0 && (r.MinimumAge < 16 || r.MinimumAge > 100) {
		return fmt.Errorf("%w: minimum age must be within 16..100", ErrInvalidSettings)
	}
	return nil
}
