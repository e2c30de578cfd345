package vehicle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carrental/internal/domain/shared/daterange"
	"carrental/internal/domain/shared/errkind"
	"carrental/internal/domain/shared/money"
)

var (
	ErrNotFound         = fmt.Errorf("%w: vehicle not found", errkind.ErrNotFound)
	ErrNotAvailable     = fmt.Errorf("%w: vehicle is not available", errkind.ErrUnavailable)
	ErrNotBookable      = fmt.Errorf("%w: vehicle is not accepting bookings", errkind.ErrUnavailable)
	ErrNotOwner         = fmt.Errorf("%w: only the vehicle owner can do this", errkind.ErrForbidden)
	ErrBelowMinimum     = fmt.Errorf("%w: booking shorter than the vehicle minimum", errkind.ErrPolicyViolation)
	ErrAboveMaximum     = fmt.Errorf("%w: booking longer than the vehicle maximum", errkind.ErrPolicyViolation)
	ErrOutsideAdvance   = fmt.Errorf("%w: booking starts beyond the advance booking window", errkind.ErrPolicyViolation)
	ErrStartInPast      = fmt.Errorf("%w: booking cannot start in the past", errkind.ErrPolicyViolation)
	ErrBlackout         = fmt.Errorf("%w: booking overlaps a blackout period", errkind.ErrPolicyViolation)
	ErrInvalidPolicy    = fmt.Errorf("%w: invalid booking policy", errkind.ErrValidation)
	ErrMissingDetails   = fmt.Errorf("%w: make, model and license number are required", errkind.ErrValidation)
	ErrActiveBooking    = fmt.Errorf("%w: vehicle has an active booking", errkind.ErrInvalidState)
	ErrConcurrentUpdate = errors.New("vehicle: concurrent update detected")
)

type ID string

const (
	DefaultMinBookingHours    = 1
	DefaultMaxBookingDays     = 7
	DefaultAdvanceBookingDays = 30
)

// Policy holds the owner's booking constraints.
type Policy struct {
	MinBookingHours    int
	MaxBookingDays     int
	AdvanceBookingDays int
	Blackouts          []daterange.Range
}

func DefaultPolicy() Policy {
	return Policy{
		MinBookingHours:    DefaultMinBookingHours,
		MaxBookingDays:     DefaultMaxBookingDays,
		AdvanceBookingDays: DefaultAdvanceBookingDays,
	}
}

// Normalized fills zero values with defaults.
func (p Policy) Normalized() Policy {
	if p.MinBookingHours <= 0 {
		p.MinBookingHours = DefaultMinBookingHours
	}
	if p.MaxBookingDays <= 0 {
		p.MaxBookingDays = DefaultMaxBookingDays
	}
	if p.AdvanceBookingDays <= 0 {
		p.AdvanceBookingDays = DefaultAdvanceBookingDays
	}
	return p
}

func (p Policy) Validate() error {
	if p.MinBookingHours < 0 || p.MaxBookingDays < 0 || p.AdvanceBookingDays < 0 {
		return ErrInvalidPolicy
	}
	n := p.Normalized()
	if n.MinBookingHours > n.MaxBookingDays*24 {
		return ErrInvalidPolicy
	}
	for _, b := range p.Blackouts {
		if err := b.Validate(); err != nil {
			return ErrInvalidPolicy
		}
	}
	return nil
}

// MaxDuration is the longest booking the policy allows.
func (p Policy) MaxDuration() time.Duration {
	return time.Duration(p.Normalized().MaxBookingDays) * 24 * time.Hour
}

// CheckWindow validates a requested range against the policy as seen at now.
func (p Policy) CheckWindow(r daterange.Range, now time.Time) error {
	n := p.Normalized()
	if r.Start.Before(now) {
		return ErrStartInPast
	}
	if r.Hours() < float64(n.MinBookingHours) {
		return fmt.Errorf("%w: minimum is %d hours", ErrBelowMinimum, n.MinBookingHours)
	}
	if r.Duration() > n.MaxDuration() {
		return fmt.Errorf("%w: maximum is %d days", ErrAboveMaximum, n.MaxBookingDays)
	}
	if r.Start.After(now.Add(time.Duration(n.AdvanceBookingDays) * 24 * time.Hour)) {
		return fmt.Errorf("%w: at most %d days ahead", ErrOutsideAdvance, n.AdvanceBookingDays)
	}
	for _, b := range n.Blackouts {
		if b.Overlaps(r) {
			return ErrBlackout
		}
	}
	return nil
}

// GroupSetting is the per-group override for a vehicle shared into a group.
type GroupSetting struct {
	AllowPrivateBooking bool
	AddedAt             time.Time
}

type Vehicle struct {
	ID            ID
	OwnerID       string
	Make          string
	Model         string
	Year          int
	LicenseNumber string
	Location      string
	HourlyRate    money.Money
	PlatformPct   float64
	IsAvailable   bool
	IsBookable    bool
	IsDeleted     bool
	Policy        Policy
	GroupSettings map[string]GroupSetting
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int64
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Vehicle, error)
	Save(ctx context.Context, v *Vehicle) error
	// SetAvailability flips the lifecycle-owned availability flag without touching owner fields.
	SetAvailability(ctx context.Context, id ID, available bool) error
	ListByOwner(ctx context.Context, ownerID string) ([]*Vehicle, error)
}

type CreateParams struct {
	ID            ID
	OwnerID       string
	Make          string
	Model         string
	Year          int
	LicenseNumber string
	Location      string
	HourlyRate    money.Money
	PlatformPct   float64
	Policy        Policy
	Now           time.Time
}

func New(params CreateParams) (*Vehicle, error) {
	if strings.TrimSpace(string(params.ID)) == "" || strings.TrimSpace(params.OwnerID) == "" {
		return nil, fmt.Errorf("%w: vehicle id and owner are required", errkind.ErrValidation)
	}
	if strings.TrimSpace(params.Make) == "" || strings.TrimSpace(params.Model) == "" || strings.TrimSpace(params.LicenseNumber) == "" {
		return nil, ErrMissingDetails
	}
	if err := params.Policy.Validate(); err != nil {
		return nil, err
	}
	rate := params.HourlyRate
	if rate.Currency == "" {
		rate.Currency = money.DefaultCurrency
	}
	if rate.Amount <= 0 {
		rate.Amount = 1000
	}
	pct := params.PlatformPct
	if pct <= 0 {
		pct = 10
	}
	now := params.Now.UTC()
	return &Vehicle{
		ID:            params.ID,
		OwnerID:       params.OwnerID,
		Make:          strings.TrimSpace(params.Make),
		Model:         strings.TrimSpace(params.Model),
		Year:          params.Year,
		LicenseNumber: strings.TrimSpace(params.LicenseNumber),
		Location:      params.Location,
		HourlyRate:    rate,
		PlatformPct:   pct,
		IsAvailable:   true,
		IsBookable:    true,
		Policy:        params.Policy.Normalized(),
		GroupSettings: map[string]GroupSetting{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CheckBookable reports why a new booking cannot be accepted, if at all.
func (v *Vehicle) CheckBookable() error {
	if v.IsDeleted {
		return ErrNotFound
	}
	if !v.IsAvailable {
		return ErrNotAvailable
	}
	if !v.IsBookable {
		return ErrNotBookable
	}
	return nil
}

func (v *Vehicle) IsOwnedBy(userID string) bool {
	return v.OwnerID == userID
}

// Title is the human label used in notifications and payment metadata.
func (v *Vehicle) Title() string {
	if v.Year > 0 {
		return fmt.Sprintf("%d %s %s", v.Year, v.Make, v.Model)
	}
	return v.Make + " " + v.Model
}

type Update struct {
	HourlyRate  *money.Money
	PlatformPct *float64
	Location    *string
	Policy      *Policy
}

// Apply mutates owner-controlled fields after validating the update as a whole.
func (v *Vehicle) Apply(actor string, u Update, now time.Time) error {
	if !v.IsOwnedBy(actor) {
		return ErrNotOwner
	}
	if v.IsDeleted {
		return ErrNotFound
	}
	if u.Policy != nil {
		if err := u.Policy.Validate(); err != nil {
			return err
		}
	}
	if u.HourlyRate != nil && u.HourlyRate.Amount <= 0 {
		return fmt.Errorf("%w: hourly rate must be positive", errkind.ErrValidation)
	}
	if u.PlatformPct != nil && (*u.PlatformPct < 0 || *u.PlatformPct > 100) {
		return fmt.Errorf("%w: platform percentage must be within 0..100", errkind.ErrValidation)
	}
	if u.HourlyRate != nil {
		v.HourlyRate = *u.HourlyRate
	}
	if u.PlatformPct != nil {
		v.PlatformPct = *u.PlatformPct
	}
	if u.Location != nil {
		v.Location = *u.Location
	}
	if u.Policy != nil {
		v.Policy = u.Policy.Normalized()
	}
	v.UpdatedAt = now.UTC()
	return nil
}

func (v *Vehicle) SetBookable(actor string, bookable bool, now time.Time) error {
	if !v.IsOwnedBy(actor) {
		return ErrNotOwner
	}
	if v.IsDeleted {
		return ErrNotFound
	}
	v.IsBookable = bookable
	v.UpdatedAt = now.UTC()
	return nil
}

// SoftDelete hides the vehicle. hasActive reports whether a booking still holds it.
func (v *Vehicle) SoftDelete(actor string, hasActive bool, now time.Time) error {
	if !v.IsOwnedBy(actor) {
		return ErrNotOwner
	}
	if v.IsDeleted {
		return ErrNotFound
	}
	if hasActive || !v.IsAvailable {
		return ErrActiveBooking
	}
	v.IsDeleted = true
	v.IsBookable = false
	v.UpdatedAt = now.UTC()
	return nil
}

func (v *Vehicle) SetGroupSetting(groupID string, allowPrivate bool, now time.Time) {
	if v.GroupSettings == nil {
		v.GroupSettings = map[string]GroupSetting{}
	}
	setting, ok := v.GroupSettings[groupID]
	if !ok {
		setting.AddedAt = now.UTC()
	}
	setting.AllowPrivateBooking = allowPrivate
	v.GroupSettings[groupID] = setting
	v.UpdatedAt = now.UTC()
}

func (v *Vehicle) RemoveGroupSetting(groupID string, now time.Time) {
	delete(v.GroupSettings, groupID)
	v.UpdatedAt = now.UTC()
}
