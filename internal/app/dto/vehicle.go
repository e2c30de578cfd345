package dto

import (
	"time"

	domainvehicle "carrental/internal/domain/vehicle"
)

type Blackout struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type VehiclePolicy struct {
	MinBookingHours    int        `json:"min_booking_hours"`
	MaxBookingDays     int        `json:"max_booking_days"`
	AdvanceBookingDays int        `json:"advance_booking_days"`
	Blackouts          []Blackout `json:"blackouts"`
}

type VehicleView struct {
	ID            string                    `json:"id"`
	OwnerID       string                    `json:"owner_id"`
	Make          string                    `json:"make"`
	Model         string                    `json:"model"`
	Year          int                       `json:"year"`
	LicenseNumber string                    `json:"license_number"`
	Location      string                    `json:"location,omitempty"`
	HourlyRate    MoneyDTO                  `json:"hourly_rate"`
	PlatformPct   float64                   `json:"platform_pct"`
	IsAvailable   bool                      `json:"is_available"`
	IsBookable    bool                      `json:"is_bookable"`
	Policy        VehiclePolicy             `json:"policy"`
	Groups        map[string]VehicleInGroup `json:"groups"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

type VehicleInGroup struct {
	AllowPrivateBooking bool      `json:"allow_private_booking"`
	AddedAt             time.Time `json:"added_at"`
}

func MapVehicle(v *domainvehicle.Vehicle) VehicleView {
	if v == nil {
		return VehicleView{}
	}
	blackouts := make([]Blackout, 0, len(v.Policy.Blackouts))
	for _, b := range v.Policy.Blackouts {
		blackouts = append(blackouts, Blackout{Start: b.Start, End: b.End})
	}
	groups := make(map[string]VehicleInGroup, len(v.GroupSettings))
	for id, s := range v.GroupSettings {
		groups[id] = VehicleInGroup{AllowPrivateBooking: s.AllowPrivateBooking, AddedAt: s.AddedAt}
	}
	return VehicleView{
		ID:            string(v.ID),
		OwnerID:       v.OwnerID,
		Make:          v.Make,
		Model:         v.Model,
		Year:          v.Year,
		LicenseNumber: v.LicenseNumber,
		Location:      v.Location,
		HourlyRate:    MapMoney(v.HourlyRate),
		PlatformPct:   v.PlatformPct,
		IsAvailable:   v.IsAvailable,
		IsBookable:    v.IsBookable,
		Policy: VehiclePolicy{
			MinBookingHours:    v.Policy.MinBookingHours,
			MaxBookingDays:     v.Policy.MaxBookingDays,
			AdvanceBookingDays: v.Policy.AdvanceBookingDays,
			Blackouts:          blackouts,
		},
		Groups:    groups,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}
