package dto

import (
	"time"

	domaingroup "carrental/internal/domain/group"
)

type GroupMember struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
}

type GroupVehicle struct {
	VehicleID           string    `json:"vehicle_id"`
	AllowPrivateBooking bool      `json:"allow_private_booking"`
	AddedBy             string    `json:"added_by"`
	AddedAt             time.Time `json:"added_at"`
}

type GroupRules struct {
	EmailVerified           bool `json:"email_verified"`
	PhoneVerified           bool `json:"phone_verified"`
	LicenseRequired         bool `json:"license_required"`
	MinimumAge              int  `json:"minimum_age"`
	BackgroundCheckRequired bool `json:"background_check_required"`
}

type GroupPreferences struct {
	MaxBookingHours     int    `json:"max_booking_hours"`
	AdvanceLimitDays    int    `json:"advance_limit_days"`
	AutoApproveBookings bool   `json:"auto_approve_bookings"`
	AllowMemberInvites  bool   `json:"allow_member_invites"`
	CancellationPolicy  string `json:"cancellation_policy"`
}

type GroupView struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	CreatorID         string           `json:"creator_id"`
	Members           []GroupMember    `json:"members"`
	Vehicles          []GroupVehicle   `json:"vehicles"`
	Rules             GroupRules       `json:"rules"`
	Preferences       GroupPreferences `json:"preferences"`
	HourlyRate        MoneyDTO         `json:"hourly_rate"`
	PlatformPercent   float64          `json:"platform_pct"`
	GroupOwnerPercent float64          `json:"group_owner_pct"`
	Privacy           string           `json:"privacy"`
	IsActive          bool             `json:"is_active"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func MapGroup(g *domaingroup.Group) GroupView {
	if g == nil {
		return GroupView{}
	}
	members := make([]GroupMember, 0, len(g.Members))
	for _, m := range g.Members {
		members = append(members, GroupMember{UserID: m.UserID, Role: string(m.Role), Status: string(m.Status), JoinedAt: m.JoinedAt})
	}
	vehicles := make([]GroupVehicle, 0, len(g.Vehicles))
	for _, v := range g.Vehicles {
		vehicles = append(vehicles, GroupVehicle{VehicleID: v.VehicleID, AllowPrivateBooking: v.AllowPrivateBooking, AddedBy: v.AddedBy, AddedAt: v.AddedAt})
	}
	return GroupView{
		ID:          string(g.ID),
		Name:        g.Name,
		Description: g.Description,
		CreatorID:   g.CreatorID,
		Members:     members,
		Vehicles:    vehicles,
		Rules: GroupRules{
			EmailVerified:           g.Rules.EmailVerified,
			PhoneVerified:           g.Rules.PhoneVerified,
			LicenseRequired:         g.Rules.LicenseRequired,
			MinimumAge:              g.Rules.MinimumAge,
			BackgroundCheckRequired: g.Rules.BackgroundCheckRequired,
		},
		Preferences: GroupPreferences{
			MaxBookingHours:     g.Preferences.MaxBookingHours,
			AdvanceLimitDays:    g.Preferences.AdvanceLimitDays,
			AutoApproveBookings: g.Preferences.AutoApproveBookings,
			AllowMemberInvites:  g.Preferences.AllowMemberInvites,
			CancellationPolicy:  g.Preferences.CancellationPolicy,
		},
		HourlyRate:        MapMoney(g.HourlyRate),
		PlatformPercent:   g.Commission.PlatformPercent,
		GroupOwnerPercent: g.Commission.GroupOwnerPercent,
		Privacy:           string(g.Privacy),
		IsActive:          g.IsActive,
		CreatedAt:         g.CreatedAt,
		UpdatedAt:         g.UpdatedAt,
	}
}
