// Package vehicles holds the owner-facing vehicle commands and queries.
package vehicles

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	"carrental/internal/app/uow"
	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/shared/daterange"
	"carrental/internal/domain/shared/money"
	domainvehicle "carrental/internal/domain/vehicle"
)

const (
	registerVehicleKey    = "vehicles.register"
	updateVehicleKey      = "vehicles.update"
	setVehicleBookableKey = "vehicles.bookable"
	deleteVehicleKey      = "vehicles.delete"
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

type BlackoutPayload struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}

type PolicyPayload struct {
	MinBookingHours    int               `json:"min_booking_hours" validate:"gte=0"`
	MaxBookingDays     int               `json:"max_booking_days" validate:"gte=0"`
	AdvanceBookingDays int               `json:"advance_booking_days" validate:"gte=0"`
	Blackouts          []BlackoutPayload `json:"blackouts" validate:"dive"`
}

func (p PolicyPayload) toDomain() domainvehicle.Policy {
	policy := domainvehicle.Policy{
		MinBookingHours:    p.MinBookingHours,
		MaxBookingDays:     p.MaxBookingDays,
		AdvanceBookingDays: p.AdvanceBookingDays,
	}
	for _, b := range p.Blackouts {
		policy.Blackouts = append(policy.Blackouts, daterange.Range{Start: b.Start.UTC(), End: b.End.UTC()})
	}
	return policy
}

type RegisterVehicleCommand struct {
	OwnerID         string         `json:"owner_id" validate:"required"`
	Make            string         `json:"make" validate:"required"`
	Model           string         `json:"model" validate:"required"`
	Year            int            `json:"year" validate:"omitempty,gte=1950,lte=2100"`
	LicenseNumber   string         `json:"license_number" validate:"required"`
	Location        string         `json:"location"`
	HourlyRateCents int64          `json:"price_per_hour_cents" validate:"gte=0"`
	Currency        string         `json:"currency"`
	PlatformPct     float64        `json:"platform_pct" validate:"gte=0,lte=100"`
	Policy          *PolicyPayload `json:"policy"`
}

func (c RegisterVehicleCommand) Key() string { return registerVehicleKey }

func (c RegisterVehicleCommand) ActorID() string { return c.OwnerID }

type RegisterVehicleHandler struct {
	Deps
}

func (h *RegisterVehicleHandler) Handle(ctx context.Context, cmd RegisterVehicleCommand) (*dto.VehicleView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	policy := domainvehicle.DefaultPolicy()
	if cmd.Policy != nil {
		policy = cmd.Policy.toDomain()
	}
	v, err := domainvehicle.New(domainvehicle.CreateParams{
		ID:            domainvehicle.ID(h.newID()),
		OwnerID:       cmd.OwnerID,
		Make:          cmd.Make,
		Model:         cmd.Model,
		Year:          cmd.Year,
		LicenseNumber: cmd.LicenseNumber,
		Location:      strings.TrimSpace(cmd.Location),
		HourlyRate:    money.Money{Amount: cmd.HourlyRateCents, Currency: strings.ToUpper(strings.TrimSpace(cmd.Currency))},
		PlatformPct:   cmd.PlatformPct,
		Policy:        policy,
		Now:           h.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := unit.Vehicles().Save(ctx, v); err != nil {
		return nil, err
	}
	h.log("vehicle registered", "vehicle_id", v.ID, "owner_id", v.OwnerID)
	view := dto.MapVehicle(v)
	return &view, nil
}

type UpdateVehicleCommand struct {
	OwnerID         string         `json:"owner_id" validate:"required"`
	VehicleID       string         `json:"vehicle_id" validate:"required"`
	HourlyRateCents *int64         `json:"price_per_hour_cents" validate:"omitempty,gt=0"`
	PlatformPct     *float64       `json:"platform_pct" validate:"omitempty,gte=0,lte=100"`
	Location        *string        `json:"location"`
	Policy          *PolicyPayload `json:"policy"`
}

func (c UpdateVehicleCommand) Key() string { return updateVehicleKey }

func (c UpdateVehicleCommand) ActorID() string { return c.OwnerID }

type UpdateVehicleHandler struct {
	Deps
}

func (h *UpdateVehicleHandler) Handle(ctx context.Context, cmd UpdateVehicleCommand) (*dto.VehicleView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	v, err := unit.Vehicles().ByID(ctx, domainvehicle.ID(cmd.VehicleID))
	if err != nil {
		return nil, err
	}
	update := domainvehicle.Update{PlatformPct: cmd.PlatformPct, Location: cmd.Location}
	if cmd.HourlyRateCents != nil {
		rate := money.Money{Amount: *cmd.HourlyRateCents, Currency: v.HourlyRate.Currency}
		update.HourlyRate = &rate
	}
	if cmd.Policy != nil {
		policy := cmd.Policy.toDomain()
		update.Policy = &policy
	}
	if err := v.Apply(cmd.OwnerID, update, h.now()); err != nil {
		return nil, err
	}
	if err := unit.Vehicles().Save(ctx, v); err != nil {
		return nil, err
	}
	h.log("vehicle updated", "vehicle_id", v.ID)
	view := dto.MapVehicle(v)
	return &view, nil
}

type SetBookableCommand struct {
	OwnerID   string `json:"owner_id" validate:"required"`
	VehicleID string `json:"vehicle_id" validate:"required"`
	Bookable  bool   `json:"is_bookable"`
}

func (c SetBookableCommand) Key() string { return setVehicleBookableKey }

func (c SetBookableCommand) ActorID() string { return c.OwnerID }

type SetBookableHandler struct {
	Deps
}

func (h *SetBookableHandler) Handle(ctx context.Context, cmd SetBookableCommand) (*dto.VehicleView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	v, err := unit.Vehicles().ByID(ctx, domainvehicle.ID(cmd.VehicleID))
	if err != nil {
		return nil, err
	}
	if err := v.SetBookable(cmd.OwnerID, cmd.Bookable, h.now()); err != nil {
		return nil, err
	}
	if err := unit.Vehicles().Save(ctx, v); err != nil {
		return nil, err
	}
	h.log("vehicle bookable toggled", "vehicle_id", v.ID, "bookable", cmd.Bookable)
	view := dto.MapVehicle(v)
	return &view, nil
}

type DeleteVehicleCommand struct {
	OwnerID   string `json:"owner_id" validate:"required"`
	VehicleID string `json:"vehicle_id" validate:"required"`
}

func (c DeleteVehicleCommand) Key() string { return deleteVehicleKey }

func (c DeleteVehicleCommand) ActorID() string { return c.OwnerID }

type DeleteVehicleHandler struct {
	Deps
}

func (h *DeleteVehicleHandler) Handle(ctx context.Context, cmd DeleteVehicleCommand) (*dto.VehicleView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	v, err := unit.Vehicles().ByID(ctx, domainvehicle.ID(cmd.VehicleID))
	if err != nil {
		return nil, err
	}
	now := h.now()
	active, err := hasActiveBooking(ctx, unit.Bookings(), cmd.VehicleID, now)
	if err != nil {
		return nil, err
	}
	if err := v.SoftDelete(cmd.OwnerID, active, now); err != nil {
		return nil, err
	}
	if err := unit.Vehicles().Save(ctx, v); err != nil {
		return nil, err
	}
	h.log("vehicle deleted", "vehicle_id", v.ID)
	view := dto.MapVehicle(v)
	return &view, nil
}

// activeStatuses are the statuses that still commit the vehicle, paid or not.
var activeStatuses = []domainbooking.Status{
	domainbooking.StatusPendingPayment,
	domainbooking.StatusPending,
	domainbooking.StatusConfirmed,
	domainbooking.StatusUpcoming,
	domainbooking.StatusOngoing,
}

func hasActiveBooking(ctx context.Context, bookings domainbooking.Repository, vehicleID string, now time.Time) (bool, error) {
	window := daterange.Range{Start: now, End: now.AddDate(10, 0, 0)}
	items, err := bookings.List(ctx, domainbooking.Filter{VehicleID: vehicleID, Statuses: activeStatuses, Window: &window})
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

var _ commands.Handler[RegisterVehicleCommand, *dto.VehicleView] = (*RegisterVehicleHandler)(nil)
var _ commands.Handler[UpdateVehicleCommand, *dto.VehicleView] = (*UpdateVehicleHandler)(nil)
var _ commands.Handler[SetBookableCommand, *dto.VehicleView] = (*SetBookableHandler)(nil)
var _ commands.Handler[DeleteVehicleCommand, *dto.VehicleView] = (*DeleteVehicleHandler)(nil)
