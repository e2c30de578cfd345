package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	"carrental/internal/app/queries"
	"carrental/internal/app/uow"
	"carrental/internal/domain/availability"
	domainbooking "carrental/internal/domain/booking"
	domaingroup "carrental/internal/domain/group"
	"carrental/internal/domain/shared/errkind"
	"carrental/internal/domain/timezone"
	domainvehicle "carrental/internal/domain/vehicle"
)

const (
	getBookingKey          = "booking.get"
	listMyBookingsKey      = "me.bookings.list"
	listVehicleBookingsKey = "vehicle.bookings.list"
	checkAvailabilityKey   = "vehicle.availability.check"
)

var ErrBookingHidden = fmt.Errorf("%w: not allowed to view this booking", errkind.ErrForbidden)

type QueryDeps struct {
	UoWFactory uow.UoWFactory
	Timezones  *timezone.Normalizer
}

func (d QueryDeps) tz() *timezone.Normalizer {
	if d.Timezones != nil {
		return d.Timezones
	}
	return timezone.NewNormalizer("")
}

type GetBookingQuery struct {
	BookingID string `validate:"required"`
	ViewerID  string `validate:"required"`
	IsAdmin   bool
}

func (q GetBookingQuery) Key() string { return getBookingKey }

type GetBookingHandler struct {
	QueryDeps
}

// Handle returns the booking to its renter, the vehicle owner, an admin of its group or a platform admin.
func (h *GetBookingHandler) Handle(ctx context.Context, q GetBookingQuery) (dto.BookingView, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingView{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	b, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(q.BookingID))
	if err != nil {
		return dto.BookingView{}, err
	}
	if !q.IsAdmin && !b.IsOwnedBy(q.ViewerID) && !h.canSee(execCtx, unit, b, q.ViewerID) {
		return dto.BookingView{}, ErrBookingHidden
	}
	return dto.MapBooking(b, h.tz()), nil
}

func (h *GetBookingHandler) canSee(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, viewer string) bool {
	if v, err := unit.Vehicles().ByID(ctx, domainvehicle.ID(b.VehicleID)); err == nil && v.IsOwnedBy(viewer) {
		return true
	}
	if b.GroupID == "" {
		return false
	}
	g, err := unit.Groups().ByID(ctx, domaingroup.ID(b.GroupID))
	return err == nil && g.IsActiveAdmin(viewer)
}

type ListMyBookingsQuery struct {
	RenterID string `validate:"required"`
	Status   string
}

func (q ListMyBookingsQuery) Key() string { return listMyBookingsKey }

type ListMyBookingsHandler struct {
	QueryDeps
}

func (h *ListMyBookingsHandler) Handle(ctx context.Context, q ListMyBookingsQuery) (dto.BookingCollection, error) {
	statuses, err := parseStatuses(q.Status)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	items, err := unit.Bookings().List(execCtx, domainbooking.Filter{RenterID: q.RenterID, Statuses: statuses})
	if err != nil {
		return dto.BookingCollection{}, err
	}
	sortNewestFirst(items)
	return dto.MapBookings(items, h.tz()), nil
}

type ListVehicleBookingsQuery struct {
	VehicleID string `validate:"required"`
	OwnerID   string `validate:"required"`
	Status    string
}

func (q ListVehicleBookingsQuery) Key() string { return listVehicleBookingsKey }

type ListVehicleBookingsHandler struct {
	QueryDeps
}

func (h *ListVehicleBookingsHandler) Handle(ctx context.Context, q ListVehicleBookingsQuery) (dto.BookingCollection, error) {
	statuses, err := parseStatuses(q.Status)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	v, err := unit.Vehicles().ByID(execCtx, domainvehicle.ID(q.VehicleID))
	if err != nil {
		return dto.BookingCollection{}, err
	}
	if !v.IsOwnedBy(q.OwnerID) {
		return dto.BookingCollection{}, domainvehicle.ErrNotOwner
	}
	items, err := unit.Bookings().List(execCtx, domainbooking.Filter{VehicleID: q.VehicleID, Statuses: statuses})
	if err != nil {
		return dto.BookingCollection{}, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Period.Start.Before(items[j].Period.Start) })
	return dto.MapBookings(items, h.tz()), nil
}

// CheckAvailabilityQuery asks whether a vehicle is free for a local time window.
type CheckAvailabilityQuery struct {
	VehicleID string `validate:"required"`
	Start     string `validate:"required"`
	End       string `validate:"required"`
	Timezone  string
}

func (q CheckAvailabilityQuery) Key() string { return checkAvailabilityKey }

type AvailabilityResult struct {
	VehicleID string `json:"vehicle_id"`
	Available bool   `json:"available"`
	Conflicts int    `json:"conflicts"`
}

type CheckAvailabilityHandler struct {
	QueryDeps
}

func (h *CheckAvailabilityHandler) Handle(ctx context.Context, q CheckAvailabilityQuery) (AvailabilityResult, error) {
	resolver := Deps{Timezones: h.tz()}
	period, _, err := resolver.resolvePeriod(q.Start, q.End, q.Timezone)
	if err != nil {
		return AvailabilityResult{}, err
	}
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return AvailabilityResult{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	v, err := unit.Vehicles().ByID(execCtx, domainvehicle.ID(q.VehicleID))
	if err != nil {
		return AvailabilityResult{}, err
	}
	conflicts, err := availability.NewIndex(unit.Bookings()).Conflicts(execCtx, q.VehicleID, period, "")
	if err != nil {
		return AvailabilityResult{}, err
	}
	return AvailabilityResult{
		VehicleID: q.VehicleID,
		Available: len(conflicts) == 0 && v.CheckBookable() == nil,
		Conflicts: len(conflicts),
	}, nil
}

func parseStatuses(raw string) ([]domainbooking.Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "all") {
		return nil, nil
	}
	var out []domainbooking.Status
	for _, part := range strings.Split(raw, ",") {
		s := domainbooking.Status(strings.ToLower(strings.TrimSpace(part)))
		if !s.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", errkind.ErrValidation, part)
		}
		out = append(out, s)
	}
	return out, nil
}

func sortNewestFirst(items []*domainbooking.Booking) {
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
}

var _ queries.Handler[GetBookingQuery, dto.BookingView] = (*GetBookingHandler)(nil)
var _ queries.Handler[ListMyBookingsQuery, dto.BookingCollection] = (*ListMyBookingsHandler)(nil)
var _ queries.Handler[ListVehicleBookingsQuery, dto.BookingCollection] = (*ListVehicleBookingsHandler)(nil)
var _ queries.Handler[CheckAvailabilityQuery, AvailabilityResult] = (*CheckAvailabilityHandler)(nil)
