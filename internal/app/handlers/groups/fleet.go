package groups

import (
	"context"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	"carrental/internal/app/uow"
	domaingroup "carrental/internal/domain/group"
	domainuser "carrental/internal/domain/user"
	domainvehicle "carrental/internal/domain/vehicle"
)

const (
	addMemberKey          = "groups.members.add"
	addGroupVehicleKey    = "groups.vehicles.add"
	setPrivateBookingKey  = "groups.vehicles.private_booking"
	removeGroupVehicleKey = "groups.vehicles.remove"
)

type AddMemberCommand struct {
	GroupID string `json:"group_id" validate:"required"`
	AdminID string `json:"admin_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
	Role    string `json:"role" validate:"omitempty,oneof=admin member"`
}

func (c AddMemberCommand) Key() string { return addMemberKey }

func (c AddMemberCommand) ActorID() string { return c.AdminID }

type AddMemberHandler struct {
	Deps
}

// Handle admits the user after checking them against the group's rules. The
// error lists every rule the user fails.
func (h *AddMemberHandler) Handle(ctx context.Context, cmd AddMemberCommand) (*dto.GroupView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	g, err := unit.Groups().ByID(ctx, domaingroup.ID(cmd.GroupID))
	if err != nil {
		return nil, err
	}
	u, err := unit.Users().ByID(ctx, domainuser.ID(cmd.UserID))
	if err != nil {
		return nil, err
	}
	now := h.now()
	eligibility := domaingroup.CheckEligibility(u, g.Rules, now)
	if err := g.AddMember(cmd.AdminID, cmd.UserID, domaingroup.MemberRole(cmd.Role), eligibility, now); err != nil {
		return nil, err
	}
	if err := unit.Groups().Save(ctx, g); err != nil {
		return nil, err
	}
	h.log("group member added", "group_id", g.ID, "user_id", cmd.UserID)
	view := dto.MapGroup(g)
	return &view, nil
}

// AddGroupVehicleCommand shares a vehicle into a group. MemberID is the acting
// user: the vehicle's owner or a group admin.
type AddGroupVehicleCommand struct {
	GroupID             string `json:"group_id" validate:"required"`
	MemberID            string `json:"member_id" validate:"required"`
	VehicleID           string `json:"vehicle_id" validate:"required"`
	AllowPrivateBooking bool   `json:"allow_private_booking"`
}

func (c AddGroupVehicleCommand) Key() string { return addGroupVehicleKey }

func (c AddGroupVehicleCommand) ActorID() string { return c.MemberID }

type AddGroupVehicleHandler struct {
	Deps
}

func (h *AddGroupVehicleHandler) Handle(ctx context.Context, cmd AddGroupVehicleCommand) (*dto.GroupView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	g, err := unit.Groups().ByID(ctx, domaingroup.ID(cmd.GroupID))
	if err != nil {
		return nil, err
	}
	v, err := unit.Vehicles().ByID(ctx, domainvehicle.ID(cmd.VehicleID))
	if err != nil {
		return nil, err
	}
	if v.IsDeleted {
		return nil, domainvehicle.ErrNotFound
	}
	now := h.now()
	if err := g.AddVehicle(cmd.MemberID, cmd.VehicleID, v.OwnerID, cmd.AllowPrivateBooking, now); err != nil {
		return nil, err
	}
	v.SetGroupSetting(string(g.ID), cmd.AllowPrivateBooking, now)
	if err := saveBoth(ctx, unit, g, v); err != nil {
		return nil, err
	}
	h.log("vehicle added to group", "group_id", g.ID, "vehicle_id", v.ID, "allow_private", cmd.AllowPrivateBooking)
	view := dto.MapGroup(g)
	return &view, nil
}

type SetPrivateBookingCommand struct {
	GroupID   string `json:"group_id" validate:"required"`
	AdminID   string `json:"admin_id" validate:"required"`
	VehicleID string `json:"vehicle_id" validate:"required"`
	Allow     bool   `json:"allow_private_booking"`
}

func (c SetPrivateBookingCommand) Key() string { return setPrivateBookingKey }

func (c SetPrivateBookingCommand) ActorID() string { return c.AdminID }

type SetPrivateBookingHandler struct {
	Deps
}

func (h *SetPrivateBookingHandler) Handle(ctx context.Context, cmd SetPrivateBookingCommand) (*dto.GroupView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	g, err := unit.Groups().ByID(ctx, domaingroup.ID(cmd.GroupID))
	if err != nil {
		return nil, err
	}
	now := h.now()
	if err := g.SetPrivateBooking(cmd.AdminID, cmd.VehicleID, cmd.Allow, now); err != nil {
		return nil, err
	}
	v, err := unit.Vehicles().ByID(ctx, domainvehicle.ID(cmd.VehicleID))
	if err != nil {
		return nil, err
	}
	v.SetGroupSetting(string(g.ID), cmd.Allow, now)
	if err := saveBoth(ctx, unit, g, v); err != nil {
		return nil, err
	}
	view := dto.MapGroup(g)
	return &view, nil
}

type RemoveGroupVehicleCommand struct {
	GroupID   string `json:"group_id" validate:"required"`
	AdminID   string `json:"admin_id" validate:"required"`
	VehicleID string `json:"vehicle_id" validate:"required"`
}

func (c RemoveGroupVehicleCommand) Key() string { return removeGroupVehicleKey }

func (c RemoveGroupVehicleCommand) ActorID() string { return c.AdminID }

type RemoveGroupVehicleHandler struct {
	Deps
}

// Handle takes the vehicle out of the group. Bookings already placed through
// the group are left as they are.
func (h *RemoveGroupVehicleHandler) Handle(ctx context.Context, cmd RemoveGroupVehicleCommand) (*dto.GroupView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	g, err := unit.Groups().ByID(ctx, domaingroup.ID(cmd.GroupID))
	if err != nil {
		return nil, err
	}
	now := h.now()
	if err := g.RemoveVehicle(cmd.AdminID, cmd.VehicleID, now); err != nil {
		return nil, err
	}
	v, err := unit.Vehicles().ByID(ctx, domainvehicle.ID(cmd.VehicleID))
	if err != nil {
		return nil, err
	}
	v.RemoveGroupSetting(string(g.ID), now)
	if err := saveBoth(ctx, unit, g, v); err != nil {
		return nil, err
	}
	h.log("vehicle removed from group", "group_id", g.ID, "vehicle_id", v.ID)
	view := dto.MapGroup(g)
	return &view, nil
}

func saveBoth(ctx context.Context, unit uow.UnitOfWork, g *domaingroup.Group, v *domainvehicle.Vehicle) error {
	if err := unit.Groups().Save(ctx, g); err != nil {
		return err
	}
	return unit.Vehicles().Save(ctx, v)
}

var _ commands.Handler[AddMemberCommand, *dto.GroupView] = (*AddMemberHandler)(nil)
var _ commands.Handler[AddGroupVehicleCommand, *dto.GroupView] = (*AddGroupVehicleHandler)(nil)
var _ commands.Handler[SetPrivateBookingCommand, *dto.GroupView] = (*SetPrivateBookingHandler)(nil)
var _ commands.Handler[RemoveGroupVehicleCommand, *dto.GroupView] = (*RemoveGroupVehicleHandler)(nil)
