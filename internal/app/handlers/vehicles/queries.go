package vehicles

import (
	"context"

	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	"carrental/internal/app/queries"
	"carrental/internal/app/uow"
	domainvehicle "carrental/internal/domain/vehicle"
)

const (
	getVehicleKey     = "vehicles.get"
	listMyVehiclesKey = "me.vehicles.list"
)

type GetVehicleQuery struct {
	VehicleID string `validate:"required"`
}

func (q GetVehicleQuery) Key() string { return getVehicleKey }

type GetVehicleHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetVehicleHandler) Handle(ctx context.Context, q GetVehicleQuery) (dto.VehicleView, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.VehicleView{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	v, err := unit.Vehicles().ByID(execCtx, domainvehicle.ID(q.VehicleID))
	if err != nil {
		return dto.VehicleView{}, err
	}
	if v.IsDeleted {
		return dto.VehicleView{}, domainvehicle.ErrNotFound
	}
	return dto.MapVehicle(v), nil
}

type ListMyVehiclesQuery struct {
	OwnerID string `validate:"required"`
}

func (q ListMyVehiclesQuery) Key() string { return listMyVehiclesKey }

type ListMyVehiclesHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListMyVehiclesHandler) Handle(ctx context.Context, q ListMyVehiclesQuery) ([]dto.VehicleView, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	items, err := unit.Vehicles().ListByOwner(execCtx, q.OwnerID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.VehicleView, 0, len(items))
	for _, v := range items {
		if v.IsDeleted {
			continue
		}
		out = append(out, dto.MapVehicle(v))
	}
	return out, nil
}

var _ queries.Handler[GetVehicleQuery, dto.VehicleView] = (*GetVehicleHandler)(nil)
var _ queries.Handler[ListMyVehiclesQuery, []dto.VehicleView] = (*ListMyVehiclesHandler)(nil)
