package groups

import (
	"context"

	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	"carrental/internal/app/queries"
	"carrental/internal/app/uow"
	domaingroup "carrental/internal/domain/group"
)

const (
	getGroupKey     = "groups.get"
	listMyGroupsKey = "me.groups.list"
)

type GetGroupQuery struct {
	GroupID  string `validate:"required"`
	ViewerID string `validate:"required"`
	IsAdmin  bool
}

func (q GetGroupQuery) Key() string { return getGroupKey }

type GetGroupHandler struct {
	UoWFactory uow.UoWFactory
}

// Handle shows public groups to anyone and the rest to members and platform admins.
func (h *GetGroupHandler) Handle(ctx context.Context, q GetGroupQuery) (dto.GroupView, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.GroupView{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	g, err := unit.Groups().ByID(execCtx, domaingroup.ID(q.GroupID))
	if err != nil {
		return dto.GroupView{}, err
	}
	if g.Privacy != domaingroup.PrivacyPublic && !q.IsAdmin && !g.IsActiveMember(q.ViewerID) {
		return dto.GroupView{}, domaingroup.ErrNotMember
	}
	return dto.MapGroup(g), nil
}

type ListMyGroupsQuery struct {
	UserID string `validate:"required"`
}

func (q ListMyGroupsQuery) Key() string { return listMyGroupsKey }

type ListMyGroupsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListMyGroupsHandler) Handle(ctx context.Context, q ListMyGroupsQuery) ([]dto.GroupView, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	items, err := unit.Groups().ListByMember(execCtx, q.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.GroupView, 0, len(items))
	for _, g := range items {
		out = append(out, dto.MapGroup(g))
	}
	return out, nil
}

var _ queries.Handler[GetGroupQuery, dto.GroupView] = (*GetGroupHandler)(nil)
var _ queries.Handler[ListMyGroupsQuery, []dto.GroupView] = (*ListMyGroupsHandler)(nil)
