package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	groupapp "carrental/internal/app/handlers/groups"
	"carrental/internal/app/queries"
)

type GroupHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	AddMember(c *gin.Context)
	AddVehicle(c *gin.Context)
	SetPrivateBooking(c *gin.Context)
	RemoveVehicle(c *gin.Context)
	UpdatePreferences(c *gin.Context)
	UpdateRules(c *gin.Context)
	Deactivate(c *gin.Context)
}

type GroupHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h GroupHandler) Create(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd groupapp.CreateGroupCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.CreatorID = user.UserID
	h.dispatch(c, http.StatusCreated, "Group created successfully", cmd)
}

func (h GroupHandler) Get(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	q := groupapp.GetGroupQuery{GroupID: c.Param("id"), ViewerID: user.UserID, IsAdmin: user.IsAdmin()}
	result, err := queries.Ask[groupapp.GetGroupQuery, dto.GroupView](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "", result)
}

func (h GroupHandler) AddMember(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd groupapp.AddMemberCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.GroupID = c.Param("id")
	cmd.AdminID = user.UserID
	h.dispatch(c, http.StatusCreated, "Member added successfully", cmd)
}

func (h GroupHandler) AddVehicle(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd groupapp.AddGroupVehicleCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.GroupID = c.Param("id")
	cmd.MemberID = user.UserID
	h.dispatch(c, http.StatusCreated, "Vehicle added to group", cmd)
}

func (h GroupHandler) SetPrivateBooking(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd groupapp.SetPrivateBookingCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.GroupID = c.Param("id")
	cmd.VehicleID = c.Param("vehicleId")
	cmd.AdminID = user.UserID
	h.dispatch(c, http.StatusOK, "Vehicle settings updated", cmd)
}

func (h GroupHandler) RemoveVehicle(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := groupapp.RemoveGroupVehicleCommand{GroupID: c.Param("id"), VehicleID: c.Param("vehicleId"), AdminID: user.UserID}
	h.dispatch(c, http.StatusOK, "Vehicle removed from group", cmd)
}

func (h GroupHandler) UpdatePreferences(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd groupapp.UpdatePreferencesCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.GroupID = c.Param("id")
	cmd.AdminID = user.UserID
	h.dispatch(c, http.StatusOK, "Group preferences updated", cmd)
}

func (h GroupHandler) UpdateRules(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd groupapp.UpdateRulesCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.GroupID = c.Param("id")
	cmd.AdminID = user.UserID
	h.dispatch(c, http.StatusOK, "Group rules updated", cmd)
}

func (h GroupHandler) Deactivate(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := groupapp.DeactivateGroupCommand{GroupID: c.Param("id"), AdminID: user.UserID}
	h.dispatch(c, http.StatusOK, "Group deactivated", cmd)
}

// dispatch runs a group command; every group command answers with the group view.
func (h GroupHandler) dispatch(c *gin.Context, status int, message string, cmd commands.Command) {
	result, err := commands.Dispatch[commands.Command, *dto.GroupView](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, status, message, result)
}

var _ GroupHTTP = GroupHandler{}
