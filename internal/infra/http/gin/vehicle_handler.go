package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	vehicleapp "carrental/internal/app/handlers/vehicles"
	"carrental/internal/app/queries"
)

type VehicleHTTP interface {
	Register(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	SetBookable(c *gin.Context)
	Delete(c *gin.Context)
}

type VehicleHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h VehicleHandler) Register(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd vehicleapp.RegisterVehicleCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.OwnerID = user.UserID
	result, err := commands.Dispatch[vehicleapp.RegisterVehicleCommand, *dto.VehicleView](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusCreated, "Vehicle registered successfully", result)
}

func (h VehicleHandler) Get(c *gin.Context) {
	result, err := queries.Ask[vehicleapp.GetVehicleQuery, dto.VehicleView](c.Request.Context(), h.Queries, vehicleapp.GetVehicleQuery{VehicleID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "", result)
}

func (h VehicleHandler) Update(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd vehicleapp.UpdateVehicleCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.OwnerID = user.UserID
	cmd.VehicleID = c.Param("id")
	result, err := commands.Dispatch[vehicleapp.UpdateVehicleCommand, *dto.VehicleView](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "Vehicle updated successfully", result)
}

func (h VehicleHandler) SetBookable(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd vehicleapp.SetBookableCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.OwnerID = user.UserID
	cmd.VehicleID = c.Param("id")
	result, err := commands.Dispatch[vehicleapp.SetBookableCommand, *dto.VehicleView](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "Vehicle availability updated", result)
}

func (h VehicleHandler) Delete(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := vehicleapp.DeleteVehicleCommand{OwnerID: user.UserID, VehicleID: c.Param("id")}
	if _, err := commands.Dispatch[vehicleapp.DeleteVehicleCommand, *dto.VehicleView](c.Request.Context(), h.Commands, cmd); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "Vehicle deleted successfully", nil)
}

var _ VehicleHTTP = VehicleHandler{}
