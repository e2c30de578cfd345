package ginserver

import (
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	groupapp "carrental/internal/app/handlers/groups"
	meapp "carrental/internal/app/handlers/me"
	vehicleapp "carrental/internal/app/handlers/vehicles"
	"carrental/internal/app/queries"
	"carrental/internal/domain/timezone"
)

type MeHTTP interface {
	Profile(c *gin.Context)
	UpdateProfile(c *gin.Context)
	Vehicles(c *gin.Context)
	Groups(c *gin.Context)
}

type MeHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h MeHandler) Profile(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	result, err := queries.Ask[meapp.GetProfileQuery, dto.UserProfile](c.Request.Context(), h.Queries, meapp.GetProfileQuery{UserID: user.UserID})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "", result)
}

func (h MeHandler) UpdateProfile(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd meapp.UpdateProfileCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.UserID = user.UserID
	result, err := commands.Dispatch[meapp.UpdateProfileCommand, *dto.UserProfile](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "Profile updated successfully", result)
}

func (h MeHandler) Vehicles(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	result, err := queries.Ask[vehicleapp.ListMyVehiclesQuery, []dto.VehicleView](c.Request.Context(), h.Queries, vehicleapp.ListMyVehiclesQuery{OwnerID: user.UserID})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "", result)
}

func (h MeHandler) Groups(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	result, err := queries.Ask[groupapp.ListMyGroupsQuery, []dto.GroupView](c.Request.Context(), h.Queries, groupapp.ListMyGroupsQuery{UserID: user.UserID})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "", result)
}

var _ MeHTTP = MeHandler{}

type zoneView struct {
	Name   string `json:"name"`
	Offset string `json:"offset"`
}

// Timezones lists the zones offered by clients with their current UTC offset.
func Timezones(now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		at := time.Now()
		if now != nil {
			at = now()
		}
		zones := make([]zoneView, 0, len(timezone.CommonZones()))
		for _, name := range timezone.CommonZones() {
			loc, err := time.LoadLocation(name)
			if err != nil {
				continue
			}
			zones = append(zones, zoneView{Name: name, Offset: at.In(loc).Format("-07:00")})
		}
		respond(c, http.StatusOK, "", zones)
	}
}
