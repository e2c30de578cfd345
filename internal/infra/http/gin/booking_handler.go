package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	bookingapp "carrental/internal/app/handlers/booking"
	"carrental/internal/app/queries"
)

const headerIdempotencyKey = "Idempotency-Key"

type BookingHTTP interface {
	CreatePrivate(c *gin.Context)
	CreateGroup(c *gin.Context)
	Cancel(c *gin.Context)
	Extend(c *gin.Context)
	Approve(c *gin.Context)
	Get(c *gin.Context)
	ListMine(c *gin.Context)
	ListForVehicle(c *gin.Context)
	Availability(c *gin.Context)
}

type BookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h BookingHandler) CreatePrivate(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd bookingapp.CreatePrivateBookingCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.RenterID = user.UserID
	cmd.IdempotencyKeyV = c.GetHeader(headerIdempotencyKey)
	result, err := commands.Dispatch[bookingapp.CreatePrivateBookingCommand, *dto.CreateBookingResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusCreated, "Booking created successfully", result)
}

func (h BookingHandler) CreateGroup(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd bookingapp.CreateGroupBookingCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.RenterID = user.UserID
	cmd.GroupID = c.Param("id")
	cmd.IdempotencyKeyV = c.GetHeader(headerIdempotencyKey)
	result, err := commands.Dispatch[bookingapp.CreateGroupBookingCommand, *dto.CreateBookingResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusCreated, "Group booking created successfully", result)
}

func (h BookingHandler) Cancel(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd bookingapp.CancelBookingCommand
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&cmd); err != nil {
			badRequest(c, err)
			return
		}
	}
	cmd.BookingID = c.Param("id")
	cmd.RenterID = user.UserID
	cmd.IdempotencyKeyV = c.GetHeader(headerIdempotencyKey)
	result, err := commands.Dispatch[bookingapp.CancelBookingCommand, *dto.CancelOutcome](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "Booking cancelled successfully", result)
}

func (h BookingHandler) Extend(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var cmd bookingapp.ExtendBookingCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}
	cmd.BookingID = c.Param("id")
	cmd.RenterID = user.UserID
	cmd.IdempotencyKeyV = c.GetHeader(headerIdempotencyKey)
	result, err := commands.Dispatch[bookingapp.ExtendBookingCommand, *dto.ExtendResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "Booking extended successfully", result)
}

func (h BookingHandler) Approve(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := bookingapp.ApproveBookingCommand{BookingID: c.Param("id"), AdminID: user.UserID}
	result, err := commands.Dispatch[bookingapp.ApproveBookingCommand, *dto.BookingView](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "Booking approved", result)
}

func (h BookingHandler) Get(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	q := bookingapp.GetBookingQuery{BookingID: c.Param("id"), ViewerID: user.UserID, IsAdmin: user.IsAdmin()}
	result, err := queries.Ask[bookingapp.GetBookingQuery, dto.BookingView](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "", result)
}

func (h BookingHandler) ListMine(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	q := bookingapp.ListMyBookingsQuery{RenterID: user.UserID, Status: c.Query("status")}
	result, err := queries.Ask[bookingapp.ListMyBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "", result)
}

func (h BookingHandler) ListForVehicle(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	q := bookingapp.ListVehicleBookingsQuery{VehicleID: c.Param("id"), OwnerID: user.UserID, Status: c.Query("status")}
	result, err := queries.Ask[bookingapp.ListVehicleBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "", result)
}

// Availability is public: GET /vehicles/:id/availability?start=...&end=...&timezone=...
func (h BookingHandler) Availability(c *gin.Context) {
	q := bookingapp.CheckAvailabilityQuery{
		VehicleID: c.Param("id"),
		Start:     c.Query("start"),
		End:       c.Query("end"),
		Timezone:  c.Query("timezone"),
	}
	result, err := queries.Ask[bookingapp.CheckAvailabilityQuery, bookingapp.AvailabilityResult](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "", result)
}

var _ BookingHTTP = BookingHandler{}
