package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"carrental/internal/infra/config"
	"carrental/internal/infra/obs"
)

type Handlers struct {
	Booking        BookingHTTP
	Vehicle        VehicleHTTP
	Group          GroupHTTP
	Me             MeHTTP
	Webhook        *WebhookHandler
	Timezones      gin.HandlerFunc
	AuthMiddleware gin.HandlerFunc
	// WriteLimiter guards booking writes.
	WriteLimiter gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", headerIdempotencyKey},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.HeaderRequestID,
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Webhook != nil {
		api.POST("/webhooks/stripe", h.Webhook.Stripe)
	}
	if h.Timezones != nil {
		api.GET("/timezones", h.Timezones)
	}

	authed := api.Group("")
	if h.AuthMiddleware != nil {
		authed.Use(h.AuthMiddleware)
	}
	limited := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		if h.WriteLimiter == nil {
			return []gin.HandlerFunc{fn}
		}
		return []gin.HandlerFunc{h.WriteLimiter, fn}
	}
	if h.Booking != nil {
		authed.POST("/bookings", limited(h.Booking.CreatePrivate)...)
		authed.POST("/groups/:id/bookings", limited(h.Booking.CreateGroup)...)
		authed.POST("/bookings/:id/cancel", limited(h.Booking.Cancel)...)
		authed.POST("/bookings/:id/extend", limited(h.Booking.Extend)...)
		authed.POST("/bookings/:id/approve", h.Booking.Approve)
		authed.GET("/bookings/:id", h.Booking.Get)
		authed.GET("/me/bookings", h.Booking.ListMine)
		authed.GET("/vehicles/:id/bookings", h.Booking.ListForVehicle)
		authed.GET("/vehicles/:id/availability", h.Booking.Availability)
	}
	if h.Vehicle != nil {
		authed.POST("/vehicles", h.Vehicle.Register)
		authed.GET("/vehicles/:id", h.Vehicle.Get)
		authed.PATCH("/vehicles/:id", h.Vehicle.Update)
		authed.POST("/vehicles/:id/bookable", h.Vehicle.SetBookable)
		authed.DELETE("/vehicles/:id", h.Vehicle.Delete)
	}
	if h.Group != nil {
		authed.POST("/groups", h.Group.Create)
		authed.GET("/groups/:id", h.Group.Get)
		authed.POST("/groups/:id/members", h.Group.AddMember)
		authed.POST("/groups/:id/vehicles", h.Group.AddVehicle)
		authed.PATCH("/groups/:id/vehicles/:vehicleId", h.Group.SetPrivateBooking)
		authed.DELETE("/groups/:id/vehicles/:vehicleId", h.Group.RemoveVehicle)
		authed.PATCH("/groups/:id/preferences", h.Group.UpdatePreferences)
		authed.PATCH("/groups/:id/rules", h.Group.UpdateRules)
		authed.POST("/groups/:id/deactivate", h.Group.Deactivate)
	}
	if h.Me != nil {
		authed.GET("/me/profile", h.Me.Profile)
		authed.PUT("/me/profile", h.Me.UpdateProfile)
		authed.GET("/me/vehicles", h.Me.Vehicles)
		authed.GET("/me/groups", h.Me.Groups)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
