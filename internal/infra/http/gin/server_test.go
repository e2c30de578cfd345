package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrental/internal/app/commands"
	bookingapp "carrental/internal/app/handlers/booking"
	vehicleapp "carrental/internal/app/handlers/vehicles"
	"carrental/internal/app/middleware"
	"carrental/internal/app/payments"
	"carrental/internal/app/queries"
	"carrental/internal/app/services/auth"
	"carrental/internal/domain/shared/money"
	"carrental/internal/domain/timezone"
	domainuser "carrental/internal/domain/user"
	domainvehicle "carrental/internal/domain/vehicle"
	"carrental/internal/infra/config"
	"carrental/internal/infra/obs"
	"carrental/internal/infra/security"
	"carrental/internal/infra/storage/memory"
)

var clock = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	router   *gin.Engine
	jwt      security.JWTVerifier
	store    memory.Factory
	gateway  *memory.Gateway
	limiter  gin.HandlerFunc
	handlers Handlers
}

func newFixture(t *testing.T, rate string) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return clock }
	store := memory.NewFactory()
	gateway := memory.NewGateway()
	outbox := memory.NewOutbox()

	ctx := context.Background()
	for _, id := range []string{"owner", "renter", "stranger"} {
		u, err := domainuser.NewUser(domainuser.CreateParams{ID: domainuser.ID(id), Email: id + "@example.com", Name: id, CreatedAt: clock})
		require.NoError(t, err)
		require.NoError(t, store.UserRepo.Save(ctx, u))
	}
	v, err := domainvehicle.New(domainvehicle.CreateParams{
		ID:            "car-1",
		OwnerID:       "owner",
		Make:          "Suzuki",
		Model:         "Alto",
		Year:          2021,
		LicenseNumber: "LEB-1",
		HourlyRate:    money.Must(1000, "USD"),
		PlatformPct:   10,
		Policy:        domainvehicle.DefaultPolicy(),
		Now:           clock,
	})
	require.NoError(t, err)
	require.NoError(t, store.VehicleRepo.Save(ctx, v))

	deps := bookingapp.Deps{
		UoWFactory: store,
		Payments:   &payments.Coordinator{Gateway: gateway, Ledger: memory.NewLedger(), Logger: logger, Now: now},
		Timezones:  timezone.NewNormalizer("UTC"),
		Outbox:     outbox,
		Logger:     logger,
		Clock:      now,
	}
	qdeps := bookingapp.QueryDeps{UoWFactory: store, Timezones: deps.Timezones}

	cmdBus := commands.NewInMemoryBus()
	commands.RegisterHandler(cmdBus, bookingapp.CreatePrivateBookingCommand{}.Key(), &bookingapp.CreatePrivateBookingHandler{Deps: deps})
	commands.RegisterHandler(cmdBus, bookingapp.CancelBookingCommand{}.Key(), &bookingapp.CancelBookingHandler{Deps: deps})
	commands.RegisterHandler(cmdBus, bookingapp.SettlePaymentCommand{}.Key(), &bookingapp.SettlePaymentHandler{Deps: deps, Inbox: memory.NewInbox()})
	commands.RegisterHandler(cmdBus, vehicleapp.RegisterVehicleCommand{}.Key(), &vehicleapp.RegisterVehicleHandler{Deps: vehicleapp.Deps{Logger: logger, Clock: now}})
	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler(queryBus, bookingapp.GetBookingQuery{}.Key(), &bookingapp.GetBookingHandler{QueryDeps: qdeps})

	validator := middleware.NewStructValidator()
	commandsWithMW := middleware.ChainCommands(cmdBus,
		middleware.Validation(validator),
		middleware.Authorization(middleware.ActorAuthorizer{}),
		middleware.Idempotency(memory.NewIdempotencyStore(), nil),
		middleware.Transaction(store, middleware.SequentialTxOptions),
		middleware.OutboxFlush(outbox),
	)
	queriesWithMW := middleware.ChainQueries(queryBus,
		middleware.QueryValidation(validator),
		middleware.QueryAuthorization(middleware.ActorAuthorizer{}),
	)

	verifier := security.JWTVerifier{Secret: []byte("test-secret"), Issuer: "carrental", Now: now}
	authSvc := &auth.Service{Users: store.UserRepo, Verifier: verifier, Logger: logger, Now: now}
	f := &fixture{jwt: verifier, store: store, gateway: gateway}
	f.handlers = Handlers{
		Booking:        BookingHandler{Commands: commandsWithMW, Queries: queriesWithMW, Logger: logger},
		Vehicle:        VehicleHandler{Commands: commandsWithMW, Queries: queriesWithMW, Logger: logger},
		Webhook:        &WebhookHandler{Commands: commandsWithMW, Parser: memory.WebhookParser{}, Logger: logger},
		Timezones:      Timezones(now),
		AuthMiddleware: AuthMiddleware{Service: authSvc, Logger: logger}.Handle,
	}
	if rate != "" {
		limiter, err := NewRateLimiter(rate, nil, logger)
		require.NoError(t, err)
		f.handlers.WriteLimiter = limiter
	}
	f.router = NewRouter(config.Config{Env: "test"}, obs.Middleware{Logger: logger}, obs.HealthHandlers{}, f.handlers)
	return f
}

func (f *fixture) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	tok, err := f.jwt.Issue(userID, userID+"@example.com", userID, roles, time.Hour)
	require.NoError(t, err)
	return tok
}

type call struct {
	method, path, token, idemKey string
	body                         any
}

func (f *fixture) do(t *testing.T, c call) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.idemKey != "" {
		req.Header.Set(headerIdempotencyKey, c.idemKey)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func bookingBody(start, end string) map[string]any {
	return map[string]any{"vehicle_id": "car-1", "start_time": start, "end_time": end, "timezone": "UTC"}
}

func dataOf(t *testing.T, out map[string]any) map[string]any {
	t.Helper()
	data, ok := out["data"].(map[string]any)
	require.True(t, ok, "response has no data: %v", out)
	return data
}

func TestCreateBookingRequiresAuthentication(t *testing.T) {
	f := newFixture(t, "")
	rec, out := f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: bookingBody("2025-03-02T10:00", "2025-03-02T12:00")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, out["success"])

	rec, _ = f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: "garbage", body: bookingBody("2025-03-02T10:00", "2025-03-02T12:00")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookingFlow(t *testing.T) {
	f := newFixture(t, "")
	renter := f.token(t, "renter")

	rec, out := f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: renter, body: bookingBody("2025-03-02T10:00", "2025-03-02T12:00")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["success"])
	data := dataOf(t, out)
	assert.Equal(t, true, data["requires_payment"])
	assert.Equal(t, "complete_payment", data["next_step"])
	booking := data["booking"].(map[string]any)
	assert.Equal(t, "pending_payment", booking["status"])
	assert.Equal(t, "renter", booking["renter_id"])
	id := booking["id"].(string)

	t.Run("overlap conflicts", func(t *testing.T) {
		rec, out := f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: f.token(t, "stranger"), body: bookingBody("2025-03-02T11:00", "2025-03-02T13:00")})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "Conflict", out["error"].(map[string]any)["kind"])
	})
	t.Run("renter and owner can read it", func(t *testing.T) {
		rec, _ := f.do(t, call{method: http.MethodGet, path: "/api/v1/bookings/" + id, token: renter})
		assert.Equal(t, http.StatusOK, rec.Code)
		rec, _ = f.do(t, call{method: http.MethodGet, path: "/api/v1/bookings/" + id, token: f.token(t, "owner")})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	t.Run("strangers cannot", func(t *testing.T) {
		rec, _ := f.do(t, call{method: http.MethodGet, path: "/api/v1/bookings/" + id, token: f.token(t, "stranger")})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
	t.Run("only the renter cancels", func(t *testing.T) {
		rec, _ := f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/" + id + "/cancel", token: f.token(t, "stranger")})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec, out := f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/" + id + "/cancel", token: renter, body: map[string]any{"reason": "plans changed"}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, true, dataOf(t, out)["cancelled"])
	})
}

func TestIdempotencyKeyReplaysCreate(t *testing.T) {
	f := newFixture(t, "")
	renter := f.token(t, "renter")
	body := bookingBody("2025-03-03T09:00", "2025-03-03T11:00")

	_, first := f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: renter, idemKey: "req-1", body: body})
	rec, second := f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: renter, idemKey: "req-1", body: body})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	firstID := dataOf(t, first)["booking"].(map[string]any)["id"]
	assert.Equal(t, firstID, dataOf(t, second)["booking"].(map[string]any)["id"])
}

func TestValidationAndPolicyErrors(t *testing.T) {
	f := newFixture(t, "")
	renter := f.token(t, "renter")

	rec, out := f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: renter, body: map[string]any{"vehicle_id": "car-1"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ValidationError", out["error"].(map[string]any)["kind"])

	rec, _ = f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: renter, body: bookingBody("2025-03-02T10:00", "2025-03-02T10:30")})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: renter, body: map[string]any{"vehicle_id": "ghost", "start_time": "2025-03-02T10:00", "end_time": "2025-03-02T12:00"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookSettlesPayment(t *testing.T) {
	f := newFixture(t, "")
	_, out := f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: f.token(t, "renter"), body: bookingBody("2025-03-02T10:00", "2025-03-02T12:00")})
	data := dataOf(t, out)
	bookingID := data["booking"].(map[string]any)["id"].(string)
	intent := data["payment_intent"].(map[string]any)

	event := map[string]any{
		"id":         "evt_1",
		"kind":       "succeeded",
		"intent_id":  intent["id"],
		"booking_id": bookingID,
		"amount":     2000,
		"currency":   "USD",
	}
	rec, out := f.do(t, call{method: http.MethodPost, path: "/api/v1/webhooks/stripe", body: event})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "upcoming", dataOf(t, out)["status"])

	rec, out = f.do(t, call{method: http.MethodPost, path: "/api/v1/webhooks/stripe", body: event})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, dataOf(t, out)["duplicate"])

	rec, out = f.do(t, call{method: http.MethodPost, path: "/api/v1/webhooks/stripe", body: map[string]any{"type": "customer.created"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", out["message"])
}

func TestRateLimitOnBookingWrites(t *testing.T) {
	f := newFixture(t, "1-M")
	renter := f.token(t, "renter")

	rec, _ := f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: renter, body: bookingBody("2025-03-02T10:00", "2025-03-02T12:00")})
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec, out := f.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: renter, body: bookingBody("2025-03-04T10:00", "2025-03-04T12:00")})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RateLimited", out["error"].(map[string]any)["kind"])

	// Reads are not limited.
	rec, _ = f.do(t, call{method: http.MethodGet, path: "/api/v1/timezones"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterVehicleUsesCaller(t *testing.T) {
	f := newFixture(t, "")
	rec, out := f.do(t, call{method: http.MethodPost, path: "/api/v1/vehicles", token: f.token(t, "owner"), body: map[string]any{
		"owner_id":       "someone-else",
		"make":           "Honda",
		"model":          "City",
		"license_number": "LEC-9",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "owner", dataOf(t, out)["owner_id"])
}

func TestTimezones(t *testing.T) {
	f := newFixture(t, "")
	rec, out := f.do(t, call{method: http.MethodGet, path: "/api/v1/timezones"})
	require.Equal(t, http.StatusOK, rec.Code)
	zones := out["data"].([]any)
	require.NotEmpty(t, zones)
	found := false
	for _, z := range zones {
		zone := z.(map[string]any)
		if zone["name"] == "Asia/Karachi" {
			found = true
			assert.Equal(t, "+05:00", zone["offset"])
		}
	}
	assert.True(t, found)
}

func TestStatusMapping(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"unauthenticated": {auth.ErrUnauthenticated, http.StatusUnauthorized},
		"not found":       {domainvehicle.ErrNotFound, http.StatusNotFound},
		"hidden booking":  {bookingapp.ErrBookingHidden, http.StatusForbidden},
		"internal":        {io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}
