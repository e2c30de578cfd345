package booking

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carrental/internal/app/payments"
	domaingroup "carrental/internal/domain/group"
	"carrental/internal/domain/shared/money"
	"carrental/internal/domain/timezone"
	domainuser "carrental/internal/domain/user"
	domainvehicle "carrental/internal/domain/vehicle"
	"carrental/internal/infra/storage/memory"
)

var clock = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type harness struct {
	deps     Deps
	bookings *memory.BookingRepository
	vehicles *memory.VehicleRepository
	groups   *memory.GroupRepository
	users    *memory.UserRepository
	jobs     *memory.JobStore
	gateway  *memory.Gateway
	ledger   *memory.Ledger
	invoices *memory.InvoiceArchive
	calendar *memory.Calendar
	outbox   *memory.Outbox
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		bookings: memory.NewBookingRepository(),
		vehicles: memory.NewVehicleRepository(),
		groups:   memory.NewGroupRepository(),
		users:    memory.NewUserRepository(),
		jobs:     memory.NewJobStore(),
		gateway:  memory.NewGateway(),
		ledger:   memory.NewLedger(),
		invoices: memory.NewInvoiceArchive(),
		calendar: memory.NewCalendar(),
		outbox:   memory.NewOutbox(),
		now:      clock,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clockFn := func() time.Time { return h.now }
	h.deps = Deps{
		UoWFactory: memory.Factory{BookingRepo: h.bookings, VehicleRepo: h.vehicles, GroupRepo: h.groups, UserRepo: h.users},
		Scheduler:  h.jobs,
		Payments: &payments.Coordinator{
			Gateway:  h.gateway,
			Ledger:   h.ledger,
			Invoices: h.invoices,
			Logger:   logger,
			Now:      clockFn,
		},
		Calendar:  h.calendar,
		Timezones: timezone.NewNormalizer("UTC"),
		Outbox:    h.outbox,
		Logger:    logger,
		Clock:     clockFn,
	}

	for _, id := range []string{"owner", "renter", "admin", "stranger"} {
		u, err := domainuser.NewUser(domainuser.CreateParams{ID: domainuser.ID(id), Email: id + "@example.com", Name: id, CreatedAt: clock})
		require.NoError(t, err)
		require.NoError(t, h.users.Save(context.Background(), u))
	}
	h.addVehicle(t, "car-1", "owner")
	return h
}

func (h *harness) addVehicle(t *testing.T, id, owner string) {
	t.Helper()
	v, err := domainvehicle.New(domainvehicle.CreateParams{
		ID:            domainvehicle.ID(id),
		OwnerID:       owner,
		Make:          "Toyota",
		Model:         "Corolla",
		Year:          2022,
		LicenseNumber: "LEA-" + id,
		Location:      "Lahore",
		HourlyRate:    money.Must(1000, "USD"),
		PlatformPct:   10,
		Policy:        domainvehicle.DefaultPolicy(),
		Now:           clock,
	})
	require.NoError(t, err)
	require.NoError(t, h.vehicles.Save(context.Background(), v))
}

// addGroup creates g1 with admin as creator, owner and renter as members and car-1 shared into it.
func (h *harness) addGroup(t *testing.T, allowPrivate, autoApprove bool) *domaingroup.Group {
	t.Helper()
	prefs := domaingroup.DefaultPreferences()
	prefs.AutoApproveBookings = autoApprove
	g, err := domaingroup.New(domaingroup.CreateParams{
		ID:          "g1",
		Name:        "Office fleet",
		CreatorID:   "admin",
		HourlyRate:  money.Must(2000, "USD"),
		Preferences: &prefs,
		Now:         clock,
	})
	require.NoError(t, err)
	ok := domaingroup.Eligibility{Eligible: true}
	require.NoError(t, g.AddMember("admin", "owner", domaingroup.RoleMember, ok, clock))
	require.NoError(t, g.AddMember("admin", "renter", domaingroup.RoleMember, ok, clock))
	require.NoError(t, g.AddVehicle("admin", "car-1", "owner", allowPrivate, clock))
	require.NoError(t, h.groups.Save(context.Background(), g))
	return g
}

func (h *harness) createPrivate(start, end string) (*CreatePrivateBookingHandler, CreatePrivateBookingCommand) {
	return &CreatePrivateBookingHandler{Deps: h.deps}, CreatePrivateBookingCommand{
		RenterID:  "renter",
		VehicleID: "car-1",
		Start:     start,
		End:       end,
		Timezone:  "UTC",
	}
}

func (h *harness) createGroup(kind, start, end string) (*CreateGroupBookingHandler, CreateGroupBookingCommand) {
	return &CreateGroupBookingHandler{Deps: h.deps}, CreateGroupBookingCommand{
		RenterID:  "renter",
		GroupID:   "g1",
		VehicleID: "car-1",
		Start:     start,
		End:       end,
		Timezone:  "UTC",
		Kind:      kind,
	}
}

func (h *harness) vehicle(t *testing.T, id string) *domainvehicle.Vehicle {
	t.Helper()
	v, err := h.vehicles.ByID(context.Background(), domainvehicle.ID(id))
	require.NoError(t, err)
	return v
}
