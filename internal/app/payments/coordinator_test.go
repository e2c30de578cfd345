package payments_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrental/internal/app/payments"
	"carrental/internal/app/policies"
	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/pricing"
	"carrental/internal/domain/shared/daterange"
	"carrental/internal/domain/shared/errkind"
	"carrental/internal/domain/shared/money"
	domainvehicle "carrental/internal/domain/vehicle"
	"carrental/internal/infra/storage/memory"
)

var now = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	gateway  *memory.Gateway
	ledger   *memory.Ledger
	invoices *memory.InvoiceArchive
	coord    *payments.Coordinator
}

func newFixture() fixture {
	f := fixture{
		gateway:  memory.NewGateway(),
		ledger:   memory.NewLedger(),
		invoices: memory.NewInvoiceArchive(),
	}
	f.coord = &payments.Coordinator{
		Gateway:  f.gateway,
		Ledger:   f.ledger,
		Invoices: f.invoices,
		Now:      func() time.Time { return now },
	}
	return f
}

func pendingBooking(t *testing.T) *domainbooking.Booking {
	t.Helper()
	split, err := pricing.Quote(domainbooking.KindPrivate, 3, money.Must(1500, "USD"), pricing.Commission{PlatformPercent: 10})
	require.NoError(t, err)
	start := now.Add(24 * time.Hour)
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:        "bk-1",
		RenterID:  "renter-1",
		VehicleID: "car-1",
		Period:    daterange.Range{Start: start, End: start.Add(3 * time.Hour)},
		Kind:      domainbooking.KindPrivate,
		Price:     split,
		CreatedAt: now,
	})
	require.NoError(t, err)
	return b
}

func ledgerKinds(t *testing.T, l *memory.Ledger, bookingID string) []policies.LedgerKind {
	t.Helper()
	entries, err := l.ListByBooking(context.Background(), bookingID)
	require.NoError(t, err)
	var kinds []policies.LedgerKind
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestCreateIntentCarriesBookingMetadata(t *testing.T) {
	f := newFixture()
	b := pendingBooking(t)
	car := &domainvehicle.Vehicle{Make: "Toyota", Model: "Corolla", Year: 2022}

	intent, err := f.coord.CreateIntent(context.Background(), b, car)
	require.NoError(t, err)
	assert.Equal(t, b.Price.Total, intent.Amount)
	assert.Equal(t, "bk-1", intent.Metadata["bookingId"])
	assert.Equal(t, "renter-1", intent.Metadata["userId"])
	assert.Equal(t, "Corolla", intent.Metadata["carModel"])
	assert.Equal(t, "2022", intent.Metadata["carYear"])

	again, err := f.coord.CreateIntent(context.Background(), b, car)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, again.ID, "retries reuse the intent")
	assert.Equal(t, []policies.LedgerKind{policies.LedgerIntentCreated, policies.LedgerIntentCreated}, ledgerKinds(t, f.ledger, "bk-1"))
}

func TestCreateIntentFailures(t *testing.T) {
	f := newFixture()
	f.gateway.FailCreate = errors.New("card network down")
	_, err := f.coord.CreateIntent(context.Background(), pendingBooking(t), nil)
	require.ErrorIs(t, err, errkind.ErrPayment)
	assert.Contains(t, err.Error(), "card network down")

	_, err = (&payments.Coordinator{}).CreateIntent(context.Background(), pendingBooking(t), nil)
	assert.ErrorIs(t, err, payments.ErrGatewayMissing)
}

func TestSettleSucceededArchivesInvoice(t *testing.T) {
	f := newFixture()
	b := pendingBooking(t)
	intent, err := f.coord.CreateIntent(context.Background(), b, nil)
	require.NoError(t, err)
	require.NoError(t, b.AttachPaymentIntent(intent.ID, now))

	out, err := f.coord.Settle(context.Background(), b, payments.Settlement{
		Kind: payments.SettlementSucceeded, IntentID: intent.ID, Amount: b.Price.Total,
	})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.False(t, out.Refund.Attempted)
	assert.Equal(t, domainbooking.StatusUpcoming, b.Status)
	assert.Equal(t, domainbooking.PaymentPaid, b.PaymentStatus)

	body, ok := f.invoices.Get("bk-1")
	require.True(t, ok)
	assert.Contains(t, string(body), "INVOICE bk-1")
	assert.Contains(t, string(body), intent.ID)

	out, err = f.coord.Settle(context.Background(), b, payments.Settlement{
		Kind: payments.SettlementSucceeded, IntentID: intent.ID, Amount: b.Price.Total,
	})
	require.NoError(t, err)
	assert.False(t, out.Changed, "duplicate delivery is a no-op")
	assert.Equal(t, []policies.LedgerKind{policies.LedgerIntentCreated, policies.LedgerPaymentSettled}, ledgerKinds(t, f.ledger, "bk-1"))
}

func TestSettleRejectsWrongAmount(t *testing.T) {
	f := newFixture()
	b := pendingBooking(t)
	require.NoError(t, b.AttachPaymentIntent("pi_x", now))

	_, err := f.coord.Settle(context.Background(), b, payments.Settlement{
		Kind: payments.SettlementSucceeded, IntentID: "pi_x", Amount: money.Must(1, "USD"),
	})
	assert.ErrorIs(t, err, domainbooking.ErrAmountMismatch)
	assert.Equal(t, domainbooking.StatusPendingPayment, b.Status)
}

func TestSettleFailedThenCanceled(t *testing.T) {
	f := newFixture()
	b := pendingBooking(t)
	require.NoError(t, b.AttachPaymentIntent("pi_x", now))

	out, err := f.coord.Settle(context.Background(), b, payments.Settlement{Kind: payments.SettlementFailed, IntentID: "pi_x", Reason: "card_declined"})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, domainbooking.StatusPendingPayment, b.Status)
	assert.Equal(t, domainbooking.PaymentFailed, b.PaymentStatus)

	out, err = f.coord.Settle(context.Background(), b, payments.Settlement{Kind: payments.SettlementCanceled, IntentID: "pi_x"})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, domainbooking.PaymentPending, b.PaymentStatus)

	_, err = f.coord.Settle(context.Background(), b, payments.Settlement{Kind: "chargeback", IntentID: "pi_x"})
	assert.ErrorIs(t, err, errkind.ErrValidation)
}

func paidBooking(t *testing.T, f fixture) *domainbooking.Booking {
	t.Helper()
	b := pendingBooking(t)
	intent, err := f.coord.CreateIntent(context.Background(), b, nil)
	require.NoError(t, err)
	require.NoError(t, b.AttachPaymentIntent(intent.ID, now))
	_, err = f.coord.Settle(context.Background(), b, payments.Settlement{Kind: payments.SettlementSucceeded, IntentID: intent.ID, Amount: b.Price.Total})
	require.NoError(t, err)
	return b
}

func TestRefundPaidBooking(t *testing.T) {
	f := newFixture()
	b := paidBooking(t, f)

	out := f.coord.Refund(context.Background(), b)
	assert.True(t, out.Attempted)
	assert.True(t, out.Processed)
	assert.NotEmpty(t, out.RefundID)
	assert.Equal(t, b.Price.Total, out.Amount)
	assert.Equal(t, domainbooking.PaymentRefunded, b.PaymentStatus)
	assert.Equal(t, payments.RefundReason, b.Refund.Reason)
	require.Len(t, f.gateway.Refunds(), 1)
	assert.Equal(t, payments.RefundProcessorReason, f.gateway.Refunds()[0].Reason)

	again := f.coord.Refund(context.Background(), b)
	assert.False(t, again.Attempted, "already refunded")
}

func TestRefundFailureIsReported(t *testing.T) {
	f := newFixture()
	b := paidBooking(t, f)
	f.gateway.FailRefund = errors.New("insufficient balance")

	out := f.coord.Refund(context.Background(), b)
	assert.True(t, out.Attempted)
	assert.False(t, out.Processed)
	assert.Equal(t, "insufficient balance", out.Error)
	assert.Equal(t, domainbooking.PaymentPaid, b.PaymentStatus)
	assert.Contains(t, ledgerKinds(t, f.ledger, "bk-1"), policies.LedgerRefundFailed)
}

func TestRefundSkipsUnpaid(t *testing.T) {
	f := newFixture()
	out := f.coord.Refund(context.Background(), pendingBooking(t))
	assert.False(t, out.Attempted)
	assert.Empty(t, f.gateway.Refunds())
}

func TestCancelIntent(t *testing.T) {
	f := newFixture()
	b := pendingBooking(t)

	cancelled, err := f.coord.CancelIntent(context.Background(), b)
	require.NoError(t, err)
	assert.False(t, cancelled, "no intent yet")

	intent, err := f.coord.CreateIntent(context.Background(), b, nil)
	require.NoError(t, err)
	require.NoError(t, b.AttachPaymentIntent(intent.ID, now))

	cancelled, err = f.coord.CancelIntent(context.Background(), b)
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, []string{intent.ID}, f.gateway.Cancelled())

	paid := paidBooking(t, newFixture())
	cancelled, err = f.coord.CancelIntent(context.Background(), paid)
	require.NoError(t, err)
	assert.False(t, cancelled, "paid intents are refunded, not cancelled")
}

func TestSettleAfterExpiryRefundsCapture(t *testing.T) {
	f := newFixture()
	b := pendingBooking(t)
	intent, err := f.coord.CreateIntent(context.Background(), b, nil)
	require.NoError(t, err)
	require.NoError(t, b.AttachPaymentIntent(intent.ID, now))
	require.NoError(t, b.Expire("Payment not completed in time", now))

	out, err := f.coord.Settle(context.Background(), b, payments.Settlement{
		Kind: payments.SettlementSucceeded, IntentID: intent.ID, Amount: b.Price.Total,
	})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.True(t, out.Refund.Processed)
	assert.Equal(t, domainbooking.StatusCancelled, b.Status)
	assert.Equal(t, domainbooking.PaymentRefunded, b.PaymentStatus)
	require.Len(t, f.gateway.Refunds(), 1)
	assert.Equal(t,
		[]policies.LedgerKind{policies.LedgerIntentCreated, policies.LedgerPaymentSettled, policies.LedgerRefund},
		ledgerKinds(t, f.ledger, "bk-1"))

	_, archived := f.invoices.Get("bk-1")
	assert.False(t, archived, "no invoice for a cancelled booking")

	out, err = f.coord.Settle(context.Background(), b, payments.Settlement{
		Kind: payments.SettlementSucceeded, IntentID: intent.ID, Amount: b.Price.Total,
	})
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Len(t, f.gateway.Refunds(), 1, "refunded once")
}

func TestSettleAfterExpiryRetriesFailedRefund(t *testing.T) {
	f := newFixture()
	b := pendingBooking(t)
	intent, err := f.coord.CreateIntent(context.Background(), b, nil)
	require.NoError(t, err)
	require.NoError(t, b.AttachPaymentIntent(intent.ID, now))
	require.NoError(t, b.Expire("Payment not completed in time", now))
	late := payments.Settlement{Kind: payments.SettlementSucceeded, IntentID: intent.ID, Amount: b.Price.Total}

	f.gateway.FailRefund = errors.New("processor unavailable")
	out, err := f.coord.Settle(context.Background(), b, late)
	require.NoError(t, err)
	assert.True(t, out.Refund.Attempted)
	assert.False(t, out.Refund.Processed)
	assert.Equal(t, domainbooking.PaymentPaid, b.PaymentStatus)

	f.gateway.FailRefund = nil
	out, err = f.coord.Settle(context.Background(), b, late)
	require.NoError(t, err)
	assert.True(t, out.Refund.Processed)
	assert.Equal(t, domainbooking.PaymentRefunded, b.PaymentStatus)
}

func TestRejectSettlementCancelsAndRefunds(t *testing.T) {
	f := newFixture()
	b := pendingBooking(t)
	intent, err := f.coord.CreateIntent(context.Background(), b, nil)
	require.NoError(t, err)
	require.NoError(t, b.AttachPaymentIntent(intent.ID, now))

	out, err := f.coord.RejectSettlement(context.Background(), b, payments.Settlement{
		Kind: payments.SettlementSucceeded, IntentID: intent.ID, Amount: b.Price.Total,
	}, "slot taken")
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.True(t, out.Refund.Processed)
	assert.Equal(t, domainbooking.StatusCancelled, b.Status)
	assert.Equal(t, domainbooking.PaymentRefunded, b.PaymentStatus)
	assert.Equal(t,
		[]policies.LedgerKind{policies.LedgerIntentCreated, policies.LedgerPaymentSettled, policies.LedgerRefund},
		ledgerKinds(t, f.ledger, "bk-1"))
}
