// Package payments mediates between bookings and the card processor.
package payments

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"carrental/internal/app/policies"
	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/shared/errkind"
	"carrental/internal/domain/shared/money"
	domainvehicle "carrental/internal/domain/vehicle"
)

const (
	RefundProcessorReason = "requested_by_customer"
	RefundReason          = "Booking cancelled before start time"
)

var ErrGatewayMissing = fmt.Errorf("%w: payment gateway not configured", errkind.ErrPayment)

type SettlementKind string

const (
	SettlementSucceeded SettlementKind = "succeeded"
	SettlementFailed    SettlementKind = "failed"
	SettlementCanceled  SettlementKind = "canceled"
)

func (k SettlementKind) Valid() bool {
	return k == SettlementSucceeded || k == SettlementFailed || k == SettlementCanceled
}

// Settlement is an asynchronous payment outcome reported by the processor.
type Settlement struct {
	Kind     SettlementKind
	IntentID string
	Amount   money.Money
	Reason   string
}

// RefundOutcome reports a refund attempt without failing the caller.
type RefundOutcome struct {
	Attempted bool        `json:"attempted"`
	Processed bool        `json:"processed"`
	RefundID  string      `json:"refund_id,omitempty"`
	Amount    money.Money `json:"amount"`
	Error     string      `json:"error,omitempty"`
}

type Coordinator struct {
	Gateway  policies.PaymentGateway
	Ledger   policies.PaymentLedger
	Invoices policies.InvoiceArchive
	Logger   *slog.Logger
	Now      func() time.Time
}

// CreateIntent asks the processor for an intent covering the booking total.
func (c *Coordinator) CreateIntent(ctx context.Context, b *domainbooking.Booking, v *domainvehicle.Vehicle) (policies.Intent, error) {
	if c.Gateway == nil {
		return policies.Intent{}, ErrGatewayMissing
	}
	metadata := map[string]string{
		"bookingId":   string(b.ID),
		"userId":      b.RenterID,
		"bookingType": string(b.Kind),
	}
	description := "Car rental booking " + string(b.ID)
	if v != nil {
		metadata["carMake"] = v.Make
		metadata["carModel"] = v.Model
		metadata["carYear"] = strconv.Itoa(v.Year)
		description = "Car rental: " + v.Title()
	}
	intent, err := c.Gateway.CreateIntent(ctx, policies.IntentRequest{
		BookingID:      string(b.ID),
		RenterID:       b.RenterID,
		BookingKind:    string(b.Kind),
		Amount:         b.Price.Total,
		Description:    description,
		Metadata:       metadata,
		IdempotencyKey: "booking-intent-" + string(b.ID),
	})
	if err != nil {
		return policies.Intent{}, fmt.Errorf("%w: create payment intent: %v", errkind.ErrPayment, err)
	}
	c.record(ctx, policies.LedgerEntry{
		BookingID: string(b.ID),
		Kind:      policies.LedgerIntentCreated,
		Reference: intent.ID,
		Amount:    b.Price.Total,
		Status:    string(intent.Status),
	})
	return intent, nil
}

// Refund refunds a paid booking. Failures are reported in the outcome and never returned.
func (c *Coordinator) Refund(ctx context.Context, b *domainbooking.Booking) RefundOutcome {
	if !b.RefundEligible() {
		return RefundOutcome{}
	}
	out := RefundOutcome{Attempted: true}
	if c.Gateway == nil {
		out.Error = ErrGatewayMissing.Error()
		return out
	}
	res, err := c.Gateway.Refund(ctx, policies.RefundRequest{
		IntentID:  b.Payment.IntentID,
		BookingID: string(b.ID),
		Reason:    RefundProcessorReason,
	})
	if err != nil {
		out.Error = err.Error()
		c.logger().Warn("refund not processed", "booking_id", b.ID, "intent_id", b.Payment.IntentID, "error", err)
		c.record(ctx, policies.LedgerEntry{
			BookingID: string(b.ID),
			Kind:      policies.LedgerRefundFailed,
			Reference: b.Payment.IntentID,
			Amount:    b.Price.Total,
			Detail:    err.Error(),
		})
		return out
	}
	amount := res.Amount
	if amount.Currency == "" {
		amount = b.Price.Total
	}
	b.RecordRefund(domainbooking.Refund{
		ID:     res.ID,
		Amount: amount,
		Reason: RefundReason,
		Status: res.Status,
	}, c.now())
	out.Processed = true
	out.RefundID = res.ID
	out.Amount = amount
	c.record(ctx, policies.LedgerEntry{
		BookingID: string(b.ID),
		Kind:      policies.LedgerRefund,
		Reference: res.ID,
		Amount:    amount,
		Status:    res.Status,
	})
	return out
}

// CancelIntent voids an unpaid intent. It reports false when there was nothing to cancel.
func (c *Coordinator) CancelIntent(ctx context.Context, b *domainbooking.Booking) (bool, error) {
	if b.Payment.IntentID == "" || b.PaymentStatus == domainbooking.PaymentPaid || b.PaymentStatus == domainbooking.PaymentRefunded {
		return false, nil
	}
	if c.Gateway == nil {
		return false, ErrGatewayMissing
	}
	if err := c.Gateway.CancelIntent(ctx, b.Payment.IntentID); err != nil {
		return false, fmt.Errorf("%w: cancel payment intent: %v", errkind.ErrPayment, err)
	}
	c.record(ctx, policies.LedgerEntry{
		BookingID: string(b.ID),
		Kind:      policies.LedgerIntentCanceled,
		Reference: b.Payment.IntentID,
		Amount:    b.Price.Total,
	})
	return true, nil
}

// SettleOutcome reports whether a settlement changed the booking and, when a
// captured payment could not be kept, the refund that followed.
type SettleOutcome struct {
	Changed bool
	Refund  RefundOutcome
}

// Settle applies a processor outcome to the booking. A success that arrives
// after the booking was cancelled is recorded and refunded.
func (c *Coordinator) Settle(ctx context.Context, b *domainbooking.Booking, s Settlement) (SettleOutcome, error) {
	now := c.now()
	switch s.Kind {
	case SettlementSucceeded:
		if b.Status == domainbooking.StatusCancelled {
			return c.settleCancelled(ctx, b, s)
		}
		changed, err := b.MarkPaid(s.IntentID, s.Amount, now)
		if err != nil || !changed {
			return SettleOutcome{Changed: changed}, err
		}
		c.recordSettled(ctx, b, s, "")
		c.archiveInvoice(ctx, b)
		return SettleOutcome{Changed: true}, nil
	case SettlementFailed:
		changed, err := b.MarkPaymentFailed(s.IntentID, s.Reason, now)
		if err != nil || !changed {
			return SettleOutcome{Changed: changed}, err
		}
		c.record(ctx, policies.LedgerEntry{
			BookingID: string(b.ID),
			Kind:      policies.LedgerPaymentFailed,
			Reference: s.IntentID,
			Amount:    b.Price.Total,
			Detail:    s.Reason,
		})
		return SettleOutcome{Changed: true}, nil
	case SettlementCanceled:
		changed, err := b.MarkPaymentCanceled(s.IntentID, now)
		return SettleOutcome{Changed: changed}, err
	default:
		return SettleOutcome{}, fmt.Errorf("%w: unknown settlement kind %q", errkind.ErrValidation, s.Kind)
	}
}

// RejectSettlement cancels a booking whose successful payment cannot be
// honoured and refunds the capture.
func (c *Coordinator) RejectSettlement(ctx context.Context, b *domainbooking.Booking, s Settlement, reason string) (SettleOutcome, error) {
	if err := b.RejectPayment(s.IntentID, s.Amount, reason, c.now()); err != nil {
		return SettleOutcome{}, err
	}
	c.recordSettled(ctx, b, s, reason)
	c.logger().Warn("captured payment rejected", "booking_id", b.ID, "intent_id", s.IntentID, "reason", reason)
	return SettleOutcome{Changed: true, Refund: c.Refund(ctx, b)}, nil
}

func (c *Coordinator) settleCancelled(ctx context.Context, b *domainbooking.Booking, s Settlement) (SettleOutcome, error) {
	changed, err := b.RecordLateCapture(s.IntentID, c.now())
	if err != nil {
		return SettleOutcome{}, err
	}
	if changed {
		c.recordSettled(ctx, b, s, "captured after cancellation")
		c.logger().Warn("payment captured for a cancelled booking", "booking_id", b.ID, "intent_id", s.IntentID)
	}
	out := SettleOutcome{Changed: changed}
	// a redelivery retries a refund that failed earlier
	if b.RefundEligible() {
		out.Refund = c.Refund(ctx, b)
		out.Changed = out.Changed || out.Refund.Processed
	}
	return out, nil
}

func (c *Coordinator) recordSettled(ctx context.Context, b *domainbooking.Booking, s Settlement, detail string) {
	c.record(ctx, policies.LedgerEntry{
		BookingID: string(b.ID),
		Kind:      policies.LedgerPaymentSettled,
		Reference: s.IntentID,
		Amount:    s.Amount,
		Status:    string(s.Kind),
		Detail:    detail,
	})
}

func (c *Coordinator) archiveInvoice(ctx context.Context, b *domainbooking.Booking) {
	if c.Invoices == nil {
		return
	}
	location, err := c.Invoices.Store(ctx, string(b.ID), RenderInvoice(b))
	if err != nil {
		c.logger().Warn("invoice not archived", "booking_id", b.ID, "error", err)
		return
	}
	c.logger().Debug("invoice archived", "booking_id", b.ID, "location", location)
}

// RenderInvoice is the plain-text invoice stored for a paid booking.
func RenderInvoice(b *domainbooking.Booking) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "INVOICE %s\n", b.ID)
	fmt.Fprintf(&buf, "Renter:        %s\n", b.RenterID)
	fmt.Fprintf(&buf, "Vehicle:       %s\n", b.VehicleID)
	fmt.Fprintf(&buf, "Period (UTC):  %s - %s\n", b.Period.Start.Format(time.RFC3339), b.Period.End.Format(time.RFC3339))
	fmt.Fprintf(&buf, "Hours:         %.2f\n", b.Period.Hours())
	fmt.Fprintf(&buf, "Total:         %s\n", b.Price.Total)
	fmt.Fprintf(&buf, "Platform fee:  %s\n", b.Price.PlatformCut)
	if !b.Price.GroupOwnerCut.IsZero() {
		fmt.Fprintf(&buf, "Group fee:     %s\n", b.Price.GroupOwnerCut)
	}
	fmt.Fprintf(&buf, "Owner payout:  %s\n", b.Price.OwnerAmount)
	fmt.Fprintf(&buf, "Payment:       %s (%s)\n", b.PaymentStatus, b.Payment.IntentID)
	return buf.Bytes()
}

func (c *Coordinator) record(ctx context.Context, entry policies.LedgerEntry) {
	if c.Ledger == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = c.now()
	}
	if err := c.Ledger.Append(ctx, entry); err != nil {
		c.logger().Warn("payment ledger append failed", "booking_id", entry.BookingID, "kind", entry.Kind, "error", err)
	}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
