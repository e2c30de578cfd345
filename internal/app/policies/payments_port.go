package policies

import (
	"context"
	"time"

	"carrental/internal/domain/shared/money"
)

// PaymentGateway is the card processor seen by the payment coordinator.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

type IntentRequest struct {
	BookingID   string
	RenterID    string
	BookingKind string
	Amount      money.Money
	Description string
	Metadata    map[string]string
	// IdempotencyKey lets the processor dedupe retried creations.
	IdempotencyKey string
}

type IntentStatus string

const (
	IntentRequiresPayment IntentStatus = "requires_payment_method"
	IntentProcessing      IntentStatus = "processing"
	IntentSucceeded       IntentStatus = "succeeded"
	IntentCanceled        IntentStatus = "canceled"
)

type Intent struct {
	ID           string
	ClientSecret string
	Amount       money.Money
	Status       IntentStatus
	Metadata     map[string]string
}

type RefundRequest struct {
	IntentID  string
	BookingID string
	Reason    string
}

type RefundResult struct {
	ID     string
	Amount money.Money
	Status string
}

// LedgerEntry is one immutable line of the payment audit trail.
type LedgerEntry struct {
	ID        string
	BookingID string
	Kind      LedgerKind
	Reference string
	Amount    money.Money
	Status    string
	Detail    string
	At        time.Time
}

type LedgerKind string

const (
	LedgerIntentCreated  LedgerKind = "intent_created"
	LedgerIntentCanceled LedgerKind = "intent_canceled"
	LedgerPaymentSettled LedgerKind = "payment_settled"
	LedgerPaymentFailed  LedgerKind = "payment_failed"
	LedgerRefund         LedgerKind = "refund"
	LedgerRefundFailed   LedgerKind = "refund_failed"
)

type PaymentLedger interface {
	Append(ctx context.Context, entry LedgerEntry) error
	ListByBooking(ctx context.Context, bookingID string) ([]LedgerEntry, error)
}

// InvoiceArchive stores a rendered invoice for a paid booking and returns its location.
type InvoiceArchive interface {
	Store(ctx context.Context, bookingID string, body []byte) (string, error)
}

// WebhookEvent is a verified processor notification about a payment intent.
// Kind is one of succeeded, failed or canceled.
type WebhookEvent struct {
	ID        string
	Kind      string
	IntentID  string
	BookingID string
	Amount    money.Money
	Reason    string
}

// WebhookParser verifies and decodes a raw webhook delivery. ok is false for
// event types that carry nothing for the booking lifecycle.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (ev WebhookEvent, ok bool, err error)
}
