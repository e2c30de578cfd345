package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"carrental/internal/app/policies"
	"carrental/internal/domain/shared/money"
)

var ErrIntentNotFound = errors.New("memory: payment intent not found")

// Gateway is a fake card processor. Set FailCreate or FailRefund to make the
// matching call fail.
type Gateway struct {
	mu         sync.Mutex
	seq        int
	intents    map[string]policies.Intent
	byKey      map[string]string
	refunds    []policies.RefundRequest
	cancelled  []string
	FailCreate error
	FailRefund error
	FailCancel error
}

func NewGateway() *Gateway {
	return &Gateway{intents: make(map[string]policies.Intent), byKey: make(map[string]string)}
}

func (g *Gateway) CreateIntent(ctx context.Context, req policies.IntentRequest) (policies.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailCreate != nil {
		return policies.Intent{}, g.FailCreate
	}
	if id, ok := g.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return g.intents[id], nil
	}
	g.seq++
	id := fmt.Sprintf("pi_%d", g.seq)
	intent := policies.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       req.Amount,
		Status:       policies.IntentRequiresPayment,
		Metadata:     req.Metadata,
	}
	g.intents[id] = intent
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = id
	}
	return intent, nil
}

func (g *Gateway) RetrieveIntent(ctx context.Context, intentID string) (policies.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[intentID]
	if !ok {
		return policies.Intent{}, ErrIntentNotFound
	}
	return intent, nil
}

func (g *Gateway) CancelIntent(ctx context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailCancel != nil {
		return g.FailCancel
	}
	intent, ok := g.intents[intentID]
	if !ok {
		return ErrIntentNotFound
	}
	intent.Status = policies.IntentCanceled
	g.intents[intentID] = intent
	g.cancelled = append(g.cancelled, intentID)
	return nil
}

// Succeed marks an intent paid, as the processor would after card capture.
func (g *Gateway) Succeed(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[intentID]; ok {
		intent.Status = policies.IntentSucceeded
		g.intents[intentID] = intent
	}
}

func (g *Gateway) Refund(ctx context.Context, req policies.RefundRequest) (policies.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailRefund != nil {
		return policies.RefundResult{}, g.FailRefund
	}
	intent, ok := g.intents[req.IntentID]
	if !ok {
		return policies.RefundResult{}, ErrIntentNotFound
	}
	g.refunds = append(g.refunds, req)
	return policies.RefundResult{ID: fmt.Sprintf("re_%d", len(g.refunds)), Amount: intent.Amount, Status: "succeeded"}, nil
}

func (g *Gateway) Refunds() []policies.RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]policies.RefundRequest(nil), g.refunds...)
}

func (g *Gateway) Cancelled() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.cancelled...)
}

// Ledger keeps payment ledger entries in memory.
type Ledger struct {
	mu      sync.Mutex
	entries []policies.LedgerEntry
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Append(ctx context.Context, entry policies.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *Ledger) ListByBooking(ctx context.Context, bookingID string) ([]policies.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]policies.LedgerEntry, 0)
	for _, e := range l.entries {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// InvoiceArchive keeps rendered invoices in memory.
type InvoiceArchive struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewInvoiceArchive() *InvoiceArchive {
	return &InvoiceArchive{items: make(map[string][]byte)}
}

func (a *InvoiceArchive) Store(ctx context.Context, bookingID string, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items[bookingID] = append([]byte(nil), body...)
	return "memory://invoices/" + bookingID, nil
}

func (a *InvoiceArchive) Get(bookingID string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	body, ok := a.items[bookingID]
	return body, ok
}

var (
	_ policies.PaymentGateway = (*Gateway)(nil)
	_ policies.PaymentLedger  = (*Ledger)(nil)
	_ policies.InvoiceArchive = (*InvoiceArchive)(nil)
)

// WebhookParser accepts unsigned JSON deliveries. It stands in for the
// processor's signed webhooks when no processor is configured.
type WebhookParser struct{}

type webhookBody struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	IntentID  string `json:"intent_id"`
	BookingID string `json:"booking_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reason    string `json:"reason"`
}

func (WebhookParser) ParseWebhook(payload []byte, signature string) (policies.WebhookEvent, bool, error) {
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return policies.WebhookEvent{}, false, fmt.Errorf("memory: decode webhook: %w", err)
	}
	if body.ID == "" || body.Kind == "" {
		return policies.WebhookEvent{}, false, nil
	}
	currency := body.Currency
	if currency == "" {
		currency = money.DefaultCurrency
	}
	return policies.WebhookEvent{
		ID:        body.ID,
		Kind:      body.Kind,
		IntentID:  body.IntentID,
		BookingID: body.BookingID,
		Amount:    money.Money{Amount: body.Amount, Currency: strings.ToUpper(currency)},
		Reason:    body.Reason,
	}, true, nil
}
