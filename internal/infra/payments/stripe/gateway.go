// Package stripe adapts Stripe payment intents, refunds and webhooks to the
// payment ports.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"carrental/internal/app/policies"
	"carrental/internal/domain/shared/money"
)

var ErrNotConfigured = errors.New("stripe: secret key missing")

type Gateway struct {
	api *client.API
}

// NewGateway builds a gateway for secretKey. backends may be nil; tests pass
// one pointing at a fake API.
func NewGateway(secretKey string, backends *stripeapi.Backends) (*Gateway, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, ErrNotConfigured
	}
	return &Gateway{api: client.New(secretKey, backends)}, nil
}

func (g *Gateway) CreateIntent(ctx context.Context, req policies.IntentRequest) (policies.Intent, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:   stripeapi.Int64(req.Amount.Amount),
		Currency: stripeapi.String(strings.ToLower(currencyOf(req.Amount))),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripeapi.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return policies.Intent{}, fmt.Errorf("stripe: create intent for %s: %w", req.BookingID, err)
	}
	return toIntent(pi), nil
}

func (g *Gateway) RetrieveIntent(ctx context.Context, intentID string) (policies.Intent, error) {
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return policies.Intent{}, fmt.Errorf("stripe: retrieve intent %s: %w", intentID, err)
	}
	return toIntent(pi), nil
}

func (g *Gateway) CancelIntent(ctx context.Context, intentID string) error {
	params := &stripeapi.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Cancel(intentID, params); err != nil {
		return fmt.Errorf("stripe: cancel intent %s: %w", intentID, err)
	}
	return nil
}

// Refund returns the full captured amount of the intent.
func (g *Gateway) Refund(ctx context.Context, req policies.RefundRequest) (policies.RefundResult, error) {
	params := &stripeapi.RefundParams{
		PaymentIntent: stripeapi.String(req.IntentID),
		Reason:        stripeapi.String(string(stripeapi.RefundReasonRequestedByCustomer)),
	}
	params.AddMetadata("bookingId", req.BookingID)
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	params.SetIdempotencyKey("booking-refund-" + req.BookingID)
	params.Context = ctx
	r, err := g.api.Refunds.New(params)
	if err != nil {
		return policies.RefundResult{}, fmt.Errorf("stripe: refund intent %s: %w", req.IntentID, err)
	}
	return policies.RefundResult{
		ID:     r.ID,
		Amount: money.Money{Amount: r.Amount, Currency: strings.ToUpper(string(r.Currency))},
		Status: string(r.Status),
	}, nil
}

func toIntent(pi *stripeapi.PaymentIntent) policies.Intent {
	return policies.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       money.Money{Amount: pi.Amount, Currency: strings.ToUpper(string(pi.Currency))},
		Status:       policies.IntentStatus(pi.Status),
		Metadata:     pi.Metadata,
	}
}

func currencyOf(m money.Money) string {
	if m.Currency == "" {
		return money.DefaultCurrency
	}
	return m.Currency
}

var _ policies.PaymentGateway = (*Gateway)(nil)
