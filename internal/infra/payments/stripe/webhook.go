package stripe

import (
	"encoding/json"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"carrental/internal/app/policies"
	"carrental/internal/domain/shared/errkind"
	"carrental/internal/domain/shared/money"
)

// WebhookParser verifies Stripe-Signature headers and decodes payment intent events.
type WebhookParser struct {
	Secret string
}

var intentEventKinds = map[stripeapi.EventType]string{
	"payment_intent.succeeded":      "succeeded",
	"payment_intent.payment_failed": "failed",
	"payment_intent.canceled":       "canceled",
}

func (p WebhookParser) ParseWebhook(payload []byte, signature string) (policies.WebhookEvent, bool, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.Secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return policies.WebhookEvent{}, false, fmt.Errorf("%w: stripe signature: %v", errkind.ErrValidation, err)
	}
	kind, ok := intentEventKinds[event.Type]
	if !ok {
		return policies.WebhookEvent{}, false, nil
	}
	var pi stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return policies.WebhookEvent{}, false, fmt.Errorf("%w: stripe payment intent: %v", errkind.ErrValidation, err)
	}
	out := policies.WebhookEvent{
		ID:        event.ID,
		Kind:      kind,
		IntentID:  pi.ID,
		BookingID: pi.Metadata["bookingId"],
		Amount:    money.Money{Amount: pi.Amount, Currency: strings.ToUpper(string(pi.Currency))},
	}
	if pi.LastPaymentError != nil {
		out.Reason = pi.LastPaymentError.Msg
	}
	if pi.CancellationReason != "" {
		out.Reason = string(pi.CancellationReason)
	}
	return out, true, nil
}

var _ policies.WebhookParser = WebhookParser{}
