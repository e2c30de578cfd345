package ginserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	bookingapp "carrental/internal/app/handlers/booking"
	"carrental/internal/app/policies"
	"carrental/internal/domain/shared/errkind"
)

const (
	headerStripeSignature = "Stripe-Signature"
	maxWebhookBody        = 64 << 10
)

// WebhookHandler receives processor deliveries. It sits outside the auth
// middleware; the signature is the credential.
type WebhookHandler struct {
	Commands commands.Bus
	Parser   policies.WebhookParser
	Logger   *slog.Logger
}

func (h WebhookHandler) Stripe(c *gin.Context) {
	if h.Parser == nil {
		c.JSON(http.StatusServiceUnavailable, envelope{Success: false, Message: "payments not configured"})
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, err)
		return
	}
	ev, relevant, err := h.Parser.ParseWebhook(payload, c.GetHeader(headerStripeSignature))
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("webhook rejected", "error", err)
		}
		badRequest(c, err)
		return
	}
	if !relevant {
		respond(c, http.StatusOK, "ignored", nil)
		return
	}
	cmd := bookingapp.SettlePaymentCommand{
		EventID:     ev.ID,
		BookingID:   ev.BookingID,
		IntentID:    ev.IntentID,
		Kind:        ev.Kind,
		AmountCents: ev.Amount.Amount,
		Currency:    ev.Amount.Currency,
		Reason:      ev.Reason,
	}
	result, err := commands.Dispatch[bookingapp.SettlePaymentCommand, *dto.SettlementResult](c.Request.Context(), h.Commands, cmd)
	switch {
	case err == nil:
		respond(c, http.StatusOK, "processed", result)
	case errors.Is(err, errkind.ErrNotFound), errors.Is(err, errkind.ErrValidation):
		// Retrying cannot fix these, so the processor gets a 2xx.
		if h.Logger != nil {
			h.Logger.Warn("webhook dropped", "event_id", ev.ID, "booking_id", ev.BookingID, "error", err)
		}
		respond(c, http.StatusOK, "dropped", nil)
	default:
		respondError(c, h.Logger, err)
	}
}
