// Package notifications turns relayed booking events into renter e-mails.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	"carrental/internal/app/outbox"
	"carrental/internal/app/policies"
	"carrental/internal/app/uow"
	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/timezone"
	domainuser "carrental/internal/domain/user"
)

// Inbox deduplicates event deliveries; see the booking settle handler.
type Inbox interface {
	Seen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type Handler struct {
	UoWFactory uow.UoWFactory
	Notifier   policies.Notifier
	Inbox      Inbox
	Timezones  *timezone.Normalizer
	Logger     *slog.Logger
}

type eventEnvelope struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
}

// Template picks the e-mail for an event name and the status it carried.
// Events without a template are ignored.
func Template(name, status string) (string, bool) {
	switch name {
	case "booking.created":
		switch domainbooking.Status(status) {
		case domainbooking.StatusPendingPayment:
			return policies.TemplateBookingPending, true
		case domainbooking.StatusPending:
			// the renter hears back on approval
			return "", false
		}
		return policies.TemplateBookingConfirmed, true
	case "booking.approved":
		return policies.TemplateBookingConfirmed, true
	case "booking.cancelled":
		return policies.TemplateBookingCancelled, true
	case "booking.extended":
		return policies.TemplateBookingExtended, true
	case "booking.payment_succeeded":
		return policies.TemplatePaymentSucceeded, true
	case "booking.payment_failed":
		return policies.TemplatePaymentFailed, true
	case "booking.started":
		return policies.TemplateBookingStarted, true
	case "booking.completed":
		return policies.TemplateBookingCompleted, true
	}
	return "", false
}

// Handle e-mails the renter about rec. A send failure is returned, and the
// delivery forgotten, so the relay redelivers it.
func (h *Handler) Handle(ctx context.Context, rec outbox.EventRecord) error {
	if h.Notifier == nil {
		return nil
	}
	var env eventEnvelope
	if err := json.Unmarshal(rec.Payload, &env); err != nil {
		h.logger().Warn("notification dropped, bad payload", "event", rec.Name, "event_id", rec.ID, "error", err)
		return nil
	}
	template, ok := Template(rec.Name, env.Status)
	if !ok {
		return nil
	}
	if env.BookingID == "" {
		return nil
	}
	if h.Inbox != nil && rec.ID != "" {
		seen, err := h.Inbox.Seen(ctx, rec.ID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}
	err := h.send(ctx, rec, env, template)
	if err != nil && h.Inbox != nil && rec.ID != "" {
		if ferr := h.Inbox.Forget(ctx, rec.ID); ferr != nil {
			h.logger().Warn("inbox forget failed", "event_id", rec.ID, "error", ferr)
		}
	}
	return err
}

func (h *Handler) send(ctx context.Context, rec outbox.EventRecord, env eventEnvelope, template string) error {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	b, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(env.BookingID))
	if err != nil {
		if errors.Is(err, domainbooking.ErrNotFound) {
			h.logger().Warn("notification dropped, booking unknown", "event", rec.Name, "booking_id", env.BookingID)
			return nil
		}
		return err
	}
	renter, err := unit.Users().ByID(execCtx, domainuser.ID(b.RenterID))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			h.logger().Warn("notification dropped, renter unknown", "event", rec.Name, "booking_id", b.ID)
			return nil
		}
		return err
	}
	notice := dto.MapNotice(b, renter, h.timezones())
	notice.Detail = env.Reason
	if err := h.Notifier.Send(execCtx, renter.Email, template, notice); err != nil {
		return fmt.Errorf("notify %s for booking %s: %w", template, b.ID, err)
	}
	h.logger().Debug("notification sent", "event", rec.Name, "booking_id", b.ID, "template", template)
	return nil
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) timezones() *timezone.Normalizer {
	if h.Timezones != nil {
		return h.Timezones
	}
	return timezone.NewNormalizer("")
}
