package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	"carrental/internal/app/payments"
	"carrental/internal/app/uow"
	"carrental/internal/domain/availability"
	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/shared/errkind"
	"carrental/internal/domain/shared/money"
)

const settlePaymentKey = "booking.settle_payment"

var ErrUnknownSettlement = fmt.Errorf("%w: unsupported payment event", errkind.ErrValidation)

// ErrRefundPending means a captured payment had to be refunded and the
// processor has not accepted the refund yet.
var ErrRefundPending = errors.New("captured payment not refunded")

const slotTakenReason = "Car was booked by someone else before the payment completed"

// Inbox deduplicates processor deliveries. Seen marks eventID and reports
// whether it was already marked; Forget unmarks it so a failed delivery can be retried.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// SettlePaymentCommand carries a verified processor webhook event.
type SettlePaymentCommand struct {
	EventID     string `json:"event_id" validate:"required"`
	BookingID   string `json:"booking_id" validate:"required"`
	IntentID    string `json:"intent_id" validate:"required"`
	Kind        string `json:"kind" validate:"required,oneof=succeeded failed canceled"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
	Reason      string `json:"reason"`
}

func (c SettlePaymentCommand) Key() string { return settlePaymentKey }

func (c SettlePaymentCommand) Sequential() bool { return true }

type SettlePaymentHandler struct {
	Deps
	Inbox Inbox
}

func (h *SettlePaymentHandler) Handle(ctx context.Context, cmd SettlePaymentCommand) (result *dto.SettlementResult, err error) {
	kind := payments.SettlementKind(cmd.Kind)
	if !kind.Valid() {
		return nil, ErrUnknownSettlement
	}
	if h.Payments == nil {
		return nil, errPaymentsUnavailable
	}
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, cmd.EventID)
		if err != nil {
			return nil, err
		}
		if seen {
			h.logger().Debug("payment event already handled", "event_id", cmd.EventID, "booking_id", cmd.BookingID)
			return &dto.SettlementResult{BookingID: cmd.BookingID, Duplicate: true}, nil
		}
		defer func() {
			if err != nil && !errkind.Known(err) {
				if ferr := h.Inbox.Forget(ctx, cmd.EventID); ferr != nil {
					h.logger().Warn("payment event not released for retry", "event_id", cmd.EventID, "error", ferr)
				}
			}
		}()
	}

	unit, execCtx, cleanup, err := handlersupport.BeginSequentialUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	b, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = b.Price.Total.Currency
	}
	settlement := payments.Settlement{
		Kind:     kind,
		IntentID: cmd.IntentID,
		Amount:   money.Money{Amount: cmd.AmountCents, Currency: currency},
		Reason:   cmd.Reason,
	}

	b, outcome, err := h.apply(execCtx, unit, b, settlement)
	if err != nil {
		h.logger().Warn("payment event rejected", "event_id", cmd.EventID, "booking_id", cmd.BookingID, "kind", kind, "error", err)
		return nil, err
	}
	if outcome.Changed {
		h.logger().Info("payment settled", "booking_id", b.ID, "kind", kind, "status", b.Status, "payment_status", b.PaymentStatus)
	}
	result = &dto.SettlementResult{
		BookingID: string(b.ID),
		Applied:   outcome.Changed,
		Status:    string(b.Status),
		Payment:   string(b.PaymentStatus),
	}
	if outcome.Refund.Attempted {
		refund := mapRefund(outcome.Refund)
		result.Refund = &refund
		if !outcome.Refund.Processed {
			// released from the inbox so the redelivery retries the refund
			return result, fmt.Errorf("%w: booking %s: %s", ErrRefundPending, b.ID, outcome.Refund.Error)
		}
	}
	return result, nil
}

// apply settles the event and stores the booking. A success for a
// pending_payment booking re-checks the slot under the vehicle lock and is
// refunded when another booking holds it.
func (h *SettlePaymentHandler) apply(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, s payments.Settlement) (*domainbooking.Booking, payments.SettleOutcome, error) {
	if s.Kind != payments.SettlementSucceeded || b.Status != domainbooking.StatusPendingPayment {
		return h.settle(ctx, unit, b, s)
	}
	unlock, err := h.locker().Lock(ctx, b.VehicleID)
	if err != nil {
		return b, payments.SettleOutcome{}, err
	}
	defer unlock()
	// the slot was only checked at creation; a competing booking may have paid first.
	fresh, err := unit.Bookings().ByID(ctx, b.ID)
	if err != nil {
		return b, payments.SettleOutcome{}, err
	}
	if fresh.Status != domainbooking.StatusPendingPayment {
		return h.settle(ctx, unit, fresh, s)
	}
	err = availability.NewIndex(unit.Bookings()).EnsureFree(ctx, fresh.VehicleID, fresh.Period, fresh.ID)
	if err == nil {
		return h.settle(ctx, unit, fresh, s)
	}
	if !errors.Is(err, availability.ErrOverlap) {
		return fresh, payments.SettleOutcome{}, err
	}
	out, err := h.Payments.RejectSettlement(ctx, fresh, s, slotTakenReason)
	if err != nil {
		return fresh, out, err
	}
	if err := h.save(ctx, unit, fresh); err != nil {
		return fresh, out, err
	}
	h.releaseSlot(ctx, fresh)
	return fresh, out, nil
}

func (h *SettlePaymentHandler) settle(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, s payments.Settlement) (*domainbooking.Booking, payments.SettleOutcome, error) {
	out, err := h.Payments.Settle(ctx, b, s)
	if err != nil || !out.Changed {
		return b, out, err
	}
	return b, out, h.save(ctx, unit, b)
}

// releaseSlot drops the follow-ups of a booking cancelled during settlement.
func (h *SettlePaymentHandler) releaseSlot(ctx context.Context, b *domainbooking.Booking) {
	_, _ = h.cancelJobs(ctx, b.ID)
	if h.Calendar != nil && b.CalendarEventID != "" {
		if err := h.Calendar.DeleteEvent(ctx, b.CalendarEventID); err != nil {
			h.logger().Warn("calendar event not removed", "booking_id", b.ID, "error", err)
		}
	}
}

var _ commands.Handler[SettlePaymentCommand, *dto.SettlementResult] = (*SettlePaymentHandler)(nil)
