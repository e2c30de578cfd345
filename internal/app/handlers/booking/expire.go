package booking

import (
	"context"
	"time"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	handlersupport "carrental/internal/app/handlers/support"
	domainbooking "carrental/internal/domain/booking"
)

const (
	expireUnpaidKey     = "booking.expire_unpaid"
	expiredUnpaidReason = "Payment not completed in time"
	// DefaultPaymentGrace is how long an unpaid booking may wait for its payment.
	DefaultPaymentGrace = 24 * time.Hour
)

// ExpireUnpaidCommand cancels private bookings still waiting for payment after
// Grace, or whose start time passed unpaid.
type ExpireUnpaidCommand struct {
	Grace time.Duration
}

func (c ExpireUnpaidCommand) Key() string { return expireUnpaidKey }

func (c ExpireUnpaidCommand) Sequential() bool { return true }

type ExpireUnpaidHandler struct {
	Deps
}

func (h *ExpireUnpaidHandler) Handle(ctx context.Context, cmd ExpireUnpaidCommand) (*dto.ExpireResult, error) {
	grace := cmd.Grace
	if grace <= 0 {
		grace = DefaultPaymentGrace
	}
	unit, execCtx, cleanup, err := handlersupport.BeginSequentialUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	now := h.now()
	candidates, err := unit.Bookings().List(execCtx, domainbooking.Filter{
		Statuses: []domainbooking.Status{domainbooking.StatusPendingPayment},
	})
	if err != nil {
		return nil, err
	}
	out := &dto.ExpireResult{}
	for _, b := range candidates {
		if b.PaymentStatus == domainbooking.PaymentPaid || b.PaymentStatus == domainbooking.PaymentFree {
			continue
		}
		if b.CreatedAt.Add(grace).After(now) && now.Before(b.Period.Start) {
			continue
		}
		if err := b.Expire(expiredUnpaidReason, now); err != nil {
			continue
		}
		if err := h.save(execCtx, unit, b); err != nil {
			h.logger().Warn("unpaid booking not expired", "booking_id", b.ID, "error", err)
			out.Failed = append(out.Failed, string(b.ID))
			continue
		}
		if h.Payments != nil {
			if _, err := h.Payments.CancelIntent(execCtx, b); err != nil {
				h.logger().Warn("payment intent of expired booking not cancelled", "booking_id", b.ID, "error", err)
			}
		}
		_, _ = h.cancelJobs(execCtx, b.ID)
		if h.Calendar != nil && b.CalendarEventID != "" {
			if err := h.Calendar.DeleteEvent(execCtx, b.CalendarEventID); err != nil {
				h.logger().Warn("calendar event not removed", "booking_id", b.ID, "error", err)
			}
		}
		out.Expired = append(out.Expired, string(b.ID))
	}
	if len(out.Expired) > 0 {
		h.logger().Info("unpaid bookings expired", "count", len(out.Expired))
	}
	return out, nil
}

var _ commands.Handler[ExpireUnpaidCommand, *dto.ExpireResult] = (*ExpireUnpaidHandler)(nil)
