package booking

import "carrental/internal/domain/pricing"

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	// StatusPending is the legacy spelling of pending_payment, still produced for
	// group business bookings awaiting admin approval.
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusUpcoming  Status = "upcoming"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses that hold a vehicle's time slot.
var ActiveStatuses = []Status{StatusConfirmed, StatusUpcoming, StatusOngoing}

// CancellableStatuses may be cancelled by the renter before the start time.
var CancellableStatuses = []Status{StatusUpcoming, StatusPendingPayment, StatusConfirmed, StatusPending}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// BlocksAvailability reports whether a booking in this status counts toward overlap checks.
func (s Status) BlocksAvailability() bool {
	return s.in(ActiveStatuses)
}

func (s Status) AwaitingPayment() bool {
	return s == StatusPendingPayment || s == StatusPending
}

func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPending, StatusConfirmed, StatusUpcoming, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) in(set []Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

type Kind = pricing.Kind

const (
	KindBusiness = pricing.KindBusiness
	KindPrivate  = pricing.KindPrivate
)

type PaymentStatus = pricing.PaymentStatus

const (
	PaymentPending  = pricing.PaymentPending
	PaymentPaid     = pricing.PaymentPaid
	PaymentFailed   = pricing.PaymentFailed
	PaymentRefunded = pricing.PaymentRefunded
	PaymentFree     = pricing.PaymentFree
)
