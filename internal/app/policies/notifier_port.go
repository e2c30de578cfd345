package policies

import "context"

// Notifier sends a templated message. Callers log failures and carry on.
type Notifier interface {
	Send(ctx context.Context, to string, template string, data any) error
}

const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateBookingPending   = "booking_pending_payment"
	TemplateBookingCancelled = "booking_cancelled"
	TemplateBookingExtended  = "booking_extended"
	TemplateBookingStarted   = "booking_started"
	TemplateBookingCompleted = "booking_completed"
	TemplatePaymentSucceeded = "payment_succeeded"
	TemplatePaymentFailed    = "payment_failed"
	TemplateReminderStart    = "reminder_start"
	TemplateReminderEnd      = "reminder_end"
)
