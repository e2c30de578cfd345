package dto

import (
	"time"

	"carrental/internal/app/policies"
	"carrental/internal/app/schedule"
	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/shared/money"
	"carrental/internal/domain/timezone"
)

type MoneyDTO struct {
	Amount   int64   `json:"amount"`
	Major    float64 `json:"major"`
	Currency string  `json:"currency"`
}

func MapMoney(m money.Money) MoneyDTO {
	return MoneyDTO{Amount: m.Amount, Major: m.Major(), Currency: m.Currency}
}

type PriceSplit struct {
	Total         MoneyDTO `json:"total"`
	PlatformCut   MoneyDTO `json:"platform_cut"`
	GroupOwnerCut MoneyDTO `json:"group_owner_cut"`
	OwnerAmount   MoneyDTO `json:"owner_amount"`
}

type RefundView struct {
	ID     string    `json:"id"`
	Amount MoneyDTO  `json:"amount"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
	Status string    `json:"status"`
}

// BookingView is a booking plus its local display strings.
type BookingView struct {
	ID              string      `json:"id"`
	RenterID        string      `json:"renter_id"`
	VehicleID       string      `json:"vehicle_id"`
	GroupID         string      `json:"group_id,omitempty"`
	Kind            string      `json:"kind"`
	Status          string      `json:"status"`
	PaymentStatus   string      `json:"payment_status"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         time.Time   `json:"end_time"`
	Timezone        string      `json:"timezone"`
	LocalStart      string      `json:"local_start"`
	LocalEnd        string      `json:"local_end"`
	DurationHours   float64     `json:"duration_hours"`
	Price           PriceSplit  `json:"price"`
	PaymentIntentID string      `json:"payment_intent_id,omitempty"`
	Refund          *RefundView `json:"refund,omitempty"`
	IsStarted       bool        `json:"is_started"`
	IsExtended      bool        `json:"is_extended"`
	ExtendedEnd     *time.Time  `json:"extended_end_time,omitempty"`
	ExtensionCharge MoneyDTO    `json:"extension_charge"`
	StartReminder   bool        `json:"start_reminder_sent"`
	EndReminder     bool        `json:"end_reminder_sent"`
	CancelReason    string      `json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func MapBooking(b *domainbooking.Booking, tz *timezone.Normalizer) BookingView {
	if b == nil {
		return BookingView{}
	}
	view := BookingView{
		ID:            string(b.ID),
		RenterID:      b.RenterID,
		VehicleID:     b.VehicleID,
		GroupID:       b.GroupID,
		Kind:          string(b.Kind),
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		StartTime:     b.Period.Start,
		EndTime:       b.Period.End,
		Timezone:      b.Timezone,
		DurationHours: b.Period.Hours(),
		Price: PriceSplit{
			Total:         MapMoney(b.Price.Total),
			PlatformCut:   MapMoney(b.Price.PlatformCut),
			GroupOwnerCut: MapMoney(b.Price.GroupOwnerCut),
			OwnerAmount:   MapMoney(b.Price.OwnerAmount),
		},
		PaymentIntentID: b.Payment.IntentID,
		IsStarted:       b.IsStarted,
		IsExtended:      b.IsExtended,
		ExtendedEnd:     b.ExtendedEnd,
		ExtensionCharge: MapMoney(b.ExtensionCharge),
		StartReminder:   b.Reminders.Start,
		EndReminder:     b.Reminders.End,
		CancelReason:    b.CancelReason,
		CancelledAt:     b.CancelledAt,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
	if tz != nil {
		view.LocalStart = tz.MustDisplay(b.Period.Start, b.Timezone)
		view.LocalEnd = tz.MustDisplay(b.Period.End, b.Timezone)
	}
	if b.Refund.ID != "" {
		view.Refund = &RefundView{
			ID:     b.Refund.ID,
			Amount: MapMoney(b.Refund.Amount),
			At:     b.Refund.At,
			Reason: b.Refund.Reason,
			Status: b.Refund.Status,
		}
	}
	return view
}

type BookingCollection struct {
	Items []BookingView `json:"items"`
}

func MapBookings(items []*domainbooking.Booking, tz *timezone.Normalizer) BookingCollection {
	out := BookingCollection{Items: make([]BookingView, 0, len(items))}
	for _, b := range items {
		out.Items = append(out.Items, MapBooking(b, tz))
	}
	return out
}

type PaymentIntentView struct {
	ID           string   `json:"id"`
	ClientSecret string   `json:"client_secret"`
	Amount       MoneyDTO `json:"amount"`
	Status       string   `json:"status"`
}

func MapIntent(intent policies.Intent) *PaymentIntentView {
	return &PaymentIntentView{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       MapMoney(intent.Amount),
		Status:       string(intent.Status),
	}
}

type JobView struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	RunAt time.Time `json:"run_at"`
}

func MapJobs(handles []schedule.JobHandle) []JobView {
	out := make([]JobView, 0, len(handles))
	for _, h := range handles {
		out = append(out, JobView{ID: h.ID, Name: h.Name, RunAt: h.RunAt})
	}
	return out
}

const NextStepCompletePayment = "complete_payment"

type CreateBookingResult struct {
	Booking         BookingView        `json:"booking"`
	RequiresPayment bool               `json:"requires_payment"`
	NextStep        string             `json:"next_step,omitempty"`
	PaymentIntent   *PaymentIntentView `json:"payment_intent,omitempty"`
	ScheduledJobs   []JobView          `json:"scheduled_jobs"`
	Warnings        []string           `json:"warnings,omitempty"`
}

type RefundOutcome struct {
	Attempted bool     `json:"attempted"`
	Processed bool     `json:"processed"`
	RefundID  string   `json:"refund_id,omitempty"`
	Amount    MoneyDTO `json:"amount"`
	Error     string   `json:"error,omitempty"`
}

// CancelOutcome reports the cancellation and each best-effort follow-up.
type CancelOutcome struct {
	Booking         BookingView   `json:"booking"`
	Cancelled       bool          `json:"cancelled"`
	Refund          RefundOutcome `json:"refund"`
	IntentCancelled bool          `json:"intent_cancelled"`
	IntentError     string        `json:"intent_error,omitempty"`
	JobsCancelled   int           `json:"jobs_cancelled"`
	JobsError       string        `json:"jobs_error,omitempty"`
	VehicleReleased bool          `json:"vehicle_released"`
	VehicleError    string        `json:"vehicle_error,omitempty"`
	CalendarRemoved bool          `json:"calendar_removed"`
	CalendarError   string        `json:"calendar_error,omitempty"`
}

type ExtendResult struct {
	Booking         BookingView `json:"booking"`
	PreviousEnd     time.Time   `json:"previous_end"`
	NewEnd          time.Time   `json:"new_end"`
	AdditionalHours float64     `json:"additional_hours"`
	AdditionalCost  MoneyDTO    `json:"additional_cost"`
	RescheduledJobs []JobView   `json:"rescheduled_jobs"`
	Warnings        []string    `json:"warnings,omitempty"`
}

type SettlementResult struct {
	BookingID string         `json:"booking_id"`
	Applied   bool           `json:"applied"`
	Duplicate bool           `json:"duplicate"`
	Status    string         `json:"status"`
	Payment   string         `json:"payment_status"`
	Refund    *RefundOutcome `json:"refund,omitempty"`
}

// ExpireResult lists the bookings a payment sweep cancelled.
type ExpireResult struct {
	Expired []string `json:"expired"`
	Failed  []string `json:"failed,omitempty"`
}
