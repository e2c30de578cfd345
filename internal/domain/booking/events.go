package booking

import "time"

type BookingCreated struct {
	BookingID  BookingID `json:"booking_id"`
	RenterID   string    `json:"renter_id"`
	VehicleID  string    `json:"vehicle_id"`
	GroupID    string    `json:"group_id,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Timezone   string    `json:"timezone"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	TotalCents int64     `json:"total_cents"`
	Currency   string    `json:"currency"`
	At         time.Time `json:"at"`
}

func (e BookingCreated) EventName() string     { return "booking.created" }
func (e BookingCreated) AggregateID() string   { return string(e.BookingID) }
func (e BookingCreated) OccurredAt() time.Time { return e.At }

type BookingCancelled struct {
	BookingID     BookingID `json:"booking_id"`
	RenterID      string    `json:"renter_id"`
	VehicleID     string    `json:"vehicle_id"`
	Reason        string    `json:"reason"`
	PaymentStatus string    `json:"payment_status"`
	At            time.Time `json:"at"`
}

func (e BookingCancelled) EventName() string     { return "booking.cancelled" }
func (e BookingCancelled) AggregateID() string   { return string(e.BookingID) }
func (e BookingCancelled) OccurredAt() time.Time { return e.At }

type BookingRefunded struct {
	BookingID   BookingID `json:"booking_id"`
	RefundID    string    `json:"refund_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	At          time.Time `json:"at"`
}

func (e BookingRefunded) EventName() string     { return "booking.refunded" }
func (e BookingRefunded) AggregateID() string   { return string(e.BookingID) }
func (e BookingRefunded) OccurredAt() time.Time { return e.At }

type BookingExtended struct {
	BookingID   BookingID `json:"booking_id"`
	RenterID    string    `json:"renter_id"`
	PreviousEnd time.Time `json:"previous_end"`
	NewEnd      time.Time `json:"new_end"`
	ChargeCents int64     `json:"charge_cents"`
	Currency    string    `json:"currency"`
	At          time.Time `json:"at"`
}

func (e BookingExtended) EventName() string     { return "booking.extended" }
func (e BookingExtended) AggregateID() string   { return string(e.BookingID) }
func (e BookingExtended) OccurredAt() time.Time { return e.At }

type BookingPaid struct {
	BookingID   BookingID `json:"booking_id"`
	RenterID    string    `json:"renter_id"`
	IntentID    string    `json:"intent_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	At          time.Time `json:"at"`
}

func (e BookingPaid) EventName() string     { return "booking.payment_succeeded" }
func (e BookingPaid) AggregateID() string   { return string(e.BookingID) }
func (e BookingPaid) OccurredAt() time.Time { return e.At }

type BookingPaymentFailed struct {
	BookingID BookingID `json:"booking_id"`
	RenterID  string    `json:"renter_id"`
	IntentID  string    `json:"intent_id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

func (e BookingPaymentFailed) EventName() string     { return "booking.payment_failed" }
func (e BookingPaymentFailed) AggregateID() string   { return string(e.BookingID) }
func (e BookingPaymentFailed) OccurredAt() time.Time { return e.At }

type BookingStarted struct {
	BookingID BookingID `json:"booking_id"`
	VehicleID string    `json:"vehicle_id"`
	At        time.Time `json:"at"`
}

func (e BookingStarted) EventName() string     { return "booking.started" }
func (e BookingStarted) AggregateID() string   { return string(e.BookingID) }
func (e BookingStarted) OccurredAt() time.Time { return e.At }

type BookingCompleted struct {
	BookingID BookingID `json:"booking_id"`
	VehicleID string    `json:"vehicle_id"`
	At        time.Time `json:"at"`
}

func (e BookingCompleted) EventName() string     { return "booking.completed" }
func (e BookingCompleted) AggregateID() string   { return string(e.BookingID) }
func (e BookingCompleted) OccurredAt() time.Time { return e.At }

type BookingApproved struct {
	BookingID BookingID `json:"booking_id"`
	RenterID  string    `json:"renter_id"`
	By        string    `json:"by"`
	At        time.Time `json:"at"`
}

func (e BookingApproved) EventName() string     { return "booking.approved" }
func (e BookingApproved) AggregateID() string   { return string(e.BookingID) }
func (e BookingApproved) OccurredAt() time.Time { return e.At }
