package pricing

import (
	"errors"
	"fmt"
	"math"

	"carrental/internal/domain/shared/errkind"
	"carrental/internal/domain/shared/money"
)

var (
	ErrInvalidDuration   = fmt.Errorf("%w: pricing: duration must be positive", errkind.ErrValidation)
	ErrInvalidRate       = fmt.Errorf("%w: pricing: hourly rate cannot be negative", errkind.ErrValidation)
	ErrInvalidPercentage = fmt.Errorf("%w: pricing: commission percentages must be within 0..100 and sum to at most 100", errkind.ErrValidation)
	ErrCurrencyUnset     = errors.New("pricing: currency must be defined")
)

// Kind distinguishes free business bookings from renter-paid private ones.
type Kind string

const (
	KindBusiness Kind = "business"
	KindPrivate  Kind = "private"
)

func (k Kind) Valid() bool {
	return k == KindBusiness || k == KindPrivate
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFree     PaymentStatus = "free"
)

const (
	DefaultHourlyRateCents   int64   = 1000
	DefaultPlatformPercent   float64 = 10
	DefaultGroupOwnerPercent float64 = 15
)

// Commission holds the percentage cuts applied to a booking total.
type Commission struct {
	PlatformPercent   float64
	GroupOwnerPercent float64
}

func (c Commission) Validate() error {
	for _, p := range []float64{c.PlatformPercent, c.GroupOwnerPercent} {
		if p < 0 || p > 100 || math.IsNaN(p) {
			return ErrInvalidPercentage
		}
	}
	if c.PlatformPercent+c.GroupOwnerPercent > 100 {
		return ErrInvalidPercentage
	}
	return nil
}

// Split is the three-way division of a booking total.
type Split struct {
	Total         money.Money
	PlatformCut   money.Money
	GroupOwnerCut money.Money
	OwnerAmount   money.Money
	PaymentStatus PaymentStatus
}

// Balanced reports whether the parts add up to the total.
func (s Split) Balanced() bool {
	return s.PlatformCut.Amount+s.GroupOwnerCut.Amount+s.OwnerAmount.Amount == s.Total.Amount
}

// Quote prices a booking. Each cut is rounded to the cent independently and the
// vehicle owner receives the remainder, so the split always sums to the total.
func Quote(kind Kind, durationHours float64, hourlyRate money.Money, commission Commission) (Split, error) {
	currency := hourlyRate.Currency
	if currency == "" {
		return Split{}, ErrCurrencyUnset
	}
	zero := money.Zero(currency)
	if kind == KindBusiness {
		return Split{Total: zero, PlatformCut: zero, GroupOwnerCut: zero, OwnerAmount: zero, PaymentStatus: PaymentFree}, nil
	}
	if durationHours <= 0 || math.IsNaN(durationHours) || math.IsInf(durationHours, 0) {
		return Split{}, ErrInvalidDuration
	}
	if hourlyRate.Amount < 0 {
		return Split{}, ErrInvalidRate
	}
	if err := commission.Validate(); err != nil {
		return Split{}, err
	}
	total := money.Money{Amount: int64(math.Round(float64(hourlyRate.Amount) * durationHours)), Currency: currency}
	platform := total.Percent(commission.PlatformPercent)
	groupOwner := total.Percent(commission.GroupOwnerPercent)
	owner := money.Money{Amount: total.Amount - platform.Amount - groupOwner.Amount, Currency: currency}
	return Split{
		Total:         total,
		PlatformCut:   platform,
		GroupOwnerCut: groupOwner,
		OwnerAmount:   owner,
		PaymentStatus: PaymentPending,
	}, nil
}

// Additional prices extra hours at the hourly rate without commission, used for extensions.
func Additional(kind Kind, extraHours float64, hourlyRate money.Money) money.Money {
	if kind == KindBusiness || extraHours <= 0 {
		return money.Zero(hourlyRate.Currency)
	}
	return money.Money{Amount: int64(math.Round(float64(hourlyRate.Amount) * extraHours)), Currency: hourlyRate.Currency}
}
