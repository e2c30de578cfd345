package dto

import (
	domainbooking "carrental/internal/domain/booking"
	"carrental/internal/domain/timezone"
	domainuser "carrental/internal/domain/user"
)

// BookingNotice is the data handed to e-mail templates.
type BookingNotice struct {
	RecipientName string
	BookingID     string
	VehicleID     string
	Kind          string
	Status        string
	LocalStart    string
	LocalEnd      string
	Timezone      string
	Total         string
	Detail        string
}

func MapNotice(b *domainbooking.Booking, u *domainuser.User, tz *timezone.Normalizer) BookingNotice {
	n := BookingNotice{
		BookingID:  string(b.ID),
		VehicleID:  b.VehicleID,
		Kind:       string(b.Kind),
		Status:     string(b.Status),
		LocalStart: tz.MustDisplay(b.Period.Start, b.Timezone),
		LocalEnd:   tz.MustDisplay(b.Period.End, b.Timezone),
		Timezone:   tz.ZoneOrDefault(b.Timezone),
		Total:      b.Price.Total.String(),
	}
	if u != nil {
		n.RecipientName = u.Name
	}
	return n
}
