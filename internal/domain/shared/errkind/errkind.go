// Package errkind defines the error categories surfaced to callers of the booking core.
package errkind

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidState    = errors.New("invalid state")
	ErrPolicyViolation = errors.New("policy violation")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("unavailable")
	ErrPayment         = errors.New("payment error")
	ErrValidation      = errors.New("validation error")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrNotFound, "NotFound"},
	{ErrForbidden, "Forbidden"},
	{ErrInvalidState, "InvalidState"},
	{ErrPolicyViolation, "PolicyViolation"},
	{ErrConflict, "Conflict"},
	{ErrUnavailable, "Unavailable"},
	{ErrPayment, "PaymentError"},
	{ErrValidation, "ValidationError"},
}

// Of returns the kind name of err, or "Internal" when it carries none.
func Of(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// Known reports whether err carries one of the kinds above.
func Known(err error) bool {
	return err != nil && Of(err) != "Internal"
}

// Restore rebuilds an error from a kind name and its rendered message, so
// errors.Is keeps working after the error crossed a serialisation boundary.
func Restore(name, message string) error {
	for _, k := range kinds {
		if k.name == name {
			return &restored{kind: k.err, msg: message}
		}
	}
	return errors.New(message)
}

type restored struct {
	kind error
	msg  string
}

func (e *restored) Error() string { return e.msg }

func (e *restored) Unwrap() error { return e.kind }
