package daterange

import (
	"errors"
	"time"
)

var (
	ErrInvalidRange = errors.New("daterange: end must be after start")
)

// Range represents a half-open interval [Start, End) of UTC instants.
type Range struct {
	Start time.Time
	End   time.Time
}

func New(start, end time.Time) (Range, error) {
	r := Range{Start: start.UTC(), End: end.UTC()}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidRange
	}
	if !r.End.After(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Hours returns the fractional number of hours covered by the range.
func (r Range) Hours() float64 {
	return r.Duration().Hours()
}

// Overlaps reports whether two ranges share an instant. Touching ends do not overlap.
func (r Range) Overlaps(other Range) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

func (r Range) Contains(other Range) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

func (r Range) ContainsInstant(t time.Time) bool {
	t = t.UTC()
	return !t.Before(r.Start) && t.Before(r.End)
}

func (r Range) Adjacent(other Range) bool {
	return r.End.Equal(other.Start) || r.Start.Equal(other.End)
}

// WithEnd returns a copy of the range ending at end.
func (r Range) WithEnd(end time.Time) (Range, error) {
	return New(r.Start, end)
}
