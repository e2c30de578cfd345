// Package schedule is the deferred action port: time-stamped jobs delivered at
// least once, cancellable by booking.
package schedule

import (
	"context"
	"errors"
	"time"
)

const (
	JobStartBooking  = "start booking"
	JobEndBooking    = "end booking"
	JobReminderStart = "booking reminder start"
	JobReminderEnd   = "booking reminder end"
)

// DefaultReminderLead is how long before start and end the reminders fire.
const DefaultReminderLead = 10 * time.Minute

var ErrUnknownJob = errors.New("schedule: no handler for job")

type Payload struct {
	BookingID string `json:"bookingId"`
}

type JobHandle struct {
	ID    string
	Name  string
	RunAt time.Time
}

// Matcher selects jobs by booking and, optionally, by name.
type Matcher struct {
	BookingID string
	Names     []string
}

func (m Matcher) Matches(name string, payload Payload) bool {
	if m.BookingID != "" && payload.BookingID != m.BookingID {
		return false
	}
	if len(m.Names) == 0 {
		return true
	}
	for _, n := range m.Names {
		if n == name {
			return true
		}
	}
	return false
}

type Scheduler interface {
	Schedule(ctx context.Context, runAt time.Time, name string, payload Payload) (JobHandle, error)
	Cancel(ctx context.Context, matcher Matcher) (int, error)
}

// Job is a due job handed to a JobHandler.
type Job struct {
	ID       string
	Name     string
	Payload  Payload
	RunAt    time.Time
	Attempts int
}

type JobHandler interface {
	HandleJob(ctx context.Context, job Job) error
}

type JobHandlerFunc func(ctx context.Context, job Job) error

func (f JobHandlerFunc) HandleJob(ctx context.Context, job Job) error { return f(ctx, job) }

// Router dispatches jobs by name.
type Router map[string]JobHandler

func (r Router) HandleJob(ctx context.Context, job Job) error {
	h, ok := r[job.Name]
	if !ok {
		return ErrUnknownJob
	}
	return h.HandleJob(ctx, job)
}

// Plan is one job a booking needs.
type Plan struct {
	Name  string
	RunAt time.Time
}

// LifecyclePlan returns the jobs for a booking window: start and end always,
// each reminder only while its fire time is still after now.
func LifecyclePlan(start, end, now time.Time, lead time.Duration) []Plan {
	if lead <= 0 {
		lead = DefaultReminderLead
	}
	plans := []Plan{{Name: JobStartBooking, RunAt: start}, {Name: JobEndBooking, RunAt: end}}
	if at := start.Add(-lead); at.After(now) {
		plans = append(plans, Plan{Name: JobReminderStart, RunAt: at})
	}
	if at := end.Add(-lead); at.After(now) {
		plans = append(plans, Plan{Name: JobReminderEnd, RunAt: at})
	}
	return plans
}

// EndPlan is the part of LifecyclePlan that moves on extension.
func EndPlan(end, now time.Time, lead time.Duration) []Plan {
	if lead <= 0 {
		lead = DefaultReminderLead
	}
	plans := []Plan{{Name: JobEndBooking, RunAt: end}}
	if at := end.Add(-lead); at.After(now) {
		plans = append(plans, Plan{Name: JobReminderEnd, RunAt: at})
	}
	return plans
}
