// Package worker hosts the background loops: the deferred job runner and the
// unpaid booking sweeper.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"carrental/internal/app/schedule"
)

// DueRunner delivers the jobs due at now to h.
type DueRunner interface {
	RunDue(ctx context.Context, h schedule.JobHandler, now time.Time) (int, error)
}

// JobRunner polls a job store and hands due jobs to the lifecycle handlers.
type JobRunner struct {
	Store    DueRunner
	Handler  schedule.JobHandler
	Interval time.Duration
	Logger   *slog.Logger
	Clock    func() time.Time
}

var ErrRunnerNotConfigured = errors.New("worker: job runner missing dependencies")

func (r *JobRunner) Run(ctx context.Context) error {
	if r.Store == nil || r.Handler == nil {
		return ErrRunnerNotConfigured
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one poll. Handler failures are logged; the store retries them.
func (r *JobRunner) Tick(ctx context.Context) int {
	ran, err := r.Store.RunDue(ctx, r.Handler, r.now())
	if err != nil && ctx.Err() == nil {
		r.logger().Warn("deferred job failed", "ran", ran, "error", err)
	}
	if ran > 0 {
		r.logger().Debug("deferred jobs ran", "count", ran)
	}
	return ran
}

func (r *JobRunner) now() time.Time {
	if r.Clock != nil {
		return r.Clock().UTC()
	}
	return time.Now().UTC()
}

func (r *JobRunner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
