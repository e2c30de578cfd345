package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	bookinghandlers "carrental/internal/app/handlers/booking"
)

// Sweeper cancels bookings that stayed unpaid past the grace period on a cron schedule.
type Sweeper struct {
	cron     *cron.Cron
	bus      commands.Bus
	grace    time.Duration
	schedule string
	logger   *slog.Logger
}

func NewSweeper(bus commands.Bus, schedule string, grace time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cron:     cron.New(),
		bus:      bus,
		grace:    grace,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the sweep and starts the cron loop.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("worker: sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("payment sweeper started", "schedule", s.schedule, "grace", s.grace)
	return nil
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep runs one expiry pass.
func (s *Sweeper) Sweep(ctx context.Context) *dto.ExpireResult {
	started := time.Now()
	res, err := commands.Dispatch[bookinghandlers.ExpireUnpaidCommand, *dto.ExpireResult](ctx, s.bus, bookinghandlers.ExpireUnpaidCommand{Grace: s.grace})
	if err != nil {
		s.logger.Error("payment sweep failed", "error", err)
		return nil
	}
	if len(res.Expired) > 0 || len(res.Failed) > 0 {
		s.logger.Info("payment sweep done", "expired", len(res.Expired), "failed", len(res.Failed), "duration", time.Since(started))
	}
	return res
}
