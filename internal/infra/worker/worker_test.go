package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrental/internal/app/commands"
	"carrental/internal/app/dto"
	bookinghandlers "carrental/internal/app/handlers/booking"
	"carrental/internal/app/schedule"
	"carrental/internal/infra/storage/memory"
)

func TestJobRunnerTickRunsDueJobsOnly(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := memory.NewJobStore()
	ctx := context.Background()
	_, err := store.Schedule(ctx, now.Add(-time.Minute), schedule.JobStartBooking, schedule.Payload{BookingID: "b-1"})
	require.NoError(t, err)
	_, err = store.Schedule(ctx, now.Add(time.Hour), schedule.JobEndBooking, schedule.Payload{BookingID: "b-1"})
	require.NoError(t, err)

	var seen []string
	runner := &JobRunner{
		Store: store,
		Handler: schedule.JobHandlerFunc(func(_ context.Context, job schedule.Job) error {
			seen = append(seen, job.Name)
			return nil
		}),
		Clock: func() time.Time { return now },
	}

	assert.Equal(t, 1, runner.Tick(ctx))
	assert.Equal(t, []string{schedule.JobStartBooking}, seen)
	assert.Len(t, store.Jobs(), 1)
}

func TestJobRunnerKeepsFailedJobs(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := memory.NewJobStore()
	_, err := store.Schedule(context.Background(), now, schedule.JobEndBooking, schedule.Payload{BookingID: "b-2"})
	require.NoError(t, err)

	runner := &JobRunner{
		Store:   store,
		Handler: schedule.JobHandlerFunc(func(context.Context, schedule.Job) error { return errors.New("mongo down") }),
		Clock:   func() time.Time { return now },
	}
	assert.Equal(t, 0, runner.Tick(context.Background()))
	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Attempts)
}

func TestJobRunnerRequiresDependencies(t *testing.T) {
	assert.ErrorIs(t, (&JobRunner{}).Run(context.Background()), ErrRunnerNotConfigured)
}

func TestSweeperDispatchesExpiry(t *testing.T) {
	bus := commands.NewInMemoryBus()
	var got time.Duration
	cmd := bookinghandlers.ExpireUnpaidCommand{}
	commands.RegisterHandler[bookinghandlers.ExpireUnpaidCommand, *dto.ExpireResult](bus, cmd.Key(),
		commands.HandlerFunc[bookinghandlers.ExpireUnpaidCommand, *dto.ExpireResult](
			func(_ context.Context, c bookinghandlers.ExpireUnpaidCommand) (*dto.ExpireResult, error) {
				got = c.Grace
				return &dto.ExpireResult{Expired: []string{"b-1"}}, nil
			}))

	s := NewSweeper(bus, "@every 5m", 2*time.Hour, nil)
	res := s.Sweep(context.Background())
	require.NotNil(t, res)
	assert.Equal(t, []string{"b-1"}, res.Expired)
	assert.Equal(t, 2*time.Hour, got)
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(commands.NewInMemoryBus(), "every now and then", time.Hour, nil)
	assert.Error(t, s.Start())
}
