package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"carrental/internal/app/schedule"
)

// JobStore is an in-memory schedule.Scheduler. RunDue delivers due jobs.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]schedule.Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]schedule.Job)}
}

func (s *JobStore) Schedule(ctx context.Context, runAt time.Time, name string, payload schedule.Payload) (schedule.JobHandle, error) {
	if err := ctx.Err(); err != nil {
		return schedule.JobHandle{}, err
	}
	job := schedule.Job{ID: uuid.NewString(), Name: name, Payload: payload, RunAt: runAt.UTC()}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return schedule.JobHandle{ID: job.ID, Name: name, RunAt: job.RunAt}, nil
}

func (s *JobStore) Cancel(ctx context.Context, m schedule.Matcher) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, job := range s.jobs {
		if m.Matches(job.Name, job.Payload) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

// Jobs returns the queued jobs ordered by run time.
func (s *JobStore) Jobs() []schedule.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schedule.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].RunAt.Equal(out[k].RunAt) {
			return out[i].Name < out[k].Name
		}
		return out[i].RunAt.Before(out[k].RunAt)
	})
	return out
}

// RunDue hands every job due at now to h in run-time order. Failed jobs stay
// queued with their attempt count raised; the first error is returned.
func (s *JobStore) RunDue(ctx context.Context, h schedule.JobHandler, now time.Time) (int, error) {
	var (
		ran      int
		firstErr error
	)
	for _, job := range s.Jobs() {
		if job.RunAt.After(now) {
			break
		}
		s.mu.Lock()
		_, queued := s.jobs[job.ID]
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		if !queued {
			continue
		}
		job.Attempts++
		if err := h.HandleJob(ctx, job); err != nil {
			s.mu.Lock()
			s.jobs[job.ID] = job
			s.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ran++
	}
	return ran, firstErr
}

var _ schedule.Scheduler = (*JobStore)(nil)
