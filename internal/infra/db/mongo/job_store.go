package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"carrental/internal/app/schedule"
)

const jobsCollection = "jobs"

const (
	jobQueued  = "QUEUED"
	jobClaimed = "CLAIMED"
)

// JobStore is a schedule.Scheduler backed by a Mongo collection. Workers claim
// due jobs with a lease; a job whose lease lapses is handed out again.
type JobStore struct {
	col      *mongo.Collection
	WorkerID string
	LockTTL  time.Duration
	Backoff  []time.Duration
	Batch    int
}

func NewJobStore(db *mongo.Database) *JobStore {
	return &JobStore{
		col:      db.Collection(jobsCollection),
		WorkerID: uuid.NewString(),
		LockTTL:  time.Minute,
		Backoff:  []time.Duration{10 * time.Second, time.Minute, 5 * time.Minute},
		Batch:    50,
	}
}

type jobDocument struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	BookingID string    `bson:"booking_id"`
	RunAt     time.Time `bson:"run_at"`
	State     string    `bson:"state"`
	Attempts  int       `bson:"attempts"`
	ClaimedBy string    `bson:"claimed_by,omitempty"`
	LockUntil time.Time `bson:"lock_until,omitempty"`
	LastError string    `bson:"last_error,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d jobDocument) toJob() schedule.Job {
	return schedule.Job{
		ID:       d.ID,
		Name:     d.Name,
		Payload:  schedule.Payload{BookingID: d.BookingID},
		RunAt:    d.RunAt,
		Attempts: d.Attempts,
	}
}

func jobIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "run_at", Value: 1}}},
		{Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "name", Value: 1}}},
	}
}

func (s *JobStore) Schedule(ctx context.Context, runAt time.Time, name string, payload schedule.Payload) (schedule.JobHandle, error) {
	doc := jobDocument{
		ID:        uuid.NewString(),
		Name:      name,
		BookingID: payload.BookingID,
		RunAt:     runAt.UTC(),
		State:     jobQueued,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return schedule.JobHandle{}, err
	}
	return schedule.JobHandle{ID: doc.ID, Name: name, RunAt: doc.RunAt}, nil
}

func (s *JobStore) Cancel(ctx context.Context, m schedule.Matcher) (int, error) {
	res, err := s.col.DeleteMany(ctx, jobMatcherFilter(m))
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func jobMatcherFilter(m schedule.Matcher) bson.M {
	filter := bson.M{}
	if m.BookingID != "" {
		filter["booking_id"] = m.BookingID
	}
	if len(m.Names) > 0 {
		filter["name"] = bson.M{"$in": m.Names}
	}
	return filter
}

// Claim leases the earliest job due at now, or returns nil when none is due.
func (s *JobStore) Claim(ctx context.Context, now time.Time) (*schedule.Job, error) {
	update := bson.M{
		"$set": bson.M{"state": jobClaimed, "claimed_by": s.WorkerID, "lock_until": now.Add(s.lockTTL())},
		"$inc": bson.M{"attempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "run_at", Value: 1}}).
		SetReturnDocument(options.After)
	var doc jobDocument
	if err := s.col.FindOneAndUpdate(ctx, claimFilter(now), update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	job := doc.toJob()
	return &job, nil
}

func claimFilter(now time.Time) bson.M {
	return bson.M{
		"run_at": bson.M{"$lte": now},
		"$or": bson.A{
			bson.M{"state": jobQueued},
			bson.M{"state": jobClaimed, "lock_until": bson.M{"$lte": now}},
		},
	}
}

// Complete removes a job this worker still holds.
func (s *JobStore) Complete(ctx context.Context, id string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": id, "claimed_by": s.WorkerID})
	return err
}

// Fail requeues a held job at next.
func (s *JobStore) Fail(ctx context.Context, id string, next time.Time, reason string) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "claimed_by": s.WorkerID}, bson.M{
		"$set":   bson.M{"state": jobQueued, "run_at": next, "last_error": reason},
		"$unset": bson.M{"claimed_by": "", "lock_until": ""},
	})
	return err
}

// RunDue claims and runs due jobs until none is left or the batch is spent.
// Failed jobs are requeued with backoff; the first error is returned.
func (s *JobStore) RunDue(ctx context.Context, h schedule.JobHandler, now time.Time) (int, error) {
	var (
		ran      int
		firstErr error
	)
	for i := 0; i < s.batch(); i++ {
		job, err := s.Claim(ctx, now)
		if err != nil {
			return ran, err
		}
		if job == nil {
			break
		}
		if herr := h.HandleJob(ctx, *job); herr != nil {
			if ferr := s.Fail(ctx, job.ID, now.Add(s.backoff(job.Attempts)), herr.Error()); ferr != nil {
				return ran, errors.Join(herr, ferr)
			}
			if firstErr == nil {
				firstErr = herr
			}
			continue
		}
		if err := s.Complete(ctx, job.ID); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, firstErr
}

func (s *JobStore) backoff(attempts int) time.Duration {
	if len(s.Backoff) == 0 {
		return 30 * time.Second
	}
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.Backoff) {
		idx = len(s.Backoff) - 1
	}
	return s.Backoff[idx]
}

func (s *JobStore) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return time.Minute
	}
	return s.LockTTL
}

func (s *JobStore) batch() int {
	if s.Batch <= 0 {
		return 50
	}
	return s.Batch
}

var _ schedule.Scheduler = (*JobStore)(nil)
