package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "carrental/internal/app/outbox"
)

type fakeQueue struct {
	pending []*EventDocument
	sent    []string
	failed  map[string]time.Time
}

func (q *fakeQueue) Claim(ctx context.Context, workerID string) (*EventDocument, error) {
	if len(q.pending) == 0 {
		return nil, nil
	}
	doc := q.pending[0]
	q.pending = q.pending[1:]
	doc.ClaimedBy = workerID
	return doc, nil
}

func (q *fakeQueue) MarkSent(ctx context.Context, id string) error {
	q.sent = append(q.sent, id)
	return nil
}

func (q *fakeQueue) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	if q.failed == nil {
		q.failed = map[string]time.Time{}
	}
	q.failed[id] = next
	return nil
}

type recordingProducer struct {
	topics []string
	fail   error
}

func (p *recordingProducer) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.fail != nil {
		return p.fail
	}
	p.topics = append(p.topics, topic)
	return nil
}

func eventDoc(id, name string) *EventDocument {
	return &EventDocument{
		ID:         id,
		Name:       name,
		Payload:    []byte(`{"booking_id":"b-1","status":"confirmed"}`),
		OccurredAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Aggregate:  "b-1",
		Headers:    map[string]string{appoutbox.HeaderEventID: id},
	}
}

func TestWorkerDrainPublishesAndMarksSent(t *testing.T) {
	q := &fakeQueue{pending: []*EventDocument{eventDoc("e1", "booking.created"), eventDoc("e2", "booking.cancelled")}}
	p := &recordingProducer{}
	w := &Worker{Store: q, Producer: p, ID: "w1", TopicPrefix: "dev."}

	n, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"e1", "e2"}, q.sent)
	assert.Equal(t, []string{"dev.booking.events.v1", "dev.booking.events.v1"}, p.topics)
}

func TestWorkerBacksOffOnPublishFailure(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	doc := eventDoc("e1", "booking.created")
	doc.Attempts = 1
	q := &fakeQueue{pending: []*EventDocument{doc}}
	w := &Worker{
		Store:    q,
		Producer: &recordingProducer{fail: errors.New("broker down")},
		Backoff:  []time.Duration{time.Second, time.Minute},
		Now:      func() time.Time { return now },
	}

	_, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Empty(t, q.sent)
	assert.Equal(t, now.Add(time.Minute), q.failed["e1"])
}

func TestCloudEventRoundTrip(t *testing.T) {
	rec := eventDoc("e7", "booking.extended").Record()
	rec.Headers["traceparent"] = "00-abc-def-01"

	payload, headers, err := EncodeCloudEvent(rec, DefaultSource)
	require.NoError(t, err)
	assert.Equal(t, ContentType, headers["content-type"])
	assert.Contains(t, string(payload), `"type":"booking.extended.v1"`)
	assert.Contains(t, string(payload), `"source":"app://carrental"`)

	got, err := DecodeCloudEvent(payload, headers)
	require.NoError(t, err)
	assert.Equal(t, "e7", got.ID)
	assert.Equal(t, "booking.extended", got.Name)
	assert.Equal(t, "b-1", got.Aggregate)
	assert.JSONEq(t, string(rec.Payload), string(got.Payload))
	assert.True(t, rec.OccurredAt.Equal(got.OccurredAt))

	_, err = DecodeCloudEvent([]byte(`{"hello":"world"}`), nil)
	assert.ErrorIs(t, err, ErrNotCloudEvent)

	_, _, err = EncodeCloudEvent(appoutbox.EventRecord{ID: "x", Name: "booking.created", Payload: []byte("nope")}, DefaultSource)
	assert.Error(t, err)
}

func TestDirectProducerDeliversDecodedRecord(t *testing.T) {
	var got []appoutbox.EventRecord
	p := DirectProducer{Handlers: []RecordHandler{func(_ context.Context, rec appoutbox.EventRecord) error {
		got = append(got, rec)
		return nil
	}}}
	q := &fakeQueue{pending: []*EventDocument{eventDoc("e1", "booking.created")}}
	w := &Worker{Store: q, Producer: p}

	_, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "booking.created", got[0].Name)
	assert.Equal(t, []string{"e1"}, q.sent)
}
