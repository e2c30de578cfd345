// Package outbox is the port booking handlers record their domain events to.
// Records are flushed with the command that produced them and relayed to
// notification consumers afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"carrental/internal/domain/shared/events"
)

const (
	HeaderEventID   = "event-id"
	HeaderBookingID = "booking-id"
)

// EventRecord is an encoded domain event. Aggregate is the booking id and
// doubles as the broker partition key.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
	Flush(ctx context.Context) error
}

type EventEncoder interface {
	Encode(ev events.DomainEvent) (EventRecord, error)
}

var errUnnamedEvent = errors.New("outbox: event has no name")

// JSONEventEncoder marshals the event as its payload. IDGenerator defaults to
// random UUIDs.
type JSONEventEncoder struct {
	IDGenerator func() string
}

func (e JSONEventEncoder) Encode(ev events.DomainEvent) (EventRecord, error) {
	if ev.EventName() == "" {
		return EventRecord{}, errUnnamedEvent
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, fmt.Errorf("outbox: encode %s: %w", ev.EventName(), err)
	}
	id := uuid.NewString()
	if e.IDGenerator != nil {
		id = e.IDGenerator()
	}
	return EventRecord{
		ID:         id,
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt().UTC(),
		Aggregate:  ev.AggregateID(),
		Headers: map[string]string{
			HeaderEventID:   id,
			HeaderBookingID: ev.AggregateID(),
		},
	}, nil
}

// Drain encodes the events pending on source and adds them to box in the
// order they were raised.
func Drain(ctx context.Context, box Outbox, encoder EventEncoder, source interface{ DrainEvents() []events.DomainEvent }) error {
	evs := source.DrainEvents()
	if box == nil || len(evs) == 0 {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	for _, ev := range evs {
		rec, err := encoder.Encode(ev)
		if err != nil {
			return err
		}
		if err := box.Add(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
