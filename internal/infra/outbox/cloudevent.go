package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	appoutbox "carrental/internal/app/outbox"
)

const (
	DefaultSource      = "app://carrental"
	ContentType        = "application/cloudevents+json"
	cloudEventsVersion = "1.0"
	typeSuffix         = ".v1"
)

var ErrNotCloudEvent = errors.New("outbox: payload is not a cloudevent")

type cloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	TraceParent     string          `json:"traceparent,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// EncodeCloudEvent wraps rec in a structured CloudEvent. The event id is the
// outbox id so consumers can deduplicate redeliveries.
func EncodeCloudEvent(rec appoutbox.EventRecord, source string) ([]byte, map[string]string, error) {
	if !json.Valid(rec.Payload) {
		return nil, nil, errors.New("outbox: event payload is not json")
	}
	evt := cloudEvent{
		SpecVersion:     cloudEventsVersion,
		ID:              rec.ID,
		Type:            rec.Name + typeSuffix,
		Source:          source,
		Subject:         rec.Aggregate,
		Time:            rec.OccurredAt.UTC(),
		DataContentType: "application/json",
		TraceParent:     rec.Headers["traceparent"],
		Data:            rec.Payload,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{"content-type": ContentType}
	for k, v := range rec.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

// DecodeCloudEvent is the inverse of EncodeCloudEvent.
func DecodeCloudEvent(payload []byte, headers map[string]string) (appoutbox.EventRecord, error) {
	var evt cloudEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return appoutbox.EventRecord{}, err
	}
	if evt.SpecVersion == "" || evt.ID == "" || evt.Type == "" {
		return appoutbox.EventRecord{}, ErrNotCloudEvent
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return appoutbox.EventRecord{
		ID:         evt.ID,
		Name:       strings.TrimSuffix(evt.Type, typeSuffix),
		Payload:    []byte(evt.Data),
		OccurredAt: evt.Time,
		Aggregate:  evt.Subject,
		Headers:    out,
	}, nil
}

// RecordHandler consumes relayed events.
type RecordHandler func(ctx context.Context, rec appoutbox.EventRecord) error

// DirectProducer hands relayed events straight to in-process handlers. It
// stands in for the broker when none is configured.
type DirectProducer struct {
	Handlers []RecordHandler
}

func (p DirectProducer) Publish(ctx context.Context, _ string, _ string, payload []byte, headers map[string]string) error {
	rec, err := DecodeCloudEvent(payload, headers)
	if err != nil {
		return err
	}
	var errs []error
	for _, h := range p.Handlers {
		if err := h(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Producer = DirectProducer{}
