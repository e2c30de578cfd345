package memory

import (
	"context"
	"sync"

	appoutbox "carrental/internal/app/outbox"
)

// Outbox keeps recorded events in memory and hands them to subscribers on Flush.
type Outbox struct {
	mu          sync.Mutex
	records     []appoutbox.EventRecord
	delivered   []appoutbox.EventRecord
	subscribers []func(context.Context, appoutbox.EventRecord)
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

// Subscribe registers fn for every flushed event. Used to run notifications in-process.
func (o *Outbox) Subscribe(fn func(context.Context, appoutbox.EventRecord)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers = append(o.subscribers, fn)
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
	return nil
}

func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	pending := o.records
	o.records = nil
	o.delivered = append(o.delivered, pending...)
	subs := append(([]func(context.Context, appoutbox.EventRecord))(nil), o.subscribers...)
	o.mu.Unlock()
	for _, rec := range pending {
		for _, fn := range subs {
			fn(ctx, rec)
		}
	}
	return nil
}

// Pending returns the events recorded since the last Flush.
func (o *Outbox) Pending() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]appoutbox.EventRecord(nil), o.records...)
}

// Names lists the names of pending and delivered events in recording order.
func (o *Outbox) Names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.delivered)+len(o.records))
	for _, r := range o.delivered {
		out = append(out, r.Name)
	}
	for _, r := range o.records {
		out = append(out, r.Name)
	}
	return out
}

var _ appoutbox.Outbox = (*Outbox)(nil)
