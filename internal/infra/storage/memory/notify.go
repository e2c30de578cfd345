package memory

import (
	"context"
	"strconv"
	"sync"

	"carrental/internal/app/policies"
)

// SentMessage is one message captured by Notifier.
type SentMessage struct {
	To       string
	Template string
	Data     any
}

// Notifier records messages instead of sending them.
type Notifier struct {
	mu   sync.Mutex
	sent []SentMessage
	Fail error
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Send(ctx context.Context, to, template string, data any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail != nil {
		return n.Fail
	}
	n.sent = append(n.sent, SentMessage{To: to, Template: template, Data: data})
	return nil
}

func (n *Notifier) Sent() []SentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentMessage(nil), n.sent...)
}

// Templates lists the templates sent, in order.
func (n *Notifier) Templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.Template)
	}
	return out
}

// Calendar keeps calendar events in memory.
type Calendar struct {
	mu     sync.Mutex
	seq    int
	events map[string]policies.CalendarEvent
}

func NewCalendar() *Calendar {
	return &Calendar{events: make(map[string]policies.CalendarEvent)}
}

func (c *Calendar) CreateEvent(ctx context.Context, ev policies.CalendarEvent) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	id := "evt_" + ev.BookingID + "_" + strconv.Itoa(c.seq)
	c.events[id] = ev
	return id, nil
}

func (c *Calendar) UpdateEvent(ctx context.Context, eventID string, ev policies.CalendarEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[eventID] = ev
	return nil
}

func (c *Calendar) DeleteEvent(ctx context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.events, eventID)
	return nil
}

func (c *Calendar) Event(eventID string) (policies.CalendarEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.events[eventID]
	return ev, ok
}

var (
	_ policies.Notifier = (*Notifier)(nil)
	_ policies.Calendar = (*Calendar)(nil)
)
