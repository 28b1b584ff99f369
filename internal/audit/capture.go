package audit

import (
	"context"
	"sync"
)

// Capture is an in-memory sink for tests.
type Capture struct {
	mu     sync.Mutex
	events []Event
}

func (c *Capture) Record(_ context.Context, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *Capture) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// ByType returns the captured events with the given type, in order.
func (c *Capture) ByType(t string) []Event {
	var out []Event
	for _, ev := range c.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
