// internal/stream/collector.go
package stream

import "sync"

// Event is one recorded sink call.
type Event struct {
	Type string
	Data interface{}
}

// Collector is a Sink that records events instead of writing frames. The
// non-streaming endpoint and tests use it to inspect pipeline output.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) record(eventType string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, Event{Type: eventType, Data: data})
}

func (c *Collector) Start(messageID string)       { c.record("start", messageID) }
func (c *Collector) TextStart(textID string)      { c.record("text-start", textID) }
func (c *Collector) TextDelta(_, delta string)    { c.record("text-delta", delta) }
func (c *Collector) TextEnd(textID string)        { c.record("text-end", textID) }
func (c *Collector) Data(t string, d interface{}) { c.record("data-"+t, d) }
func (c *Collector) Finish(reason FinishReason, messageID string) {
	c.record("finish", string(reason))
}
func (c *Collector) Done() { c.record("done", nil) }

// Events returns a copy of the recorded events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Find returns the first event of the given type, or nil.
func (c *Collector) Find(eventType string) *Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.events {
		if c.events[i].Type == eventType {
			return &c.events[i]
		}
	}
	return nil
}

// FinishReason returns the recorded finish reason, or "".
func (c *Collector) FinishReason() string {
	if e := c.Find("finish"); e != nil {
		if s, ok := e.Data.(string); ok {
			return s
		}
	}
	return ""
}
