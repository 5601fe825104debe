// Package bus fans dispatch and lifecycle events out to named subscribers.
// The websocket control API streams these to connected operators; the
// dispatcher publishes them as sends resolve. Publishing never blocks: slow
// subscribers drop events.
package bus

import (
	"sync"
	"time"
)

// Event types flowing through the bus.
const (
	EventProtocolStarted = "protocol.started"
	EventProtocolStopped = "protocol.stopped"
	EventMessageQueued   = "message.queued"
	EventMessageSent     = "message.sent"
	EventMessageFailed   = "message.failed"
)

// Event is a single observability event.
type Event struct {
	Type      string                 `json:"type"`
	Protocol  string                 `json:"protocol,omitempty"`
	MessageID string                 `json:"message_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType, protocolName, messageID string) Event {
	return Event{
		Type:      eventType,
		Protocol:  protocolName,
		MessageID: messageID,
		Timestamp: time.Now().UTC(),
	}
}

// WithData attaches extra payload fields to the event.
func (e Event) WithData(data map[string]interface{}) Event {
	e.Data = data
	return e
}

// Subscriber is a named tap on the event stream. Multiple subscribers
// independently receive every published event (fan-out).
type Subscriber struct {
	Name string
	ch   chan Event
}

// Bus is the in-process event fan-out.
type Bus struct {
	subs      []*Subscriber
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New creates an event bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe creates a named subscriber that receives copies of all events.
// The returned channel is buffered; slow consumers drop.
func (b *Bus) Subscribe(name string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan Event, 64)}
	b.subs = append(b.subs, sub)
	return sub.ch
}

// Publish delivers the event to all subscribers without blocking.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default: // drop if slow
		}
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.closed = true
		for _, sub := range b.subs {
			close(sub.ch)
		}
		b.subs = nil
	})
}
