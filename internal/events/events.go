// Package events provides event types and publishing infrastructure for
// crew. Events feed live dashboard subscribers and the derived SQLite
// journal; nothing in the coordination core depends on their delivery.
package events

import (
	"sync"
	"time"
)

// EventType defines the type of event.
type EventType string

const (
	// EventTaskTransitioned indicates a task status change.
	EventTaskTransitioned EventType = "task_transitioned"
	// EventTaskBlocked indicates a task was forced into blocked.
	EventTaskBlocked EventType = "task_blocked"
	// EventFeatureTransitioned indicates a feature status change.
	EventFeatureTransitioned EventType = "feature_transitioned"
	// EventLockAcquired indicates locks were granted to a task.
	EventLockAcquired EventType = "lock_acquired"
	// EventLockConflict indicates an acquire request was refused.
	EventLockConflict EventType = "lock_conflict"
	// EventLockReleased indicates a task's locks were released.
	EventLockReleased EventType = "lock_released"
	// EventLockReaped indicates expired locks were reclaimed.
	EventLockReaped EventType = "lock_reaped"
	// EventIndexRebuilt indicates a derived index was recomputed.
	EventIndexRebuilt EventType = "index_rebuilt"
)

// Event represents a published event.
type Event struct {
	Type     EventType `json:"type"`
	EntityID string    `json:"entity_id"`
	Data     any       `json:"data"`
	Time     time.Time `json:"time"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, entityID string, data any) Event {
	return Event{
		Type:     eventType,
		EntityID: entityID,
		Data:     data,
		Time:     time.Now().UTC(),
	}
}

// GlobalEntityID is the special entity ID for subscribing to all events.
const GlobalEntityID = "*"

// Publisher defines the interface for event publishing.
type Publisher interface {
	// Publish sends an event to all subscribers of the entity.
	Publish(event Event)
	// Subscribe returns a channel that receives events for the given
	// entity. Use GlobalEntityID ("*") to receive all events.
	Subscribe(entityID string) <-chan Event
	// Unsubscribe removes a subscription channel.
	Unsubscribe(entityID string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// MemoryPublisher is an in-memory implementation of Publisher.
type MemoryPublisher struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets the channel buffer size for subscribers.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.bufferSize = size
	}
}

// NewMemoryPublisher creates a new in-memory publisher.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		subscribers: make(map[string][]chan Event),
		bufferSize:  100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends an event to entity-specific and global subscribers.
// Non-blocking: subscribers with full buffers miss the event.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	for _, ch := range p.subscribers[event.EntityID] {
		select {
		case ch <- event:
		default:
		}
	}

	if event.EntityID != GlobalEntityID {
		for _, ch := range p.subscribers[GlobalEntityID] {
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Subscribe returns a channel that receives events for the given entity.
func (p *MemoryPublisher) Subscribe(entityID string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, p.bufferSize)
	p.subscribers[entityID] = append(p.subscribers[entityID], ch)
	return ch
}

// Unsubscribe removes a subscription channel.
func (p *MemoryPublisher) Unsubscribe(entityID string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[entityID]
	for i, sub := range subs {
		if sub == ch {
			p.subscribers[entityID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
}

// Close shuts down the publisher and closes all subscriber channels.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for _, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	p.subscribers = make(map[string][]chan Event)
}

// NoOpPublisher discards all events. Used where no subscriber or journal
// is configured.
type NoOpPublisher struct{}

// Publish discards the event.
func (NoOpPublisher) Publish(Event) {}

// Subscribe returns a closed channel.
func (NoOpPublisher) Subscribe(string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe is a no-op.
func (NoOpPublisher) Unsubscribe(string, <-chan Event) {}

// Close is a no-op.
func (NoOpPublisher) Close() {}
