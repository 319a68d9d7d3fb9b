package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeOpened     EventType = "TRADE_OPENED"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventTradeUpdated    EventType = "TRADE_UPDATED"
	EventTradeDeleted    EventType = "TRADE_DELETED"
	EventReflectionSaved EventType = "REFLECTION_SAVED"
)

// Event represents a system event. UserID scopes delivery: subscribers that
// fan out to clients must only deliver an event to its owning user.
type Event struct {
	Type      EventType              `json:"type"`
	UserID    string                 `json:"user_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions. Delivery is
// synchronous and in-process; subscribers must not block.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subscribers[event.Type] {
		sub(event)
	}
	for _, sub := range eb.allSubs {
		sub(event)
	}
}
