package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventCheckoutStarted  EventType = "checkout.started"
	EventOrderPending     EventType = "order.pending"
	EventPaymentCompleted EventType = "payment.completed"
	EventOrderCompleted   EventType = "order.completed"
	EventPaymentFailed    EventType = "payment.failed"
	EventOrderDisputed    EventType = "order.disputed"
	EventOrderRefunded    EventType = "order.refunded"
	EventStockLow         EventType = "stock.low"
	EventError            EventType = "error"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
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

// Publish sends an event to all subscribers. Subscribers run in their own
// goroutines so a slow outbound webhook cannot block the publisher.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishOrderCompleted publishes an order completed event
func (eb *EventBus) PublishOrderCompleted(orderNumber, customerEmail string, amountCents int64, currency string) {
	eb.Publish(Event{
		Type: EventOrderCompleted,
		Data: map[string]interface{}{
			"order_number":   orderNumber,
			"customer_email": customerEmail,
			"amount_cents":   amountCents,
			"currency":       currency,
		},
	})
}

// PublishPaymentFailed publishes a payment failed event
func (eb *EventBus) PublishPaymentFailed(paymentIntentID, customerEmail, reason string) {
	eb.Publish(Event{
		Type: EventPaymentFailed,
		Data: map[string]interface{}{
			"payment_intent_id": paymentIntentID,
			"customer_email":    customerEmail,
			"error_message":     reason,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
