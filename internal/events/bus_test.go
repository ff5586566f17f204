package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records delivered events and lets tests wait for async delivery
type collector struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	events []Event
}

func (c *collector) expect(n int) { c.wg.Add(n) }

func (c *collector) handle(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.wg.Done()
}

func (c *collector) wait(t *testing.T) []Event {
	t.Helper()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event delivery")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestSubscribeDeliversMatchingType(t *testing.T) {
	bus := NewEventBus()
	got := &collector{}
	bus.Subscribe(EventOrderCompleted, got.handle)

	got.expect(1)
	bus.Publish(Event{Type: EventPaymentFailed})
	bus.Publish(Event{Type: EventOrderCompleted, Data: map[string]interface{}{"order_number": "MC-2026-1111"}})

	events := got.wait(t)
	require.Len(t, events, 1)
	assert.Equal(t, EventOrderCompleted, events[0].Type)
	assert.Equal(t, "MC-2026-1111", events[0].Data["order_number"])
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := NewEventBus()
	got := &collector{}
	bus.SubscribeAll(got.handle)

	got.expect(3)
	bus.Publish(Event{Type: EventCheckoutStarted})
	bus.Publish(Event{Type: EventStockLow})
	bus.Publish(Event{Type: EventError})

	events := got.wait(t)
	assert.Len(t, events, 3)
}

func TestPublishStampsTimestamp(t *testing.T) {
	bus := NewEventBus()
	got := &collector{}
	bus.SubscribeAll(got.handle)

	got.expect(1)
	bus.Publish(Event{Type: EventOrderPending})

	events := got.wait(t)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublishOrderCompletedPayload(t *testing.T) {
	bus := NewEventBus()
	got := &collector{}
	bus.Subscribe(EventOrderCompleted, got.handle)

	got.expect(1)
	bus.PublishOrderCompleted("MC-2026-2222", "buyer@example.com", 4999, "USD")

	events := got.wait(t)
	require.Len(t, events, 1)
	data := events[0].Data
	assert.Equal(t, "MC-2026-2222", data["order_number"])
	assert.Equal(t, "buyer@example.com", data["customer_email"])
	assert.Equal(t, int64(4999), data["amount_cents"])
	assert.Equal(t, "USD", data["currency"])
}
