package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamekey-store/internal/database"
	"gamekey-store/internal/events"
)

type hookStore struct {
	mu    sync.Mutex
	hooks map[string][]*database.Webhook
}

func (s *hookStore) GetWebhooksForEvent(_ context.Context, eventType string) ([]*database.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks[eventType], nil
}

type capture struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (c *capture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func TestIsDiscordURL(t *testing.T) {
	assert.True(t, IsDiscordURL("https://discord.com/api/webhooks/123/token"))
	assert.True(t, IsDiscordURL("https://discordapp.com/api/webhooks/123/token"))
	assert.False(t, IsDiscordURL("https://hooks.example.com/store"))
	assert.False(t, IsDiscordURL("https://discord.com/channels/123"))
}

func TestDiscordPayloadEmbed(t *testing.T) {
	event := events.Event{
		Type:      events.EventOrderCompleted,
		Timestamp: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		Data: map[string]interface{}{
			"order_number": "MC-2026-4821",
			"amount_cents": int64(5998),
		},
	}

	body, err := DiscordPayload(event)
	require.NoError(t, err)

	var payload struct {
		Embeds []struct {
			Title  string `json:"title"`
			Color  int    `json:"color"`
			Fields []struct {
				Name   string `json:"name"`
				Value  string `json:"value"`
				Inline bool   `json:"inline"`
			} `json:"fields"`
			Timestamp string `json:"timestamp"`
		} `json:"embeds"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Embeds, 1)

	embed := payload.Embeds[0]
	assert.Equal(t, "Order Completed", embed.Title)
	assert.Equal(t, 0x2ecc71, embed.Color)
	assert.Equal(t, "2026-01-15T10:30:00Z", embed.Timestamp)

	// fields come out sorted by key, amounts formatted as decimal
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "amount cents", embed.Fields[0].Name)
	assert.Equal(t, "59.98", embed.Fields[0].Value)
	assert.Equal(t, "order number", embed.Fields[1].Name)
	assert.Equal(t, "MC-2026-4821", embed.Fields[1].Value)
}

func TestEmbedStyleFallback(t *testing.T) {
	title, color := embedStyle(events.EventType("something.else"))
	assert.Equal(t, "something.else", title)
	assert.Equal(t, colorBlue, color)

	title, color = embedStyle(events.EventPaymentFailed)
	assert.Equal(t, "Payment Failed", title)
	assert.Equal(t, colorRed, color)
}

func TestDispatchToConfiguredHook(t *testing.T) {
	received := &capture{}
	srv := httptest.NewServer(received.handler())
	defer srv.Close()

	store := &hookStore{hooks: map[string][]*database.Webhook{
		string(events.EventOrderCompleted): {{ID: "wh-1", URL: srv.URL}},
	}}
	d := NewDispatcher(store, "")

	d.dispatch(events.Event{
		Type:      events.EventOrderCompleted,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"order_number": "MC-2026-1234"},
	})

	require.Equal(t, 1, received.count())
	var raw struct {
		Event string                 `json:"event"`
		Data  map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(received.bodies[0], &raw))
	assert.Equal(t, string(events.EventOrderCompleted), raw.Event)
	assert.Equal(t, "MC-2026-1234", raw.Data["order_number"])
}

func TestDispatchFallbackWhenNoHooks(t *testing.T) {
	received := &capture{}
	srv := httptest.NewServer(received.handler())
	defer srv.Close()

	store := &hookStore{hooks: map[string][]*database.Webhook{}}
	d := NewDispatcher(store, srv.URL)

	d.dispatch(events.Event{Type: events.EventStockLow, Timestamp: time.Now()})
	assert.Equal(t, 1, received.count())

	// no fallback configured means the event goes nowhere
	quiet := NewDispatcher(store, "")
	quiet.dispatch(events.Event{Type: events.EventStockLow, Timestamp: time.Now()})
	assert.Equal(t, 1, received.count())
}

func TestStartStopDrainsQueue(t *testing.T) {
	received := &capture{}
	srv := httptest.NewServer(received.handler())
	defer srv.Close()

	store := &hookStore{hooks: map[string][]*database.Webhook{}}
	d := NewDispatcher(store, srv.URL)
	for i := 0; i < 5; i++ {
		d.enqueue(events.Event{Type: events.EventOrderCompleted, Timestamp: time.Now()})
	}

	d.Start(events.NewEventBus())
	d.Stop()

	assert.Equal(t, 5, received.count())
}
