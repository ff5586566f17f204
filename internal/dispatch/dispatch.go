// Package dispatch delivers store events to admin-configured outbound
// webhooks. Discord webhook URLs get a formatted embed, anything else gets
// the raw event JSON.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gamekey-store/internal/database"
	"gamekey-store/internal/events"
	"gamekey-store/internal/logging"
)

const (
	queueSize       = 256
	deliveryTimeout = 10 * time.Second
)

// Store is the repository surface the dispatcher reads targets from
type Store interface {
	GetWebhooksForEvent(ctx context.Context, eventType string) ([]*database.Webhook, error)
}

// Dispatcher fans events out to their subscribed webhook targets. Delivery
// runs on a single worker goroutine fed by a bounded queue; a full queue
// drops events rather than blocking the publisher.
type Dispatcher struct {
	store       Store
	fallbackURL string
	client      *http.Client
	queue       chan events.Event
	stop        chan struct{}
	wg          sync.WaitGroup
	logger      zerolog.Logger
}

// NewDispatcher creates a dispatcher. fallbackURL, when set, receives any
// event that matched no configured webhook rows.
func NewDispatcher(store Store, fallbackURL string) *Dispatcher {
	return &Dispatcher{
		store:       store,
		fallbackURL: fallbackURL,
		client:      &http.Client{Timeout: deliveryTimeout},
		queue:       make(chan events.Event, queueSize),
		stop:        make(chan struct{}),
		logger:      logging.For("dispatch"),
	}
}

// Start subscribes to the bus and launches the delivery worker
func (d *Dispatcher) Start(bus *events.EventBus) {
	bus.SubscribeAll(d.enqueue)
	d.wg.Add(1)
	go d.worker()
}

// Stop drains the worker
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

func (d *Dispatcher) enqueue(event events.Event) {
	select {
	case d.queue <- event:
	default:
		d.logger.Warn().Str("type", string(event.Type)).Msg("dispatch queue full, event dropped")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.dispatch(event)
		case <-d.stop:
			// drain what is already queued before exiting
			for {
				select {
				case event := <-d.queue:
					d.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) dispatch(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	hooks, err := d.store.GetWebhooksForEvent(ctx, string(event.Type))
	if err != nil {
		d.logger.Error().Err(err).Str("type", string(event.Type)).Msg("webhook lookup failed")
		hooks = nil
	}

	if len(hooks) == 0 {
		if d.fallbackURL != "" {
			d.deliver(ctx, d.fallbackURL, event)
		}
		return
	}
	for _, hook := range hooks {
		d.deliver(ctx, hook.URL, event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, url string, event events.Event) {
	var body []byte
	var err error
	if IsDiscordURL(url) {
		body, err = DiscordPayload(event)
	} else {
		body, err = json.Marshal(map[string]interface{}{
			"event":     string(event.Type),
			"timestamp": event.Timestamp.UTC().Format(time.RFC3339),
			"data":      event.Data,
		})
	}
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to encode webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("webhook delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		d.logger.Warn().
			Int("status", resp.StatusCode).
			Str("type", string(event.Type)).
			Msg("webhook target rejected delivery")
		return
	}
	d.logger.Debug().Str("type", string(event.Type)).Msg("webhook delivered")
}

// IsDiscordURL reports whether a target should receive Discord embed format
func IsDiscordURL(url string) bool {
	return strings.Contains(url, "discord.com/api/webhooks") ||
		strings.Contains(url, "discordapp.com/api/webhooks")
}

const (
	colorGreen  = 0x2ecc71
	colorRed    = 0xe74c3c
	colorOrange = 0xe67e22
	colorBlue   = 0x3498db
)

func embedStyle(t events.EventType) (string, int) {
	switch t {
	case events.EventOrderCompleted:
		return "Order Completed", colorGreen
	case events.EventPaymentCompleted:
		return "Payment Received", colorGreen
	case events.EventPaymentFailed:
		return "Payment Failed", colorRed
	case events.EventOrderDisputed:
		return "Order Disputed", colorRed
	case events.EventOrderRefunded:
		return "Order Refunded", colorOrange
	case events.EventStockLow:
		return "Low Stock Warning", colorOrange
	case events.EventError:
		return "Store Error", colorRed
	default:
		return string(t), colorBlue
	}
}

// DiscordPayload renders an event as a Discord webhook embed
func DiscordPayload(event events.Event) ([]byte, error) {
	title, color := embedStyle(event.Type)

	type field struct {
		Name   string `json:"name"`
		Value  string `json:"value"`
		Inline bool   `json:"inline"`
	}

	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]field, 0, len(keys))
	for _, k := range keys {
		value := fmt.Sprintf("%v", event.Data[k])
		if k == "amount_cents" {
			if cents, ok := event.Data[k].(int64); ok {
				value = fmt.Sprintf("%.2f", float64(cents)/100)
			}
		}
		fields = append(fields, field{
			Name:   strings.ReplaceAll(k, "_", " "),
			Value:  value,
			Inline: true,
		})
	}

	return json.Marshal(map[string]interface{}{
		"embeds": []map[string]interface{}{{
			"title":     title,
			"color":     color,
			"fields":    fields,
			"timestamp": event.Timestamp.UTC().Format(time.RFC3339),
		}},
	})
}
