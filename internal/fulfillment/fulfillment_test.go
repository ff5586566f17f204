package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamekey-store/internal/database"
	"gamekey-store/internal/events"
	"gamekey-store/internal/payment"
)

// memStore is an in-memory Store for pipeline tests
type memStore struct {
	orders        map[string]*database.Order
	items         map[string][]*database.OrderItem
	licenses      []*database.License
	stock         []*database.License
	sessions      map[string]*database.CheckoutSession
	seenEvents    map[string]bool
	couponUses    map[string]int
	nextLicenseID int
}

func newMemStore() *memStore {
	return &memStore{
		orders:     make(map[string]*database.Order),
		items:      make(map[string][]*database.OrderItem),
		sessions:   make(map[string]*database.CheckoutSession),
		seenEvents: make(map[string]bool),
		couponUses: make(map[string]int),
	}
}

func (m *memStore) addStock(n int, productID, variantID *string) {
	for i := 0; i < n; i++ {
		m.nextLicenseID++
		m.stock = append(m.stock, &database.License{
			ID:         fmt.Sprintf("lic-%d", m.nextLicenseID),
			LicenseKey: fmt.Sprintf("KEY-%d", m.nextLicenseID),
			ProductID:  productID,
			VariantID:  variantID,
			Status:     database.LicenseUnused,
		})
	}
}

func (m *memStore) RecordWebhookEvent(_ context.Context, provider, eventID, _ string) (bool, error) {
	key := provider + ":" + eventID
	if m.seenEvents[key] {
		return false, nil
	}
	m.seenEvents[key] = true
	return true, nil
}

func (m *memStore) GetOrderByStripeSession(_ context.Context, sessionID string) (*database.Order, error) {
	for _, o := range m.orders {
		if o.StripeSessionID != nil && *o.StripeSessionID == sessionID {
			return o, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memStore) GetOrderByID(_ context.Context, id string) (*database.Order, error) {
	if o, ok := m.orders[id]; ok {
		return o, nil
	}
	return nil, database.ErrNotFound
}

func (m *memStore) GetOrderItems(_ context.Context, orderID string) ([]*database.OrderItem, error) {
	return m.items[orderID], nil
}

func (m *memStore) CreateOrder(_ context.Context, order *database.Order, items []*database.OrderItem) error {
	m.orders[order.ID] = order
	m.items[order.ID] = items
	return nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, id string, status database.OrderStatus) error {
	o, ok := m.orders[id]
	if !ok {
		return database.ErrNotFound
	}
	o.Status = status
	return nil
}

func (m *memStore) CompleteOrder(_ context.Context, id string, paymentIntentID *string) error {
	o, ok := m.orders[id]
	if !ok {
		return database.ErrNotFound
	}
	o.Status = database.OrderCompleted
	if paymentIntentID != nil {
		o.PaymentIntentID = paymentIntentID
	}
	return nil
}

func (m *memStore) MarkOrdersFailedByPaymentIntent(_ context.Context, paymentIntentID string) ([]*database.Order, error) {
	var failed []*database.Order
	for _, o := range m.orders {
		if o.PaymentIntentID != nil && *o.PaymentIntentID == paymentIntentID && o.Status == database.OrderPending {
			o.Status = database.OrderFailed
			failed = append(failed, o)
		}
	}
	return failed, nil
}

func (m *memStore) GetOrdersByPaymentIntent(_ context.Context, paymentIntentID string) ([]*database.Order, error) {
	var matched []*database.Order
	for _, o := range m.orders {
		if o.PaymentIntentID != nil && *o.PaymentIntentID == paymentIntentID {
			matched = append(matched, o)
		}
	}
	return matched, nil
}

func (m *memStore) GetCheckoutSession(_ context.Context, sessionID string) (*database.CheckoutSession, error) {
	if s, ok := m.sessions[sessionID]; ok {
		return s, nil
	}
	return nil, database.ErrNotFound
}

func (m *memStore) MarkSessionCompleted(_ context.Context, sessionID string, paymentIntentID *string) error {
	if s, ok := m.sessions[sessionID]; ok {
		s.Status = database.SessionCompleted
		s.PaymentIntentID = paymentIntentID
	}
	return nil
}

func (m *memStore) MarkSessionStatus(_ context.Context, sessionID string, status database.SessionStatus) error {
	if s, ok := m.sessions[sessionID]; ok {
		s.Status = status
	}
	return nil
}

// AllocateLicense claims from the variant pool first, then product-wide,
// then general, mirroring the SQL eligibility order.
func (m *memStore) AllocateLicense(_ context.Context, productID string, variantID *string, orderID, customerEmail string) (*database.License, error) {
	claim := func(match func(*database.License) bool) *database.License {
		for _, lic := range m.stock {
			if lic.Status != database.LicenseUnused || !match(lic) {
				continue
			}
			lic.Status = database.LicenseActive
			lic.OrderID = &orderID
			lic.CustomerEmail = &customerEmail
			m.licenses = append(m.licenses, lic)
			return lic
		}
		return nil
	}

	if variantID != nil {
		if lic := claim(func(l *database.License) bool {
			return l.VariantID != nil && *l.VariantID == *variantID
		}); lic != nil {
			return lic, nil
		}
	}
	if lic := claim(func(l *database.License) bool {
		return l.ProductID != nil && *l.ProductID == productID && l.VariantID == nil
	}); lic != nil {
		return lic, nil
	}
	if lic := claim(func(l *database.License) bool {
		return l.ProductID == nil && l.VariantID == nil
	}); lic != nil {
		return lic, nil
	}
	return nil, database.ErrNoStock
}

func (m *memStore) CreateLicense(_ context.Context, lic *database.License) error {
	m.nextLicenseID++
	lic.ID = fmt.Sprintf("lic-%d", m.nextLicenseID)
	m.licenses = append(m.licenses, lic)
	return nil
}

func (m *memStore) RevokeLicensesByOrder(_ context.Context, orderID string) (int64, error) {
	var revoked int64
	for _, lic := range m.licenses {
		if lic.OrderID != nil && *lic.OrderID == orderID &&
			(lic.Status == database.LicenseActive || lic.Status == database.LicensePending) {
			lic.Status = database.LicenseRevoked
			revoked++
		}
	}
	return revoked, nil
}

func (m *memStore) GetLicensesByOrder(_ context.Context, orderID string) ([]*database.License, error) {
	var result []*database.License
	for _, lic := range m.licenses {
		if lic.OrderID != nil && *lic.OrderID == orderID {
			result = append(result, lic)
		}
	}
	return result, nil
}

func (m *memStore) GetStockCounts(_ context.Context) (*database.StockCounts, error) {
	counts := &database.StockCounts{
		ByProduct: make(map[string]int64),
		ByVariant: make(map[string]int64),
	}
	for _, lic := range m.stock {
		if lic.Status != database.LicenseUnused {
			continue
		}
		switch {
		case lic.VariantID != nil:
			counts.ByVariant[*lic.VariantID]++
		case lic.ProductID != nil:
			counts.ByProduct[*lic.ProductID]++
		default:
			counts.General++
		}
	}
	return counts, nil
}

func (m *memStore) IncrementCouponUse(_ context.Context, code string) (bool, error) {
	m.couponUses[code]++
	return true, nil
}

func (m *memStore) licensesByStatus(orderID string, status database.LicenseStatus) int {
	n := 0
	for _, lic := range m.licenses {
		if lic.OrderID != nil && *lic.OrderID == orderID && lic.Status == status {
			n++
		}
	}
	return n
}

func strPtr(s string) *string { return &s }

func seedOrder(store *memStore, orderID, sessionID string, quantity int) {
	store.orders[orderID] = &database.Order{
		ID:              orderID,
		OrderNumber:     "MC-2026-1234",
		CustomerEmail:   "buyer@example.com",
		AmountCents:     2999,
		Currency:        "EUR",
		Status:          database.OrderPending,
		StripeSessionID: strPtr(sessionID),
	}
	store.items[orderID] = []*database.OrderItem{{
		OrderID:     orderID,
		ProductID:   strPtr("prod-1"),
		VariantID:   strPtr("var-1"),
		ProductName: "Apex External",
		Quantity:    quantity,
	}}
	store.sessions[sessionID] = &database.CheckoutSession{
		SessionID: sessionID,
		Provider:  "stripe",
		OrderID:   strPtr(orderID),
		Status:    database.SessionPending,
	}
}

func sessionCompletedEvent(t *testing.T, eventID, sessionID, orderID string) *payment.WebhookEvent {
	t.Helper()
	object, err := json.Marshal(map[string]interface{}{
		"id":             sessionID,
		"payment_intent": "pi_123",
		"amount_total":   2999,
		"currency":       "eur",
		"metadata":       map[string]string{"order_id": orderID},
	})
	require.NoError(t, err)
	event := &payment.WebhookEvent{ID: eventID, Type: "checkout.session.completed"}
	event.Data.Object = object
	return event
}

func TestSessionCompletedAssignsKeys(t *testing.T) {
	store := newMemStore()
	store.addStock(3, strPtr("prod-1"), strPtr("var-1"))
	seedOrder(store, "order-1", "cs_test_1", 2)

	svc := NewService(store, nil, nil, events.NewEventBus(), 0)
	err := svc.HandleStripeEvent(context.Background(), sessionCompletedEvent(t, "evt_1", "cs_test_1", "order-1"))
	require.NoError(t, err)

	assert.Equal(t, database.OrderCompleted, store.orders["order-1"].Status)
	assert.Equal(t, 2, store.licensesByStatus("order-1", database.LicenseActive))
	assert.Equal(t, 0, store.licensesByStatus("order-1", database.LicensePending))
	assert.Equal(t, database.SessionCompleted, store.sessions["cs_test_1"].Status)
}

// With M keys in stock and N>M units paid, the order still completes: M
// real keys plus N-M pending placeholders.
func TestShortStockCompletesWithPlaceholders(t *testing.T) {
	store := newMemStore()
	store.addStock(1, strPtr("prod-1"), strPtr("var-1"))
	seedOrder(store, "order-1", "cs_test_1", 3)

	svc := NewService(store, nil, nil, events.NewEventBus(), 0)
	err := svc.HandleStripeEvent(context.Background(), sessionCompletedEvent(t, "evt_1", "cs_test_1", "order-1"))
	require.NoError(t, err)

	assert.Equal(t, database.OrderCompleted, store.orders["order-1"].Status)
	assert.Equal(t, 1, store.licensesByStatus("order-1", database.LicenseActive))
	assert.Equal(t, 2, store.licensesByStatus("order-1", database.LicensePending))

	for _, lic := range store.licenses {
		if lic.Status == database.LicensePending {
			assert.True(t, strings.HasPrefix(lic.LicenseKey, "PENDING-"))
		}
	}
}

// Eligibility falls through variant -> product-wide -> general stock.
func TestAllocationUsesFallbackPools(t *testing.T) {
	store := newMemStore()
	store.addStock(1, strPtr("prod-1"), strPtr("var-1"))
	store.addStock(1, strPtr("prod-1"), nil)
	store.addStock(1, nil, nil)
	seedOrder(store, "order-1", "cs_test_1", 3)

	svc := NewService(store, nil, nil, events.NewEventBus(), 0)
	err := svc.HandleStripeEvent(context.Background(), sessionCompletedEvent(t, "evt_1", "cs_test_1", "order-1"))
	require.NoError(t, err)

	assert.Equal(t, 3, store.licensesByStatus("order-1", database.LicenseActive))
	assert.Equal(t, 0, store.licensesByStatus("order-1", database.LicensePending))
}

// A replayed webhook event is a no-op: no duplicate keys, no double coupon
// counting.
func TestReplayedEventIsIgnored(t *testing.T) {
	store := newMemStore()
	store.addStock(5, strPtr("prod-1"), strPtr("var-1"))
	seedOrder(store, "order-1", "cs_test_1", 1)
	store.orders["order-1"].CouponCode = strPtr("SAVE10")

	svc := NewService(store, nil, nil, events.NewEventBus(), 0)
	event := sessionCompletedEvent(t, "evt_1", "cs_test_1", "order-1")

	require.NoError(t, svc.HandleStripeEvent(context.Background(), event))
	require.NoError(t, svc.HandleStripeEvent(context.Background(), event))

	assert.Equal(t, 1, store.licensesByStatus("order-1", database.LicenseActive))
	assert.Equal(t, 1, store.couponUses["SAVE10"])
}

func TestDisputeRevokesLicenses(t *testing.T) {
	store := newMemStore()
	store.addStock(2, strPtr("prod-1"), strPtr("var-1"))
	seedOrder(store, "order-1", "cs_test_1", 2)

	svc := NewService(store, nil, nil, events.NewEventBus(), 0)
	require.NoError(t, svc.HandleStripeEvent(context.Background(), sessionCompletedEvent(t, "evt_1", "cs_test_1", "order-1")))
	require.Equal(t, 2, store.licensesByStatus("order-1", database.LicenseActive))

	object, err := json.Marshal(map[string]interface{}{
		"id":             "dp_1",
		"payment_intent": "pi_123",
		"reason":         "fraudulent",
	})
	require.NoError(t, err)
	dispute := &payment.WebhookEvent{ID: "evt_2", Type: "charge.dispute.created"}
	dispute.Data.Object = object
	require.NoError(t, svc.HandleStripeEvent(context.Background(), dispute))

	assert.Equal(t, database.OrderDisputed, store.orders["order-1"].Status)
	assert.Equal(t, 0, store.licensesByStatus("order-1", database.LicenseActive))
	assert.Equal(t, 2, store.licensesByStatus("order-1", database.LicenseRevoked))
}

func TestPaymentFailedMarksOrders(t *testing.T) {
	store := newMemStore()
	seedOrder(store, "order-1", "cs_test_1", 1)
	store.orders["order-1"].PaymentIntentID = strPtr("pi_123")

	object, err := json.Marshal(map[string]interface{}{
		"id":            "pi_123",
		"receipt_email": "buyer@example.com",
		"last_payment_error": map[string]string{
			"message": "card declined",
		},
	})
	require.NoError(t, err)
	event := &payment.WebhookEvent{ID: "evt_1", Type: "payment_intent.payment_failed"}
	event.Data.Object = object

	svc := NewService(store, nil, nil, events.NewEventBus(), 0)
	require.NoError(t, svc.HandleStripeEvent(context.Background(), event))

	assert.Equal(t, database.OrderFailed, store.orders["order-1"].Status)
}

// watchFailures collects payment failed events off the bus so tests can
// wait on the goroutine-delivered publish.
func watchFailures(bus *events.EventBus) chan events.Event {
	ch := make(chan events.Event, 4)
	bus.Subscribe(events.EventPaymentFailed, func(e events.Event) { ch <- e })
	return ch
}

func waitForEvent(t *testing.T, ch chan events.Event) events.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("expected payment failed event, none published")
		return events.Event{}
	}
}

func TestSessionExpiredClosesPendingOrder(t *testing.T) {
	store := newMemStore()
	seedOrder(store, "order-1", "cs_test_1", 1)

	object, err := json.Marshal(map[string]interface{}{"id": "cs_test_1"})
	require.NoError(t, err)
	event := &payment.WebhookEvent{ID: "evt_1", Type: "checkout.session.expired"}
	event.Data.Object = object

	bus := events.NewEventBus()
	failed := watchFailures(bus)
	svc := NewService(store, nil, nil, bus, 0)
	require.NoError(t, svc.HandleStripeEvent(context.Background(), event))

	assert.Equal(t, database.OrderExpired, store.orders["order-1"].Status)
	assert.Equal(t, database.SessionExpired, store.sessions["cs_test_1"].Status)

	e := waitForEvent(t, failed)
	assert.Equal(t, "checkout session expired", e.Data["error_message"])
	assert.Equal(t, "buyer@example.com", e.Data["customer_email"])
}

func TestSessionExpiredResolvesThroughSessionRow(t *testing.T) {
	store := newMemStore()
	seedOrder(store, "order-1", "cs_test_1", 1)
	// order row never got the session id recorded; the session row is the
	// only link back to the order
	store.orders["order-1"].StripeSessionID = nil

	object, err := json.Marshal(map[string]interface{}{"id": "cs_test_1"})
	require.NoError(t, err)
	event := &payment.WebhookEvent{ID: "evt_1", Type: "checkout.session.expired"}
	event.Data.Object = object

	svc := NewService(store, nil, nil, events.NewEventBus(), 0)
	require.NoError(t, svc.HandleStripeEvent(context.Background(), event))

	assert.Equal(t, database.OrderExpired, store.orders["order-1"].Status)
}

func TestMoneyMotionExpiredPublishesPaymentFailed(t *testing.T) {
	store := newMemStore()
	seedOrder(store, "order-1", "mm_sess_1", 1)
	store.sessions["mm_sess_1"].Provider = "moneymotion"

	payload := &payment.MMWebhookPayload{Event: payment.MMEventExpired}
	payload.CheckoutSession.ID = "mm_sess_1"

	bus := events.NewEventBus()
	failed := watchFailures(bus)
	svc := NewService(store, nil, nil, bus, 0)
	require.NoError(t, svc.HandleMoneyMotionEvent(context.Background(), payload))

	assert.Equal(t, database.OrderExpired, store.orders["order-1"].Status)

	e := waitForEvent(t, failed)
	assert.Equal(t, "mm_sess_1", e.Data["payment_intent_id"])
}

func TestMoneyMotionCompleteFulfills(t *testing.T) {
	store := newMemStore()
	store.addStock(1, strPtr("prod-1"), strPtr("var-1"))
	seedOrder(store, "order-1", "mm_sess_1", 1)
	store.sessions["mm_sess_1"].Provider = "moneymotion"

	payload := &payment.MMWebhookPayload{Event: payment.MMEventComplete}
	payload.CheckoutSession.ID = "mm_sess_1"
	payload.CheckoutSession.TotalInCents = 2999

	svc := NewService(store, nil, nil, events.NewEventBus(), 0)
	require.NoError(t, svc.HandleMoneyMotionEvent(context.Background(), payload))

	assert.Equal(t, database.OrderCompleted, store.orders["order-1"].Status)
	assert.Equal(t, 1, store.licensesByStatus("order-1", database.LicenseActive))

	// replay is a no-op
	require.NoError(t, svc.HandleMoneyMotionEvent(context.Background(), payload))
	assert.Equal(t, 1, store.licensesByStatus("order-1", database.LicenseActive))
}

func TestFallbackOrderNumber(t *testing.T) {
	assert.Equal(t, "STRIPE-UVWXYZ12", fallbackOrderNumber("cs_test_abcdefuvwxyz12"))
	assert.Equal(t, "STRIPE-AB", fallbackOrderNumber("ab"))
}

// An unknown session synthesizes a fallback order so the customer is not
// left with a charge and nothing else.
func TestUnknownSessionSynthesizesOrder(t *testing.T) {
	store := newMemStore()
	store.addStock(1, strPtr("prod-1"), nil)

	object, err := json.Marshal(map[string]interface{}{
		"id":           "cs_orphan_99",
		"amount_total": 4999,
		"currency":     "eur",
		"customer_details": map[string]string{
			"email": "ghost@example.com",
		},
		"line_items": map[string]interface{}{
			"data": []map[string]interface{}{{
				"quantity":     1,
				"amount_total": 4999,
				"price": map[string]interface{}{
					"product": map[string]interface{}{
						"name":     "Apex External",
						"metadata": map[string]string{"product_id": "prod-1"},
					},
				},
			}},
		},
	})
	require.NoError(t, err)
	event := &payment.WebhookEvent{ID: "evt_1", Type: "checkout.session.completed"}
	event.Data.Object = object

	svc := NewService(store, nil, nil, events.NewEventBus(), 0)
	require.NoError(t, svc.HandleStripeEvent(context.Background(), event))

	var order *database.Order
	for _, o := range store.orders {
		order = o
	}
	require.NotNil(t, order)
	assert.Equal(t, "STRIPE-RPHAN_99", order.OrderNumber)
	assert.Equal(t, "ghost@example.com", order.CustomerEmail)
	assert.Equal(t, database.OrderCompleted, order.Status)
	assert.Equal(t, 1, store.licensesByStatus(order.ID, database.LicenseActive))
}
