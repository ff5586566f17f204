package checkout

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamekey-store/internal/database"
	"gamekey-store/internal/events"
	"gamekey-store/internal/payment"
)

type fakeStore struct {
	products map[string]*database.Product
	variants map[string]*database.ProductVariant
	coupons  map[string]*database.Coupon

	order    *database.Order
	items    []*database.OrderItem
	sessions []*database.CheckoutSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: map[string]*database.Product{},
		variants: map[string]*database.ProductVariant{},
		coupons:  map[string]*database.Coupon{},
	}
}

func (f *fakeStore) GetProductByID(_ context.Context, id string) (*database.Product, error) {
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) GetVariantByID(_ context.Context, id string) (*database.ProductVariant, error) {
	if v, ok := f.variants[id]; ok {
		return v, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) GetCouponByCode(_ context.Context, code string) (*database.Coupon, error) {
	if c, ok := f.coupons[code]; ok {
		return c, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) CreateOrder(_ context.Context, order *database.Order, items []*database.OrderItem) error {
	// copy, so later mutations of the caller's struct don't show up in the
	// "persisted" row the way they wouldn't in a real INSERT
	saved := *order
	f.order = &saved
	f.items = items
	return nil
}

func (f *fakeStore) UpdateOrderStripeSession(_ context.Context, id, sessionID string) error {
	if f.order == nil || f.order.ID != id {
		return database.ErrNotFound
	}
	f.order.StripeSessionID = &sessionID
	return nil
}

func (f *fakeStore) CreateCheckoutSession(_ context.Context, cs *database.CheckoutSession) error {
	f.sessions = append(f.sessions, cs)
	return nil
}

type fakeStripe struct {
	lastLines    []payment.CheckoutLine
	lastMetadata map[string]string
	err          error
}

func (f *fakeStripe) CreateCheckoutSession(_ context.Context, _, _, _, _ string, lines []payment.CheckoutLine, metadata map[string]string) (*payment.CheckoutSessionObject, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastLines = lines
	f.lastMetadata = metadata
	return &payment.CheckoutSessionObject{
		ID:  "cs_test_fake",
		URL: "https://checkout.stripe.test/pay/cs_test_fake",
	}, nil
}

func seedCatalog(store *fakeStore) {
	store.products["prod-1"] = &database.Product{ID: "prod-1", Name: "Apex External", Slug: "apex-external"}
	store.variants["var-1"] = &database.ProductVariant{ID: "var-1", ProductID: "prod-1", Duration: "30 days", PriceCents: 2999}
}

func newTestService(store *fakeStore, stripe *fakeStripe) *Service {
	return NewService(store, stripe, events.NewEventBus(), "USD", "https://store.example.com")
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^MC-2026-\d{4}$`)
	for i := 0; i < 50; i++ {
		n := NewOrderNumber(now)
		assert.Regexp(t, pattern, n)
	}
}

func TestStartEmptyCart(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeStripe{})
	_, err := svc.Start(context.Background(), &Request{Email: "a@b.com"})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestStartBadQuantity(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	svc := newTestService(store, &fakeStripe{})

	for _, qty := range []int{0, -1, 11} {
		_, err := svc.Start(context.Background(), &Request{
			Email: "a@b.com",
			Items: []CartItem{{ProductID: "prod-1", VariantID: "var-1", Quantity: qty}},
		})
		assert.ErrorIs(t, err, ErrBadQuantity, "quantity %d", qty)
	}
}

func TestStartUnknownVariant(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	svc := newTestService(store, &fakeStripe{})

	_, err := svc.Start(context.Background(), &Request{
		Email: "a@b.com",
		Items: []CartItem{{ProductID: "prod-1", VariantID: "nope", Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrUnknownVariant)

	// variant exists but belongs to a different product
	_, err = svc.Start(context.Background(), &Request{
		Email: "a@b.com",
		Items: []CartItem{{ProductID: "prod-2", VariantID: "var-1", Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestStartPricesFromCatalog(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	stripe := &fakeStripe{}
	svc := newTestService(store, stripe)

	res, err := svc.Start(context.Background(), &Request{
		Email: "buyer@example.com",
		Items: []CartItem{{ProductID: "prod-1", VariantID: "var-1", Quantity: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5998), res.AmountCents)
	assert.Equal(t, "https://checkout.stripe.test/pay/cs_test_fake", res.CheckoutURL)
	assert.Regexp(t, `^MC-\d{4}-\d{4}$`, res.OrderNumber)

	require.NotNil(t, store.order)
	assert.Equal(t, database.OrderPending, store.order.Status)
	assert.Equal(t, int64(5998), store.order.AmountCents)
	require.Len(t, store.items, 1)
	assert.Equal(t, int64(2999), store.items[0].UnitPriceCents)
	assert.Equal(t, 2, store.items[0].Quantity)

	require.Len(t, store.sessions, 1)
	assert.Equal(t, "stripe", store.sessions[0].Provider)
	assert.Equal(t, "cs_test_fake", store.sessions[0].SessionID)

	assert.Equal(t, store.order.ID, stripe.lastMetadata["order_id"])
	assert.Equal(t, store.order.OrderNumber, stripe.lastMetadata["order_number"])
	require.Len(t, stripe.lastLines, 1)
	assert.Equal(t, "Apex External (30 days)", stripe.lastLines[0].Name)
}

func TestStartRecordsSessionOnOrder(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	svc := newTestService(store, &fakeStripe{})

	_, err := svc.Start(context.Background(), &Request{
		Email: "buyer@example.com",
		Items: []CartItem{{ProductID: "prod-1", VariantID: "var-1", Quantity: 1}},
	})
	require.NoError(t, err)

	// the stored row must carry the session id, not just the in-memory
	// struct, or expiry webhooks can never find the order
	require.NotNil(t, store.order.StripeSessionID)
	assert.Equal(t, "cs_test_fake", *store.order.StripeSessionID)
}

func TestStartAppliesCoupon(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	store.coupons["SAVE10"] = &database.Coupon{
		Code:          "SAVE10",
		DiscountType:  database.DiscountPercent,
		DiscountValue: 10,
		IsActive:      true,
	}
	stripe := &fakeStripe{}
	svc := newTestService(store, stripe)

	res, err := svc.Start(context.Background(), &Request{
		Email:      "buyer@example.com",
		Items:      []CartItem{{ProductID: "prod-1", VariantID: "var-1", Quantity: 2}},
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5398), res.AmountCents)
	require.NotNil(t, store.order.CouponCode)
	assert.Equal(t, "SAVE10", *store.order.CouponCode)
	require.NotNil(t, store.order.CouponDiscountCents)
	assert.Equal(t, int64(600), *store.order.CouponDiscountCents)
	assert.Equal(t, "SAVE10", stripe.lastMetadata["coupon_code"])
}

func TestStartDropsInvalidCoupon(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	store.coupons["DEAD"] = &database.Coupon{
		Code:          "DEAD",
		DiscountType:  database.DiscountPercent,
		DiscountValue: 50,
		IsActive:      false,
	}
	stripe := &fakeStripe{}
	svc := newTestService(store, stripe)

	res, err := svc.Start(context.Background(), &Request{
		Email:      "buyer@example.com",
		Items:      []CartItem{{ProductID: "prod-1", VariantID: "var-1", Quantity: 1}},
		CouponCode: "DEAD",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2999), res.AmountCents)
	assert.Nil(t, store.order.CouponCode)
	assert.Nil(t, store.order.CouponDiscountCents)
	_, hasCoupon := stripe.lastMetadata["coupon_code"]
	assert.False(t, hasCoupon)
}
