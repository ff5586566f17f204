package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamekey-store/internal/database"
)

func intPtr(v int) *int { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func TestCheck(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		coupon  database.Coupon
		wantErr error
	}{
		{
			name:   "active coupon passes",
			coupon: database.Coupon{Code: "SAVE10", IsActive: true},
		},
		{
			name:    "inactive coupon rejected",
			coupon:  database.Coupon{Code: "SAVE10", IsActive: false},
			wantErr: ErrInactive,
		},
		{
			name: "expired coupon rejected",
			coupon: database.Coupon{
				Code:      "OLD",
				IsActive:  true,
				ExpiresAt: timePtr(now.Add(-time.Hour)),
			},
			wantErr: ErrExpired,
		},
		{
			name: "future expiry passes",
			coupon: database.Coupon{
				Code:      "FRESH",
				IsActive:  true,
				ExpiresAt: timePtr(now.Add(time.Hour)),
			},
		},
		{
			name: "cap reached rejected",
			coupon: database.Coupon{
				Code:        "LIMITED",
				IsActive:    true,
				MaxUses:     intPtr(100),
				CurrentUses: 100,
			},
			wantErr: ErrExhausted,
		},
		{
			name: "under cap passes",
			coupon: database.Coupon{
				Code:        "LIMITED",
				IsActive:    true,
				MaxUses:     intPtr(100),
				CurrentUses: 99,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(&tt.coupon, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDiscount(t *testing.T) {
	percent := &database.Coupon{DiscountType: database.DiscountPercent, DiscountValue: 10}
	assert.Equal(t, int64(1000), Discount(percent, 10000))
	assert.Equal(t, int64(0), Discount(percent, 0))

	// rounding: 10% of 1995 is 199.5, rounds up
	assert.Equal(t, int64(200), Discount(percent, 1995))

	fixed := &database.Coupon{DiscountType: database.DiscountFixed, DiscountValue: 500}
	assert.Equal(t, int64(500), Discount(fixed, 10000))

	// flat discount never exceeds the subtotal
	assert.Equal(t, int64(300), Discount(fixed, 300))
}

type fakeStore struct {
	coupon     *database.Coupon
	increments int
	allowed    bool
}

func (f *fakeStore) GetCouponByCode(_ context.Context, code string) (*database.Coupon, error) {
	if f.coupon == nil {
		return nil, database.ErrNotFound
	}
	return f.coupon, nil
}

func (f *fakeStore) IncrementCouponUse(_ context.Context, code string) (bool, error) {
	f.increments++
	return f.allowed, nil
}

func TestValidate(t *testing.T) {
	store := &fakeStore{coupon: &database.Coupon{
		Code:          "SAVE10",
		DiscountType:  database.DiscountPercent,
		DiscountValue: 10,
		IsActive:      true,
	}}
	engine := NewEngine(store)

	result, err := engine.Validate(context.Background(), "SAVE10", 10000)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, int64(1000), result.DiscountCents)

	store.coupon = nil
	result, err = engine.Validate(context.Background(), "NOPE", 10000)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Message)
}

func TestRedeemCountsOnce(t *testing.T) {
	store := &fakeStore{allowed: true}
	engine := NewEngine(store)
	engine.Redeem(context.Background(), "SAVE10")
	assert.Equal(t, 1, store.increments)
}
