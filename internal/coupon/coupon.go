// Package coupon implements discount-code validation and redemption.
package coupon

import (
	"context"
	"errors"
	"time"

	"gamekey-store/internal/database"
	"gamekey-store/internal/logging"
)

var (
	// ErrNotFound means no coupon exists for the code
	ErrNotFound = errors.New("invalid coupon code")
	// ErrInactive means the coupon has been disabled by an admin
	ErrInactive = errors.New("invalid coupon code")
	// ErrExhausted means the coupon reached its max_uses cap
	ErrExhausted = errors.New("coupon has been fully redeemed")
	// ErrExpired means the coupon's expiry date has passed
	ErrExpired = errors.New("coupon has expired")
)

// Store is the subset of the repository the engine needs
type Store interface {
	GetCouponByCode(ctx context.Context, code string) (*database.Coupon, error)
	IncrementCouponUse(ctx context.Context, code string) (bool, error)
}

// Engine validates coupons against carts and redeems them on completion
type Engine struct {
	store Store
}

// NewEngine creates a coupon engine
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Check applies the eligibility rules to a coupon row: active, not expired,
// under the usage cap when one is set.
func Check(c *database.Coupon, now time.Time) error {
	if !c.IsActive {
		return ErrInactive
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		return ErrExhausted
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return ErrExpired
	}
	return nil
}

// Discount computes the discount in cents for a subtotal. Percentage
// discounts round half away from zero; flat discounts never exceed the
// subtotal.
func Discount(c *database.Coupon, subtotalCents int64) int64 {
	var discount int64
	switch c.DiscountType {
	case database.DiscountPercent:
		discount = (subtotalCents*c.DiscountValue + 50) / 100
	case database.DiscountFixed:
		discount = c.DiscountValue
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// Validation is the outcome of validating a code against a subtotal
type Validation struct {
	Valid         bool                  `json:"valid"`
	Code          string                `json:"code,omitempty"`
	DiscountType  database.DiscountType `json:"discount_type,omitempty"`
	DiscountValue int64                 `json:"discount_value,omitempty"`
	DiscountCents int64                 `json:"discount_cents,omitempty"`
	Message       string                `json:"message,omitempty"`
}

// Validate looks up a code and applies the eligibility rules, computing the
// discount for the given subtotal when valid.
func (e *Engine) Validate(ctx context.Context, code string, subtotalCents int64) (*Validation, error) {
	c, err := e.store.GetCouponByCode(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return &Validation{Valid: false, Message: ErrNotFound.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := Check(c, time.Now()); err != nil {
		return &Validation{Valid: false, Message: err.Error()}, nil
	}

	return &Validation{
		Valid:         true,
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		DiscountCents: Discount(c, subtotalCents),
	}, nil
}

// Redeem bumps the coupon usage counter after a completed order. The cap is
// enforced atomically in the store; losing the race is logged, not fatal,
// because the customer already paid.
func (e *Engine) Redeem(ctx context.Context, code string) {
	ok, err := e.store.IncrementCouponUse(ctx, code)
	log := logging.For("coupon")
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to increment coupon usage")
		return
	}
	if !ok {
		log.Warn().Str("code", code).Msg("coupon redemption skipped: inactive or cap reached")
	}
}
