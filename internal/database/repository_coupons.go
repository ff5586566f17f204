package database

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// COUPONS
// ============================================================================

// CreateCoupon inserts a new coupon; codes are normalized to uppercase
func (r *Repository) CreateCoupon(ctx context.Context, c *Coupon) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	query := `
		INSERT INTO coupons (code, discount_type, discount_value, max_uses, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, current_uses, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		c.Code, c.DiscountType, c.DiscountValue, c.MaxUses, c.IsActive, c.ExpiresAt,
	).Scan(&c.ID, &c.CurrentUses, &c.CreatedAt, &c.UpdatedAt)
}

// GetCouponByCode retrieves a coupon by its (case-insensitive) code
func (r *Repository) GetCouponByCode(ctx context.Context, code string) (*Coupon, error) {
	query := `
		SELECT id, code, discount_type, discount_value, max_uses, current_uses,
		       is_active, expires_at, created_at, updated_at
		FROM coupons
		WHERE code = $1
	`
	c := &Coupon{}
	err := r.db.Pool.QueryRow(ctx, query, strings.ToUpper(strings.TrimSpace(code))).Scan(
		&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.MaxUses, &c.CurrentUses,
		&c.IsActive, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCoupons lists all coupons for the admin dashboard
func (r *Repository) ListCoupons(ctx context.Context) ([]*Coupon, error) {
	query := `
		SELECT id, code, discount_type, discount_value, max_uses, current_uses,
		       is_active, expires_at, created_at, updated_at
		FROM coupons
		ORDER BY created_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coupons []*Coupon
	for rows.Next() {
		c := &Coupon{}
		if err := rows.Scan(
			&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.MaxUses, &c.CurrentUses,
			&c.IsActive, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

// IncrementCouponUse bumps current_uses with the usage cap enforced in the
// same statement, so two concurrent completions cannot push a coupon past
// max_uses. Returns false when the coupon was inactive or fully redeemed.
func (r *Repository) IncrementCouponUse(ctx context.Context, code string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE coupons
		SET current_uses = current_uses + 1, updated_at = NOW()
		WHERE code = $1
		  AND is_active = TRUE
		  AND (max_uses IS NULL OR current_uses < max_uses)
	`, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetCouponActive toggles a coupon on or off
func (r *Repository) SetCouponActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE coupons SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCoupon removes a coupon
func (r *Repository) DeleteCoupon(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
