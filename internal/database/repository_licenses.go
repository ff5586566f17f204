package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNoStock is returned when no eligible license pool has an unused key
var ErrNoStock = errors.New("no license keys available in stock")

// StockCounts holds the unused-license counts of the three eligibility pools.
// A variant's displayed stock is the sum of its own pool, its product's pool
// and the general pool; shared pools are intentionally counted once per
// variant, matching the storefront's historical display behavior.
type StockCounts struct {
	General   int64            // product_id IS NULL AND variant_id IS NULL
	ByProduct map[string]int64 // product-wide: variant_id IS NULL
	ByVariant map[string]int64
}

// GetStockCounts aggregates unused licenses across the three pools
func (r *Repository) GetStockCounts(ctx context.Context) (*StockCounts, error) {
	counts := &StockCounts{
		ByProduct: make(map[string]int64),
		ByVariant: make(map[string]int64),
	}

	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM licenses
		WHERE status = 'unused' AND product_id IS NULL AND variant_id IS NULL
	`).Scan(&counts.General)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT product_id, COUNT(*) FROM licenses
		WHERE status = 'unused' AND product_id IS NOT NULL AND variant_id IS NULL
		GROUP BY product_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var productID string
		var n int64
		if err := rows.Scan(&productID, &n); err != nil {
			return nil, err
		}
		counts.ByProduct[productID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Pool.Query(ctx, `
		SELECT variant_id, COUNT(*) FROM licenses
		WHERE status = 'unused' AND variant_id IS NOT NULL
		GROUP BY variant_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var variantID string
		var n int64
		if err := rows.Scan(&variantID, &n); err != nil {
			return nil, err
		}
		counts.ByVariant[variantID] = n
	}
	return counts, rows.Err()
}

// AllocateLicense atomically claims one unused license for an order,
// trying the exact variant pool, then the product-wide pool, then the
// general pool. The claim is a single conditional UPDATE with
// FOR UPDATE SKIP LOCKED so concurrent purchasers of the last key cannot
// both win. Returns ErrNoStock when all three pools are empty.
func (r *Repository) AllocateLicense(ctx context.Context, productID string, variantID *string, orderID, customerEmail string) (*License, error) {
	pools := []struct {
		filter string
		args   []interface{}
	}{}

	base := []interface{}{orderID, customerEmail}
	if variantID != nil {
		pools = append(pools, struct {
			filter string
			args   []interface{}
		}{`product_id = $3 AND variant_id = $4`, append(base, productID, *variantID)})
	}
	pools = append(pools,
		struct {
			filter string
			args   []interface{}
		}{`product_id = $3 AND variant_id IS NULL`, append(base, productID)},
		struct {
			filter string
			args   []interface{}
		}{`product_id IS NULL AND variant_id IS NULL`, base},
	)

	for _, pool := range pools {
		query := fmt.Sprintf(`
			UPDATE licenses
			SET status = 'active', order_id = $1, customer_email = $2,
			    assigned_at = NOW(), updated_at = NOW()
			WHERE id = (
				SELECT id FROM licenses
				WHERE %s AND status = 'unused'
				ORDER BY created_at
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, license_key, product_id, variant_id, product_name, status,
			          customer_email, order_id, assigned_at, expires_at, created_at, updated_at
		`, pool.filter)

		lic := &License{}
		err := r.db.Pool.QueryRow(ctx, query, pool.args...).Scan(
			&lic.ID, &lic.LicenseKey, &lic.ProductID, &lic.VariantID, &lic.ProductName,
			&lic.Status, &lic.CustomerEmail, &lic.OrderID, &lic.AssignedAt, &lic.ExpiresAt,
			&lic.CreatedAt, &lic.UpdatedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return lic, nil
	}

	return nil, ErrNoStock
}

// CreateLicense inserts a license row (bulk stock add or pending placeholder)
func (r *Repository) CreateLicense(ctx context.Context, lic *License) error {
	query := `
		INSERT INTO licenses (license_key, product_id, variant_id, product_name, status,
		                      customer_email, order_id, assigned_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	if lic.Status == "" {
		lic.Status = LicenseUnused
	}
	return r.db.Pool.QueryRow(
		ctx, query,
		lic.LicenseKey, lic.ProductID, lic.VariantID, lic.ProductName, lic.Status,
		lic.CustomerEmail, lic.OrderID, lic.AssignedAt, lic.ExpiresAt,
	).Scan(&lic.ID, &lic.CreatedAt, &lic.UpdatedAt)
}

// BulkAddLicenses inserts many unused keys into one pool in a single batch
func (r *Repository) BulkAddLicenses(ctx context.Context, keys []string, productID, variantID *string, productName *string) (int, error) {
	batch := &pgx.Batch{}
	for _, key := range keys {
		batch.Queue(`
			INSERT INTO licenses (license_key, product_id, variant_id, product_name, status)
			VALUES ($1, $2, $3, $4, 'unused')
		`, key, productID, variantID, productName)
	}

	results := r.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range keys {
		if _, err := results.Exec(); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// RevokeLicensesByOrder flips every license tied to an order to revoked.
// Used on disputes and refunds. Returns the number of licenses revoked.
func (r *Repository) RevokeLicensesByOrder(ctx context.Context, orderID string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE licenses SET status = 'revoked', updated_at = NOW()
		WHERE order_id = $1 AND status IN ('active', 'pending')
	`, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetLicensesByOrder lists all licenses bound to an order
func (r *Repository) GetLicensesByOrder(ctx context.Context, orderID string) ([]*License, error) {
	return r.queryLicenses(ctx, `
		SELECT id, license_key, product_id, variant_id, product_name, status,
		       customer_email, order_id, assigned_at, expires_at, created_at, updated_at
		FROM licenses
		WHERE order_id = $1
		ORDER BY created_at
	`, orderID)
}

// ListLicenses lists licenses for the admin stock view, newest first
func (r *Repository) ListLicenses(ctx context.Context, status *LicenseStatus, limit int) ([]*License, error) {
	if limit <= 0 {
		limit = 100
	}
	if status != nil {
		return r.queryLicenses(ctx, `
			SELECT id, license_key, product_id, variant_id, product_name, status,
			       customer_email, order_id, assigned_at, expires_at, created_at, updated_at
			FROM licenses
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2
		`, *status, limit)
	}
	return r.queryLicenses(ctx, `
		SELECT id, license_key, product_id, variant_id, product_name, status,
		       customer_email, order_id, assigned_at, expires_at, created_at, updated_at
		FROM licenses
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
}

// DeleteLicense removes an unused license from stock
func (r *Repository) DeleteLicense(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM licenses WHERE id = $1 AND status = 'unused'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StockSummary is the admin stock breakdown across pools
type StockSummary struct {
	TotalUnused     int64 `json:"total_unused"`
	GeneralStock    int64 `json:"general_stock"`
	ProductSpecific int64 `json:"product_specific"`
	VariantSpecific int64 `json:"variant_specific"`
}

// GetStockSummary computes the admin stock breakdown
func (r *Repository) GetStockSummary(ctx context.Context) (*StockSummary, error) {
	summary := &StockSummary{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE product_id IS NULL AND variant_id IS NULL),
		       COUNT(*) FILTER (WHERE product_id IS NOT NULL AND variant_id IS NULL),
		       COUNT(*) FILTER (WHERE variant_id IS NOT NULL)
		FROM licenses
		WHERE status = 'unused'
	`).Scan(&summary.TotalUnused, &summary.GeneralStock, &summary.ProductSpecific, &summary.VariantSpecific)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *Repository) queryLicenses(ctx context.Context, query string, args ...interface{}) ([]*License, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licenses []*License
	for rows.Next() {
		lic := &License{}
		if err := rows.Scan(
			&lic.ID, &lic.LicenseKey, &lic.ProductID, &lic.VariantID, &lic.ProductName,
			&lic.Status, &lic.CustomerEmail, &lic.OrderID, &lic.AssignedAt, &lic.ExpiresAt,
			&lic.CreatedAt, &lic.UpdatedAt,
		); err != nil {
			return nil, err
		}
		licenses = append(licenses, lic)
	}
	return licenses, rows.Err()
}
