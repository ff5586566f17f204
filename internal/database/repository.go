package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// PRODUCTS
// ============================================================================

// CreateProduct inserts a new product
func (r *Repository) CreateProduct(ctx context.Context, p *Product) error {
	query := `
		INSERT INTO products (name, slug, game, description, image, status, display_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		p.Name, p.Slug, p.Game, p.Description, p.Image, p.Status, p.DisplayOrder,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetProducts retrieves all products ordered for display
func (r *Repository) GetProducts(ctx context.Context) ([]*Product, error) {
	query := `
		SELECT id, name, slug, game, description, image, status, display_order, created_at, updated_at
		FROM products
		ORDER BY display_order, name
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p := &Product{}
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Slug, &p.Game, &p.Description, &p.Image,
			&p.Status, &p.DisplayOrder, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProductBySlug retrieves a single product by slug
func (r *Repository) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	query := `
		SELECT id, name, slug, game, description, image, status, display_order, created_at, updated_at
		FROM products
		WHERE slug = $1
	`
	p := &Product{}
	err := r.db.Pool.QueryRow(ctx, query, slug).Scan(
		&p.ID, &p.Name, &p.Slug, &p.Game, &p.Description, &p.Image,
		&p.Status, &p.DisplayOrder, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProductByID retrieves a single product by id
func (r *Repository) GetProductByID(ctx context.Context, id string) (*Product, error) {
	query := `
		SELECT id, name, slug, game, description, image, status, display_order, created_at, updated_at
		FROM products
		WHERE id = $1
	`
	p := &Product{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Slug, &p.Game, &p.Description, &p.Image,
		&p.Status, &p.DisplayOrder, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProductStatus sets a product's status (public status page control)
func (r *Repository) UpdateProductStatus(ctx context.Context, id string, status ProductStatus) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE products SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// VARIANTS
// ============================================================================

// CreateVariant inserts a pricing variant for a product
func (r *Repository) CreateVariant(ctx context.Context, v *ProductVariant) error {
	query := `
		INSERT INTO product_variants (product_id, duration, price_cents, display_order)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query, v.ProductID, v.Duration, v.PriceCents, v.DisplayOrder,
	).Scan(&v.ID, &v.CreatedAt)
}

// GetVariantsByProduct retrieves all variants of a product, cheapest first
func (r *Repository) GetVariantsByProduct(ctx context.Context, productID string) ([]*ProductVariant, error) {
	query := `
		SELECT id, product_id, duration, price_cents, display_order, created_at
		FROM product_variants
		WHERE product_id = $1
		ORDER BY price_cents
	`
	return r.queryVariants(ctx, query, productID)
}

// GetAllVariants retrieves every variant, cheapest first per product
func (r *Repository) GetAllVariants(ctx context.Context) ([]*ProductVariant, error) {
	query := `
		SELECT id, product_id, duration, price_cents, display_order, created_at
		FROM product_variants
		ORDER BY product_id, price_cents
	`
	return r.queryVariants(ctx, query)
}

// GetVariantByID retrieves a single variant
func (r *Repository) GetVariantByID(ctx context.Context, id string) (*ProductVariant, error) {
	query := `
		SELECT id, product_id, duration, price_cents, display_order, created_at
		FROM product_variants
		WHERE id = $1
	`
	v := &ProductVariant{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.ProductID, &v.Duration, &v.PriceCents, &v.DisplayOrder, &v.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *Repository) queryVariants(ctx context.Context, query string, args ...interface{}) ([]*ProductVariant, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []*ProductVariant
	for rows.Next() {
		v := &ProductVariant{}
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Duration, &v.PriceCents, &v.DisplayOrder, &v.CreatedAt); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// ============================================================================
// SYSTEM SETTINGS
// ============================================================================

// GetSystemSettings returns all key/value settings as a map
func (r *Repository) GetSystemSettings(ctx context.Context, keys ...string) (map[string]string, error) {
	query := `SELECT key, value FROM system_settings WHERE key = ANY($1)`
	rows, err := r.db.Pool.Query(ctx, query, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string, len(keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// SetSystemSetting upserts a key/value setting
func (r *Repository) SetSystemSetting(ctx context.Context, key, value string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO system_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	return err
}
