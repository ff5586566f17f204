// Package catalog serves the public product listing with live stock counts.
package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"gamekey-store/internal/cache"
	"gamekey-store/internal/database"
	"gamekey-store/internal/logging"
)

const (
	listingCacheKey = "catalog:listing"
	listingCacheTTL = 30 * time.Second
)

// StatusLabel maps a product status to the badge shown on the storefront
func StatusLabel(s database.ProductStatus) string {
	switch s {
	case database.ProductActive:
		return "Undetected"
	case database.ProductMaintenance:
		return "Updating"
	default:
		return "Detected"
	}
}

// VariantStock is a variant with its purchasable unit count. Stock is the
// sum of the variant-specific, product-wide and general license pools, since
// a unit in any of the three can fulfill this variant.
func VariantStock(counts *database.StockCounts, productID, variantID string) int64 {
	return counts.General + counts.ByProduct[productID] + counts.ByVariant[variantID]
}

// VariantView is a variant as the storefront sees it
type VariantView struct {
	ID         string `json:"id"`
	Duration   string `json:"duration"`
	PriceCents int64  `json:"price_cents"`
	Stock      int64  `json:"stock"`
	InStock    bool   `json:"in_stock"`
}

// ProductView is a product with its variants and status badge
type ProductView struct {
	ID          string        `json:"id"`
	Slug        string        `json:"slug"`
	Name        string        `json:"name"`
	Game        string        `json:"game"`
	Description string        `json:"description,omitempty"`
	Image       string        `json:"image,omitempty"`
	Status      string        `json:"status"`
	StatusLabel string        `json:"status_label"`
	Variants    []VariantView `json:"variants"`
}

// Store is the repository surface the catalog reads from
type Store interface {
	GetProducts(ctx context.Context) ([]*database.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*database.Product, error)
	GetVariantsByProduct(ctx context.Context, productID string) ([]*database.ProductVariant, error)
	GetAllVariants(ctx context.Context) ([]*database.ProductVariant, error)
	GetStockCounts(ctx context.Context) (*database.StockCounts, error)
}

// Service assembles product listings with stock counts
type Service struct {
	store  Store
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewService creates a catalog service
func NewService(store Store, c *cache.Cache) *Service {
	return &Service{
		store:  store,
		cache:  c,
		logger: logging.For("catalog"),
	}
}

// Listing returns all active products with per-variant stock. Results are
// cached briefly since the storefront polls this endpoint.
func (s *Service) Listing(ctx context.Context) ([]*ProductView, error) {
	if cached, ok := s.cache.Get(ctx, listingCacheKey); ok {
		var views []*ProductView
		if err := json.Unmarshal([]byte(cached), &views); err == nil {
			return views, nil
		}
		s.logger.Warn().Msg("discarding malformed catalog cache entry")
	}

	views, err := s.buildListing(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(views); err == nil {
		s.cache.Set(ctx, listingCacheKey, string(data), listingCacheTTL)
	}
	return views, nil
}

func (s *Service) buildListing(ctx context.Context) ([]*ProductView, error) {
	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return nil, err
	}

	variants, err := s.store.GetAllVariants(ctx)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[string][]*database.ProductVariant)
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}

	counts, err := s.store.GetStockCounts(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]*ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, s.buildView(p, byProduct[p.ID], counts))
	}
	return views, nil
}

// Product returns a single product by slug with live stock counts
func (s *Service) Product(ctx context.Context, slug string) (*ProductView, error) {
	p, err := s.store.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	variants, err := s.store.GetVariantsByProduct(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.GetStockCounts(ctx)
	if err != nil {
		return nil, err
	}
	return s.buildView(p, variants, counts), nil
}

func (s *Service) buildView(p *database.Product, variants []*database.ProductVariant, counts *database.StockCounts) *ProductView {
	view := &ProductView{
		ID:          p.ID,
		Slug:        p.Slug,
		Name:        p.Name,
		Game:        p.Game,
		Description: p.Description,
		Image:       p.Image,
		Status:      string(p.Status),
		StatusLabel: StatusLabel(p.Status),
		Variants:    make([]VariantView, 0, len(variants)),
	}
	for _, v := range variants {
		stock := VariantStock(counts, p.ID, v.ID)
		view.Variants = append(view.Variants, VariantView{
			ID:         v.ID,
			Duration:   v.Duration,
			PriceCents: v.PriceCents,
			Stock:      stock,
			InStock:    stock > 0,
		})
	}
	return view
}

// Invalidate drops the cached listing, called after stock or product changes
func (s *Service) Invalidate(ctx context.Context) {
	s.cache.Delete(ctx, listingCacheKey)
}
