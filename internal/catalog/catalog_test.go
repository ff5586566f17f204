package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamekey-store/internal/database"
)

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Undetected", StatusLabel(database.ProductActive))
	assert.Equal(t, "Updating", StatusLabel(database.ProductMaintenance))
	assert.Equal(t, "Detected", StatusLabel(database.ProductInactive))
}

// Displayed stock per variant is the sum of all three pools that could
// fulfill it. Two variants of the same product both count the shared
// product-wide and general pools, so the sum across variants can exceed
// the number of physical keys; the display answers "can I buy this
// variant", not "how many keys exist".
func TestVariantStockSumsEligiblePools(t *testing.T) {
	counts := &database.StockCounts{
		General:   5,
		ByProduct: map[string]int64{"prod-1": 3},
		ByVariant: map[string]int64{"var-1": 2, "var-2": 7},
	}

	assert.Equal(t, int64(10), VariantStock(counts, "prod-1", "var-1"))
	assert.Equal(t, int64(15), VariantStock(counts, "prod-1", "var-2"))
	// other product: only general + its own pools
	assert.Equal(t, int64(5), VariantStock(counts, "prod-2", "var-9"))
}

type fakeStore struct {
	products []*database.Product
	variants []*database.ProductVariant
	counts   *database.StockCounts
}

func (f *fakeStore) GetProducts(context.Context) ([]*database.Product, error) {
	return f.products, nil
}

func (f *fakeStore) GetProductBySlug(_ context.Context, slug string) (*database.Product, error) {
	for _, p := range f.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) GetVariantsByProduct(_ context.Context, productID string) ([]*database.ProductVariant, error) {
	var out []*database.ProductVariant
	for _, v := range f.variants {
		if v.ProductID == productID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAllVariants(context.Context) ([]*database.ProductVariant, error) {
	return f.variants, nil
}

func (f *fakeStore) GetStockCounts(context.Context) (*database.StockCounts, error) {
	return f.counts, nil
}

func TestListing(t *testing.T) {
	store := &fakeStore{
		products: []*database.Product{
			{ID: "prod-1", Slug: "apex-external", Name: "Apex External", Status: database.ProductActive},
			{ID: "prod-2", Slug: "rust-private", Name: "Rust Private", Status: database.ProductMaintenance},
		},
		variants: []*database.ProductVariant{
			{ID: "var-1", ProductID: "prod-1", Duration: "1 Day", PriceCents: 499},
			{ID: "var-2", ProductID: "prod-1", Duration: "30 Days", PriceCents: 2999},
			{ID: "var-3", ProductID: "prod-2", Duration: "7 Days", PriceCents: 1499},
		},
		counts: &database.StockCounts{
			General:   1,
			ByProduct: map[string]int64{"prod-1": 2},
			ByVariant: map[string]int64{"var-1": 4},
		},
	}

	svc := NewService(store, nil)
	views, err := svc.Listing(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)

	apex := views[0]
	assert.Equal(t, "Undetected", apex.StatusLabel)
	require.Len(t, apex.Variants, 2)
	assert.Equal(t, int64(7), apex.Variants[0].Stock) // 4 + 2 + 1
	assert.True(t, apex.Variants[0].InStock)
	assert.Equal(t, int64(3), apex.Variants[1].Stock) // 2 + 1

	rust := views[1]
	assert.Equal(t, "Updating", rust.StatusLabel)
	require.Len(t, rust.Variants, 1)
	assert.Equal(t, int64(1), rust.Variants[0].Stock) // general only
}

func TestProductNotFound(t *testing.T) {
	svc := NewService(&fakeStore{counts: &database.StockCounts{}}, nil)
	_, err := svc.Product(context.Background(), "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
